package livesearch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wesm/livefind/internal/backend"
	"github.com/wesm/livefind/internal/backend/backendtest"
)

// fakeBuilder encodes its arguments so tests can inspect what was asked.
type fakeBuilder struct{}

func (fakeBuilder) BuildQuery(text string, content, mail, allUsers bool, token backend.ReuseToken) string {
	return fmt.Sprintf("q|%s|%t|%t|%t|%d", text, content, mail, allUsers, token)
}

func (fakeBuilder) BuildPrimingQuery(mail, allUsers bool) string {
	return fmt.Sprintf("prime|%t|%t", mail, allUsers)
}

func isSearch(query string) bool { return strings.HasPrefix(query, "q|") }
func isPrime(query string) bool  { return strings.HasPrefix(query, "prime|") }

func queryText(query string) string {
	return strings.Split(query, "|")[1]
}

func queryToken(query string) backend.ReuseToken {
	parts := strings.Split(query, "|")
	n, _ := strconv.ParseUint(parts[len(parts)-1], 10, 64)
	return backend.ReuseToken(n)
}

func searchQueries(m *backendtest.MockBackend) []string {
	var out []string
	for _, q := range m.Queries() {
		if isSearch(q) {
			out = append(out, q)
		}
	}
	return out
}

func primeQueries(m *backendtest.MockBackend) []string {
	var out []string
	for _, q := range m.Queries() {
		if isPrime(q) {
			out = append(out, q)
		}
	}
	return out
}

// rowsEchoingText returns one file row named after the query text.
func rowsEchoingText(query string) []backend.Row {
	if !isSearch(query) {
		return nil
	}
	text := queryText(query)
	return []backend.Row{backendtest.FileRow(text+".txt", "/r/"+text+".txt")}
}

// recorder is a Publisher that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnResultsPublished(cookie uint64, rs *ResultSet) {
	r.add(Event{Kind: EventResults, Cookie: cookie, Results: rs})
}

func (r *recorder) OnResultsCleared(cookie uint64) {
	r.add(Event{Kind: EventCleared, Cookie: cookie})
}

func (r *recorder) OnQueryFailed(cookie uint64, err error) {
	r.add(Event{Kind: EventFailed, Cookie: cookie, Err: err})
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestCoordinator(t *testing.T, m *backendtest.MockBackend, cfg Config) (*Coordinator, *recorder) {
	t.Helper()
	if cfg.Debounce == 0 {
		cfg.Debounce = 20 * time.Millisecond
	}
	rec := &recorder{}
	c := NewCoordinator(m, fakeBuilder{}, rec, cfg)
	t.Cleanup(c.Close)
	return c, rec
}

func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
