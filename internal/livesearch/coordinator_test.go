package livesearch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/livefind/internal/backend"
	"github.com/wesm/livefind/internal/backend/backendtest"
)

// blockOn returns an ExecuteFunc that parks queries for text until release
// is closed or the query is cancelled. started receives the text each time
// such a query begins; cancelled receives it when ctx ended first.
func blockOn(text string, started, cancelled chan<- string, release <-chan struct{}) func(context.Context, string) error {
	return func(ctx context.Context, query string) error {
		if !isSearch(query) || queryText(query) != text {
			return nil
		}
		started <- text
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			if cancelled != nil {
				cancelled <- text
			}
			return ctx.Err()
		}
	}
}

func TestCoordinatorDebounceCoalesces(t *testing.T) {
	m := &backendtest.MockBackend{RowsFunc: rowsEchoingText}
	c, rec := newTestCoordinator(t, m, Config{Debounce: 150 * time.Millisecond})

	for _, text := range []string{"r", "re", "rep", "repo"} {
		c.Submit(text, Options{})
	}
	if got := len(m.Queries()); got != 0 {
		t.Fatalf("%d queries ran before the debounce elapsed", got)
	}
	waitIdle(t, c)

	searches := searchQueries(m)
	if len(searches) != 1 || queryText(searches[0]) != "repo" {
		t.Fatalf("search queries = %v, want one for %q", searches, "repo")
	}
	events := rec.Events()
	if len(events) != 1 || events[0].Kind != EventResults || events[0].Cookie != 4 {
		t.Fatalf("events = %+v, want results for cookie 4", events)
	}
	if got := events[0].Results.Records[0].DisplayName; got != "repo.txt" {
		t.Errorf("record = %q, want repo.txt", got)
	}
}

func TestCoordinatorClearRunsNoQuery(t *testing.T) {
	m := &backendtest.MockBackend{}
	c, rec := newTestCoordinator(t, m, Config{})

	cookie := c.Submit("", Options{})
	waitIdle(t, c)

	if q := m.Queries(); len(q) != 0 {
		t.Errorf("queries = %v, want none", q)
	}
	want := []Event{{Kind: EventCleared, Cookie: cookie}}
	if diff := cmp.Diff(want, rec.Events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestCoordinatorClearSupersedesQuery(t *testing.T) {
	started := make(chan string, 4)
	cancelled := make(chan string, 4)
	release := make(chan struct{})
	m := &backendtest.MockBackend{
		ExecuteFunc: blockOn("abc", started, cancelled, release),
		RowsFunc:    rowsEchoingText,
	}
	c, rec := newTestCoordinator(t, m, Config{Debounce: -1, FinishPrefixQueries: true})

	c.Submit("abc", Options{})
	if got := <-started; got != "abc" {
		t.Fatalf("started %q", got)
	}
	cookie := c.Submit("", Options{})
	waitFor(t, signal(cancelled), "cancellation of abc")
	waitIdle(t, c)

	want := []Event{{Kind: EventCleared, Cookie: cookie}}
	if diff := cmp.Diff(want, rec.Events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

// signal turns a value channel into a done channel after one receive.
func signal(ch <-chan string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()
	return done
}

func TestCoordinatorFinishesPrefixQuery(t *testing.T) {
	started := make(chan string, 4)
	cancelled := make(chan string, 4)
	release := make(chan struct{})
	m := &backendtest.MockBackend{
		ExecuteFunc: blockOn("a", started, cancelled, release),
		RowsFunc:    rowsEchoingText,
	}
	c, rec := newTestCoordinator(t, m, Config{Debounce: -1, FinishPrefixQueries: true})

	c.Submit("a", Options{})
	<-started
	cookie := c.Submit("ab", Options{})
	close(release)
	waitIdle(t, c)

	select {
	case <-cancelled:
		t.Fatal("prefix query was cancelled")
	default:
	}

	searches := searchQueries(m)
	if len(searches) != 2 {
		t.Fatalf("search queries = %v, want 2", searches)
	}
	// prime = handle 1, "a" = handle 2; "ab" narrows with a's token.
	if got := queryToken(searches[1]); got != 2 {
		t.Errorf("second query token = %d, want 2 (from the finished prefix query)", got)
	}

	events := rec.Events()
	if len(events) != 1 || events[0].Cookie != cookie {
		t.Fatalf("events = %+v, want only cookie %d", events, cookie)
	}
	if got := events[0].Results.Records[0].DisplayName; got != "ab.txt" {
		t.Errorf("record = %q, want ab.txt", got)
	}
}

func TestCoordinatorCancelsNonPrefixQuery(t *testing.T) {
	tests := []struct {
		name   string
		finish bool
		next   string
		opts   Options
	}{
		{name: "finish disabled", finish: false, next: "ab"},
		{name: "not an extension", finish: true, next: "b"},
		{name: "options changed", finish: true, next: "ab", opts: Options{ContentSearch: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := make(chan string, 4)
			cancelled := make(chan string, 4)
			m := &backendtest.MockBackend{
				ExecuteFunc: blockOn("a", started, cancelled, make(chan struct{})),
				RowsFunc:    rowsEchoingText,
			}
			c, rec := newTestCoordinator(t, m, Config{Debounce: -1, FinishPrefixQueries: tt.finish})

			c.Submit("a", Options{})
			<-started
			cookie := c.Submit(tt.next, tt.opts)
			waitFor(t, signal(cancelled), "cancellation")
			waitIdle(t, c)

			events := rec.Events()
			if len(events) != 1 || events[0].Kind != EventResults || events[0].Cookie != cookie {
				t.Fatalf("events = %+v, want results for cookie %d", events, cookie)
			}
			if m.OpenHandles() != 0 {
				t.Errorf("%d handles left open", m.OpenHandles())
			}
		})
	}
}

func TestCoordinatorSingleActiveHandle(t *testing.T) {
	m := &backendtest.MockBackend{
		RowsFunc: func(string) []backend.Row { return manyRows(200) },
		FetchFunc: func(ctx context.Context, _ string, _ int) error {
			select {
			case <-time.After(2 * time.Millisecond):
			case <-ctx.Done():
			}
			return nil
		},
	}
	c, _ := newTestCoordinator(t, m, Config{Debounce: time.Millisecond, FinishPrefixQueries: true, BatchSize: 10})

	text := ""
	for _, r := range "abcdefghijklmnop" {
		text += string(r)
		c.Submit(text, Options{})
		time.Sleep(3 * time.Millisecond)
	}
	c.Submit("zzz", Options{})
	waitIdle(t, c)

	if got := m.MaxOpenHandles(); got != 1 {
		t.Errorf("max open handles = %d, want 1", got)
	}
	if got := m.OpenHandles(); got != 0 {
		t.Errorf("open handles = %d after idle", got)
	}
}

func TestCoordinatorPublishesInCookieOrder(t *testing.T) {
	m := &backendtest.MockBackend{RowsFunc: rowsEchoingText}
	c, rec := newTestCoordinator(t, m, Config{Debounce: time.Millisecond, FinishPrefixQueries: true})

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, text := range []string{"a", "ab", "abc", ""} {
				c.Submit(text+strings.Repeat("x", i), Options{})
			}
		}()
	}
	wg.Wait()
	waitIdle(t, c)

	var last uint64
	for _, ev := range rec.Events() {
		if ev.Cookie <= last {
			t.Fatalf("cookie %d published after %d", ev.Cookie, last)
		}
		last = ev.Cookie
	}
	if last != c.Current().Cookie {
		t.Errorf("last published cookie = %d, want current %d", last, c.Current().Cookie)
	}
}

func TestCoordinatorFailures(t *testing.T) {
	tests := []struct {
		name    string
		backend *backendtest.MockBackend
		check   func(error) bool
	}{
		{
			name: "execution",
			backend: &backendtest.MockBackend{
				ExecuteFunc: func(_ context.Context, q string) error {
					if isSearch(q) {
						return errors.New("malformed query")
					}
					return nil
				},
			},
			check: func(err error) bool {
				var e *backend.ExecutionError
				return errors.As(err, &e)
			},
		},
		{
			name: "fetch",
			backend: &backendtest.MockBackend{
				RowsFunc: rowsEchoingText,
				FetchFunc: func(context.Context, string, int) error {
					return errors.New("cursor lost")
				},
			},
			check: func(err error) bool {
				var e *backend.FetchError
				return errors.As(err, &e)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestCoordinator(t, tt.backend, Config{})
			cookie := c.Submit("doc", Options{})
			waitIdle(t, c)

			events := rec.Events()
			if len(events) != 1 || events[0].Kind != EventFailed || events[0].Cookie != cookie {
				t.Fatalf("events = %+v, want one failure", events)
			}
			if !tt.check(events[0].Err) {
				t.Errorf("error %v has the wrong type", events[0].Err)
			}
			if tt.backend.OpenHandles() != 0 {
				t.Error("handle leaked")
			}

			// The coordinator keeps working after a failure.
			c.Submit("", Options{})
			waitIdle(t, c)
			if got := rec.Events(); got[len(got)-1].Kind != EventCleared {
				t.Errorf("last event = %v, want clear", got[len(got)-1].Kind)
			}
		})
	}
}

func TestCoordinatorTimeout(t *testing.T) {
	m := &backendtest.MockBackend{
		ExecuteFunc: func(ctx context.Context, q string) error {
			if !isSearch(q) {
				return nil
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}
	c, rec := newTestCoordinator(t, m, Config{QueryTimeout: 30 * time.Millisecond})

	c.Submit("slow", Options{})
	waitIdle(t, c)

	events := rec.Events()
	if len(events) != 1 || events[0].Kind != EventFailed {
		t.Fatalf("events = %+v, want one failure", events)
	}
	err := events[0].Err
	if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want a timeout", err)
	}
}

func TestCoordinatorReuseNarrowing(t *testing.T) {
	m := &backendtest.MockBackend{RowsFunc: rowsEchoingText}
	c, _ := newTestCoordinator(t, m, Config{Debounce: -1})

	opts := Options{}
	if err := c.Init(context.Background(), opts); err != nil {
		t.Fatalf("Init: %v", err)
	}

	steps := []struct {
		text string
		opts Options
		want backend.ReuseToken
	}{
		{"re", opts, 1},
		{"rep", opts, 2},
		// Deleting a character falls back to the prime token.
		{"re", opts, 1},
		{"x", opts, 1},
		// Changed options re-prime (handle 6) before querying (handle 7).
		{"xy", Options{MailSearch: true}, 6},
		{"xyz", Options{MailSearch: true}, 7},
		{"XYZW", Options{MailSearch: true}, 8},
	}
	for _, s := range steps {
		c.Submit(s.text, s.opts)
		waitIdle(t, c)
		searches := searchQueries(m)
		last := searches[len(searches)-1]
		if got := queryToken(last); got != s.want {
			t.Errorf("%q token = %d, want %d", s.text, got, s.want)
		}
	}

	if got := len(primeQueries(m)); got != 2 {
		t.Errorf("priming queries = %d, want 2", got)
	}
}

func TestCoordinatorReprimesStaleToken(t *testing.T) {
	var mu sync.Mutex
	stale := map[backend.ReuseToken]bool{}
	m := &backendtest.MockBackend{
		RowsFunc: rowsEchoingText,
		ValidFunc: func(token backend.ReuseToken) bool {
			mu.Lock()
			defer mu.Unlock()
			return !stale[token]
		},
	}
	c, rec := newTestCoordinator(t, m, Config{Debounce: -1})

	if err := c.Init(context.Background(), Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c.Submit("re", Options{})
	waitIdle(t, c)

	// The index changed: both kept scopes (prime 1, "re" 2) are stale.
	mu.Lock()
	stale[1], stale[2] = true, true
	mu.Unlock()

	c.Submit("rep", Options{})
	waitIdle(t, c)

	searches := searchQueries(m)
	if got := queryToken(searches[len(searches)-1]); got != 3 {
		t.Errorf("token after index change = %d, want fresh prime 3", got)
	}
	if got := len(primeQueries(m)); got != 2 {
		t.Errorf("priming queries = %d, want 2", got)
	}
	events := rec.Events()
	if len(events) != 2 || events[1].Kind != EventResults || events[1].Results.Len() != 1 {
		t.Errorf("events = %+v, want results for rep", events)
	}
}

// caseSensitiveBuilder narrows only on exact-case extensions.
type caseSensitiveBuilder struct{ fakeBuilder }

func (caseSensitiveBuilder) CanNarrow(previous, next string, _ bool) bool {
	return strings.HasPrefix(next, previous)
}

func TestCoordinatorUsesBuilderNarrowRule(t *testing.T) {
	m := &backendtest.MockBackend{RowsFunc: rowsEchoingText}
	c := NewCoordinator(m, caseSensitiveBuilder{}, nil, Config{Debounce: -1})
	t.Cleanup(c.Close)

	if err := c.Init(context.Background(), Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	steps := []struct {
		text string
		want backend.ReuseToken
	}{
		{"R", 1},
		// IsPrefix holds but the builder refuses: back to the prime scope.
		{"re", 1},
		{"rex", 3},
	}
	for _, s := range steps {
		c.Submit(s.text, Options{})
		waitIdle(t, c)
		searches := searchQueries(m)
		if got := queryToken(searches[len(searches)-1]); got != s.want {
			t.Errorf("%q token = %d, want %d", s.text, got, s.want)
		}
	}
}

func TestCoordinatorReuseUnsupported(t *testing.T) {
	m := &backendtest.MockBackend{
		RowsFunc: rowsEchoingText,
		TokenFunc: func(backend.Handle) (backend.ReuseToken, error) {
			return backend.NoReuseToken, backend.ErrReuseUnsupported
		},
	}
	c, rec := newTestCoordinator(t, m, Config{Debounce: -1})

	if err := c.Init(context.Background(), Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, text := range []string{"a", "ab", "abc"} {
		c.Submit(text, Options{})
		waitIdle(t, c)
	}
	c.Submit("abcd", Options{MailSearch: true})
	waitIdle(t, c)

	if got := len(primeQueries(m)); got != 1 {
		t.Errorf("priming queries = %d, want 1", got)
	}
	for _, q := range searchQueries(m) {
		if tok := queryToken(q); tok != backend.NoReuseToken {
			t.Errorf("query %q used token %d", q, tok)
		}
	}
	if got := len(rec.Events()); got != 4 {
		t.Errorf("events = %d, want 4", got)
	}
}

func TestCoordinatorPrimeFailureQueriesUnrestricted(t *testing.T) {
	m := &backendtest.MockBackend{
		RowsFunc: rowsEchoingText,
		ExecuteFunc: func(_ context.Context, q string) error {
			if isPrime(q) {
				return errors.New("index offline")
			}
			return nil
		},
	}
	c, rec := newTestCoordinator(t, m, Config{Debounce: -1})

	if err := c.Init(context.Background(), Options{}); err == nil {
		t.Fatal("Init succeeded, want priming error")
	}
	c.Submit("doc", Options{})
	waitIdle(t, c)

	searches := searchQueries(m)
	if len(searches) != 1 || queryToken(searches[0]) != backend.NoReuseToken {
		t.Errorf("search queries = %v, want one unrestricted", searches)
	}
	if events := rec.Events(); len(events) != 1 || events[0].Kind != EventResults {
		t.Errorf("events = %+v, want results", events)
	}
}

func TestCoordinatorSetOptions(t *testing.T) {
	m := &backendtest.MockBackend{RowsFunc: rowsEchoingText}
	c, _ := newTestCoordinator(t, m, Config{Debounce: -1})

	c.Submit("memo", Options{})
	waitIdle(t, c)
	c.SetOptions(Options{ContentSearch: true})
	waitIdle(t, c)

	cur := c.Current()
	if cur.Text != "memo" || !cur.Options.ContentSearch || cur.Cookie != 2 {
		t.Errorf("Current() = %+v", cur)
	}
	searches := searchQueries(m)
	if len(searches) != 2 || !strings.HasPrefix(searches[1], "q|memo|true|") {
		t.Errorf("search queries = %v", searches)
	}
}

func TestCoordinatorClose(t *testing.T) {
	started := make(chan string, 4)
	m := &backendtest.MockBackend{
		ExecuteFunc: blockOn("hang", started, nil, make(chan struct{})),
	}
	rec := &recorder{}
	c := NewCoordinator(m, fakeBuilder{}, rec, Config{Debounce: -1})

	c.Submit("hang", Options{})
	<-started
	c.Close()

	before := len(m.Queries())
	cookie := c.Submit("after", Options{})
	if cookie != 1 {
		t.Errorf("Submit after Close returned cookie %d, want 1", cookie)
	}
	waitIdle(t, c)
	time.Sleep(20 * time.Millisecond)

	if got := len(m.Queries()); got != before {
		t.Errorf("queries ran after Close")
	}
	if events := rec.Events(); len(events) != 0 {
		t.Errorf("events after Close = %+v", events)
	}
	if m.OpenHandles() != 0 {
		t.Error("handle left open")
	}
	c.Close()
}

func TestCoordinatorRecoversPanic(t *testing.T) {
	m := &backendtest.MockBackend{
		RowsFunc: func(q string) []backend.Row {
			if isSearch(q) && queryText(q) == "boom" {
				panic("driver bug")
			}
			return rowsEchoingText(q)
		},
	}
	c, rec := newTestCoordinator(t, m, Config{Debounce: -1})

	c.Submit("boom", Options{})
	waitIdle(t, c)
	c.Submit("fine", Options{})
	waitIdle(t, c)

	events := rec.Events()
	if len(events) != 2 || events[0].Kind != EventFailed || events[1].Kind != EventResults {
		t.Fatalf("events = %+v, want failure then results", events)
	}
}

func TestInteractive(t *testing.T) {
	m := &backendtest.MockBackend{RowsFunc: rowsEchoingText}
	down := NewChannelPublisher(8)
	q := NewInteractive(m, fakeBuilder{}, Options{}, Config{Debounce: -1}, down)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := q.Execute(ctx, "report"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if q.NumResults() != 1 {
		t.Fatalf("NumResults = %d, want 1", q.NumResults())
	}
	rec, ok := q.Result(0)
	if !ok || rec.DisplayName != "report.txt" || rec.LaunchTarget != "/r/report.txt" {
		t.Errorf("Result(0) = %+v, %v", rec, ok)
	}
	if _, ok := q.Result(1); ok {
		t.Error("Result(1) should be out of range")
	}

	ev := <-down.Events()
	if ev.Kind != EventResults || ev.Results.Len() != 1 {
		t.Errorf("downstream event = %+v", ev)
	}

	if err := q.Execute(ctx, ""); err != nil {
		t.Fatalf("Execute(\"\"): %v", err)
	}
	if q.Results() != nil || q.NumResults() != 0 {
		t.Error("results not cleared")
	}
}

func TestInteractiveReportsFailure(t *testing.T) {
	m := &backendtest.MockBackend{
		ExecuteFunc: func(_ context.Context, q string) error {
			if isSearch(q) {
				return errors.New("bad")
			}
			return nil
		},
	}
	q := NewInteractive(m, fakeBuilder{}, Options{}, Config{Debounce: -1}, nil)
	defer q.Close()

	err := q.Execute(context.Background(), "x")
	var execErr *backend.ExecutionError
	if !errors.As(err, &execErr) {
		t.Errorf("Execute err = %v, want *ExecutionError", err)
	}
}

func TestCoordinatorNoReuseNeverPrimes(t *testing.T) {
	m := &backendtest.MockBackend{RowsFunc: rowsEchoingText}
	c, rec := newTestCoordinator(t, m, Config{Debounce: -1, NoReuse: true})

	if err := c.Init(context.Background(), Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c.Submit("re", Options{})
	waitIdle(t, c)
	c.Submit("rep", Options{})
	waitIdle(t, c)

	if got := primeQueries(m); len(got) != 0 {
		t.Errorf("priming queries = %v, want none", got)
	}
	for _, q := range searchQueries(m) {
		if tok := queryToken(q); tok != backend.NoReuseToken {
			t.Errorf("query %q used token %d", q, tok)
		}
	}
	if events := rec.Events(); len(events) != 2 || events[1].Kind != EventResults {
		t.Errorf("events = %+v, want two result sets", events)
	}
}
