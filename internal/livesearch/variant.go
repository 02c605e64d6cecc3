package livesearch

import (
	"context"
	"errors"
	"sync"

	"github.com/wesm/livefind/internal/backend"
)

// Query is the shape shared by the interactive and batch search variants.
type Query interface {
	// Init prepares the query (priming, property discovery).
	Init(ctx context.Context) error
	// Execute runs a search for text and blocks until its outcome is known.
	Execute(ctx context.Context, text string) error
	// NumResults returns how many results the last Execute produced.
	NumResults() int
	// Result returns record idx of the last Execute.
	Result(idx int) (ResultRecord, bool)
}

// ErrSuperseded is returned by Interactive.Execute when a newer
// submission replaced the request before it completed.
var ErrSuperseded = errors.New("search superseded by newer input")

// Interactive is the debounced, cancellable variant: a Coordinator plus a
// synchronous Execute for callers that want one answer (CLI, MCP).
type Interactive struct {
	coord *Coordinator
	opts  Options

	mu   sync.Mutex
	last Event
}

// NewInteractive creates an interactive query. Publications are also
// forwarded to downstream when it is non-nil.
func NewInteractive(b backend.Backend, builder QueryBuilder, opts Options, cfg Config, downstream Publisher) *Interactive {
	q := &Interactive{opts: opts}
	pub := Publisher(PublisherFuncs{
		Published: func(cookie uint64, rs *ResultSet) { q.record(Event{Kind: EventResults, Cookie: cookie, Results: rs}) },
		Cleared:   func(cookie uint64) { q.record(Event{Kind: EventCleared, Cookie: cookie}) },
		Failed:    func(cookie uint64, err error) { q.record(Event{Kind: EventFailed, Cookie: cookie, Err: err}) },
	})
	if downstream != nil {
		pub = multiPublisher{pub, downstream}
	}
	q.coord = NewCoordinator(b, builder, pub, cfg)
	return q
}

func (q *Interactive) record(ev Event) {
	q.mu.Lock()
	q.last = ev
	q.mu.Unlock()
}

// Coordinator exposes the underlying coordinator for asynchronous use.
func (q *Interactive) Coordinator() *Coordinator {
	return q.coord
}

// Init runs the priming query.
func (q *Interactive) Init(ctx context.Context) error {
	return q.coord.Init(ctx, q.opts)
}

// Execute submits text and waits for the coordinator to go idle.
func (q *Interactive) Execute(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cookie := q.coord.Submit(text, q.opts)
	if err := q.coord.WaitIdle(ctx); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.last.Cookie != cookie {
		return ErrSuperseded
	}
	if q.last.Kind == EventFailed {
		return q.last.Err
	}
	return nil
}

// Results returns the records of the last published result set; nil after
// a clear or failure.
func (q *Interactive) Results() *ResultSet {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.last.Kind != EventResults {
		return nil
	}
	return q.last.Results
}

// NumResults implements Query.
func (q *Interactive) NumResults() int {
	return q.Results().Len()
}

// Result returns record idx of the last result set.
func (q *Interactive) Result(idx int) (ResultRecord, bool) {
	rs := q.Results()
	if rs == nil || idx < 0 || idx >= len(rs.Records) {
		return ResultRecord{}, false
	}
	return rs.Records[idx], true
}

// Close releases the coordinator.
func (q *Interactive) Close() {
	q.coord.Close()
}

var _ Query = (*Interactive)(nil)
