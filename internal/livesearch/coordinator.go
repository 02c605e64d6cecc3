// Package livesearch turns a stream of rapidly changing search text into a
// minimal, correctly ordered sequence of backend queries.
//
// A Coordinator debounces submissions, cancels work made obsolete by newer
// input, narrows each query with the reuse token of an earlier one and
// publishes only results whose cookie is still current.
package livesearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wesm/livefind/internal/backend"
)

// DefaultDebounce is the quiet period a submission waits before its query
// runs.
const DefaultDebounce = 100 * time.Millisecond

// QueryBuilder produces backend query strings.
type QueryBuilder interface {
	BuildQuery(text string, contentSearch, mailSearch, allUsersSearch bool, token backend.ReuseToken) string
	BuildPrimingQuery(mailSearch, allUsersSearch bool) string
}

// Narrower is implemented by query builders that know when every match for
// next is also a match for previous. Builders without it are trusted to
// narrow whenever IsPrefix holds.
type Narrower interface {
	CanNarrow(previous, next string, contentSearch bool) bool
}

// Config tunes a Coordinator.
type Config struct {
	// Debounce is the quiet period before a query runs. Zero means
	// DefaultDebounce; use a negative value for no delay.
	Debounce time.Duration
	// FinishPrefixQueries lets an executing query run to completion when
	// the new text extends it, so its reuse token narrows the next query.
	// Otherwise the executing query is cancelled.
	FinishPrefixQueries bool
	// NoReuse runs every query unrestricted and never primes. Suits
	// callers that submit a single query.
	NoReuse bool
	// QueryTimeout bounds one query's execution and fetch. Zero = none.
	QueryTimeout time.Duration
	BatchSize    int
	MaxResults   int
	Policy       DisplayPolicy
	Logger       *slog.Logger
}

// Coordinator schedules live-search queries. It is safe for concurrent
// use; Submit never blocks on backend work.
type Coordinator struct {
	backend   backend.Backend
	builder   QueryBuilder
	publisher Publisher
	fetcher   *RowFetcher
	cfg       Config
	logger    *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	cookie  uint64
	text    string
	opts    Options
	timer   *time.Timer
	pending *SearchRequest // armed, waiting for the timer
	queued  *SearchRequest // timer fired while a query was executing
	running *run
	reuse   reuseState
	closed  bool
	idle    chan struct{} // closed while nothing is pending, queued or running
	isIdle  bool

	// pubMu serialises publication. Lock order: pubMu before mu.
	pubMu         sync.Mutex
	lastPublished uint64
}

// run is the single executing query.
type run struct {
	req       SearchRequest
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled bool
}

// NewCoordinator creates a coordinator. Call Init before the first Submit
// to obtain a priming token; without it the first query primes lazily.
func NewCoordinator(b backend.Backend, builder QueryBuilder, pub Publisher, cfg Config) *Coordinator {
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	} else if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = PublisherFuncs{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	c := &Coordinator{
		backend:   b,
		builder:   builder,
		publisher: pub,
		fetcher: &RowFetcher{
			Backend:    b,
			BatchSize:  cfg.BatchSize,
			MaxResults: cfg.MaxResults,
			Policy:     cfg.Policy,
			Logger:     logger,
		},
		cfg:        cfg,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		idle:       idle,
		isIdle:     true,
	}
	if cfg.NoReuse {
		c.reuse.disable()
	}
	return c
}

// Init records the initial options and runs the priming query
// synchronously. A priming failure is returned but leaves the coordinator
// usable without narrowing.
func (c *Coordinator) Init(ctx context.Context, opts Options) error {
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
	if c.cfg.NoReuse {
		return nil
	}
	return c.prime(ctx, opts)
}

// Submit records new search text and options and schedules a query after
// the debounce interval. It returns the cookie of the new request.
//
// An executing query is cancelled unless FinishPrefixQueries is set, the
// options are unchanged and the new text extends the executing text.
func (c *Coordinator) Submit(text string, opts Options) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.cookie
	}

	c.cookie++
	req := SearchRequest{Text: text, Options: opts, Cookie: c.cookie}
	c.text, c.opts = text, opts
	c.markBusyLocked()

	if r := c.running; r != nil && !r.cancelled && !c.mayFinishLocked(r.req, req) {
		r.cancelled = true
		r.cancel()
		c.logger.Debug("cancelled executing query", "cookie", r.req.Cookie, "superseded_by", req.Cookie)
	}

	c.queued = nil
	c.pending = &req
	if c.timer != nil {
		c.timer.Stop()
	}
	cookie := req.Cookie
	c.timer = time.AfterFunc(c.cfg.Debounce, func() { c.fire(cookie) })
	return cookie
}

// SetOptions resubmits the current text with new options.
func (c *Coordinator) SetOptions(opts Options) uint64 {
	c.mu.Lock()
	text := c.text
	c.mu.Unlock()
	return c.Submit(text, opts)
}

// Current returns the latest submitted text, options and cookie.
func (c *Coordinator) Current() SearchRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SearchRequest{Text: c.text, Options: c.opts, Cookie: c.cookie}
}

// WaitIdle blocks until no query is pending, queued or executing, or ctx
// is done.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	for {
		c.mu.Lock()
		ch, idle := c.idle, c.isIdle
		c.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels pending and executing work and waits for the executing
// query to finish releasing its handle. Submit is a no-op afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
	c.queued = nil
	r := c.running
	if r != nil {
		r.cancelled = true
		r.cancel()
	}
	c.baseCancel()
	c.mu.Unlock()

	if r != nil {
		<-r.done
	}

	c.mu.Lock()
	c.markIdleLocked()
	c.mu.Unlock()
}

func (c *Coordinator) mayFinishLocked(executing, next SearchRequest) bool {
	return c.cfg.FinishPrefixQueries &&
		next.Text != "" &&
		executing.Options == next.Options &&
		c.narrows(executing.Text, next.Text, next.Options)
}

// narrows reports whether a scope built for previous may restrict a query
// for next.
func (c *Coordinator) narrows(previous, next string, opts Options) bool {
	if !IsPrefix(previous, next) {
		return false
	}
	if n, ok := c.builder.(Narrower); ok {
		return n.CanNarrow(previous, next, opts.ContentSearch)
	}
	return true
}

// fire runs on the timer goroutine.
func (c *Coordinator) fire(cookie uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil || c.pending.Cookie != cookie {
		return
	}
	req := *c.pending
	c.pending = nil
	c.timer = nil

	if c.running != nil {
		c.queued = &req
		return
	}
	c.startLocked(req)
}

func (c *Coordinator) startLocked(req SearchRequest) {
	ctx, cancel := context.WithCancel(c.baseCtx)
	if c.cfg.QueryTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, c.cfg.QueryTimeout)
		parent := cancel
		cancel = func() { cancelTimeout(); parent() }
	}
	r := &run{req: req, cancel: cancel, done: make(chan struct{})}
	c.running = r
	go c.work(ctx, r)
}

// outcome is what one worker produced.
type outcome struct {
	results *ResultSet
	cleared bool
	err     error // reported through OnQueryFailed
	dropped bool  // cancelled: nothing to report
}

func (c *Coordinator) work(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()

	out := c.execute(ctx, r.req)
	c.publish(r.req, out)
	c.finish(r)
}

// execute does the backend work for one request without holding mu.
func (c *Coordinator) execute(ctx context.Context, req SearchRequest) (out outcome) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("query panicked", "cookie", req.Cookie, "panic", p)
			out = outcome{err: &backend.ExecutionError{Err: fmt.Errorf("query panicked: %v", p)}}
		}
	}()

	if req.Text == "" {
		return outcome{cleared: true}
	}

	token := c.tokenFor(ctx, req)
	query := c.builder.BuildQuery(req.Text, req.Options.ContentSearch, req.Options.MailSearch,
		req.Options.AllUsersSearch, token)

	start := time.Now()
	res, err := c.fetcher.ExecuteAndFetch(ctx, query)
	if res != nil {
		c.keepToken(req, res)
	}
	if err != nil {
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.DeadlineExceeded):
			err = fmt.Errorf("query timed out after %s: %w", c.cfg.QueryTimeout, err)
		case ctxErr != nil:
			c.logger.Debug("query cancelled", "cookie", req.Cookie, "query_text", req.Text)
			return outcome{dropped: true}
		}
		c.logger.Warn("query failed", "cookie", req.Cookie, "query_text", req.Text, "error", err)
		return outcome{err: err}
	}

	c.logger.Debug("query completed",
		"cookie", req.Cookie,
		"query_text", req.Text,
		"narrowed", token != backend.NoReuseToken,
		"rows", res.Rows,
		"records", len(res.Records),
		"skipped", res.Skipped,
		"duration", time.Since(start))

	return outcome{results: &ResultSet{
		Cookie:    req.Cookie,
		Text:      req.Text,
		Records:   res.Records,
		Truncated: res.Truncated,
	}}
}

// tokenFor picks the narrowest valid token, priming first when the options
// changed since the last priming.
//
// A token the backend reports stale (the index changed since it was
// built) discards every kept token, so the query re-primes.
func (c *Coordinator) tokenFor(ctx context.Context, req SearchRequest) backend.ReuseToken {
	c.mu.Lock()
	token, needPrime := c.reuse.choose(req.Text, req.Options, c.narrows)
	c.mu.Unlock()
	if token != backend.NoReuseToken && !c.tokenValid(ctx, token) {
		c.mu.Lock()
		c.reuse.forget()
		c.mu.Unlock()
		needPrime = true
	}
	if !needPrime {
		return token
	}

	if err := c.prime(ctx, req.Options); err != nil {
		c.logger.Debug("priming failed, querying without reuse", "error", err)
	}
	c.mu.Lock()
	token, _ = c.reuse.choose(req.Text, req.Options, c.narrows)
	c.mu.Unlock()
	return token
}

func (c *Coordinator) tokenValid(ctx context.Context, token backend.ReuseToken) bool {
	checker, ok := c.backend.(backend.TokenChecker)
	if !ok {
		return true
	}
	valid, err := checker.TokenValid(ctx, token)
	if err != nil {
		c.logger.Debug("reuse token check failed", "token", token, "error", err)
		return false
	}
	if !valid {
		c.logger.Debug("reuse token stale, re-priming", "token", token)
	}
	return valid
}

// prime runs the priming query for opts and stores its token.
func (c *Coordinator) prime(ctx context.Context, opts Options) error {
	query := c.builder.BuildPrimingQuery(opts.MailSearch, opts.AllUsersSearch)
	h, err := c.backend.ExecuteQuery(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("prime index: %w", err)
		}
		c.mu.Lock()
		c.reuse.setPrime(opts, backend.NoReuseToken)
		c.mu.Unlock()
		return fmt.Errorf("prime index: %w", err)
	}
	token, tokenErr := c.backend.GetReuseToken(h)
	c.backend.ReleaseHandle(h)

	c.mu.Lock()
	defer c.mu.Unlock()
	if tokenErr != nil {
		if errors.Is(tokenErr, backend.ErrReuseUnsupported) {
			c.logger.Info("backend does not support reuse tokens, narrowing disabled")
			c.reuse.disable()
			return nil
		}
		c.reuse.setPrime(opts, backend.NoReuseToken)
		return fmt.Errorf("prime index: %w", tokenErr)
	}
	c.reuse.setPrime(opts, token)
	c.logger.Debug("index primed", "options", opts.String(), "token", token)
	return nil
}

func (c *Coordinator) keepToken(req SearchRequest, res *FetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case res.TokenErr == nil:
		c.reuse.record(req.Text, req.Options, res.Token)
	case errors.Is(res.TokenErr, backend.ErrReuseUnsupported):
		if !c.reuse.disabled {
			c.logger.Info("backend does not support reuse tokens, narrowing disabled")
		}
		c.reuse.disable()
	default:
		c.logger.Debug("reuse token unavailable", "cookie", req.Cookie, "error", res.TokenErr)
	}
}

// publish reports out if req is still the newest request.
func (c *Coordinator) publish(req SearchRequest, out outcome) {
	if out.dropped {
		return
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	current := req.Cookie == c.cookie && !c.closed
	c.mu.Unlock()

	if !current || req.Cookie <= c.lastPublished {
		c.logger.Debug("dropping stale result", "cookie", req.Cookie)
		return
	}
	c.lastPublished = req.Cookie

	switch {
	case out.err != nil:
		c.publisher.OnQueryFailed(req.Cookie, out.err)
	case out.cleared:
		c.publisher.OnResultsCleared(req.Cookie)
	default:
		c.publisher.OnResultsPublished(req.Cookie, out.results)
	}
}

// finish retires r and starts the queued request, if any.
func (c *Coordinator) finish(r *run) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running == r {
		c.running = nil
	}
	if c.queued != nil && !c.closed {
		next := *c.queued
		c.queued = nil
		c.startLocked(next)
		return
	}
	if c.pending == nil && c.running == nil {
		c.markIdleLocked()
	}
}

func (c *Coordinator) markBusyLocked() {
	if c.isIdle {
		c.idle = make(chan struct{})
		c.isIdle = false
	}
}

func (c *Coordinator) markIdleLocked() {
	if !c.isIdle {
		close(c.idle)
		c.isIdle = true
	}
}
