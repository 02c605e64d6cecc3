// Package analysis implements the batch property diagnostic: one
// synchronous scan over a search scope that reports which item properties
// are populated, broken down by file extension.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wesm/livefind/internal/backend"
	"github.com/wesm/livefind/internal/livesearch"
)

// ColumnLister reports the item properties the index stores.
// *store.Store implements it.
type ColumnLister interface {
	Columns() ([]string, error)
}

// columnProps maps index columns to the row property that carries them
// when the column itself is not returned.
var columnProps = map[string]string{
	"content": backend.PropContentLength,
}

// Batch is the non-interactive query variant. Execute runs one query to
// completion with large fetch batches; there is no debounce, no
// cancellation by newer input and no generation tracking.
type Batch struct {
	backend backend.Backend
	builder livesearch.QueryBuilder
	lister  ColumnLister
	opts    livesearch.Options
	logger  *slog.Logger

	mu      sync.Mutex
	columns []string
	records []livesearch.ResultRecord
	report  *Report
}

// NewBatch creates a batch diagnostic query.
func NewBatch(b backend.Backend, builder livesearch.QueryBuilder, lister ColumnLister, opts livesearch.Options) *Batch {
	return &Batch{
		backend: b,
		builder: builder,
		lister:  lister,
		opts:    opts,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (q *Batch) WithLogger(logger *slog.Logger) *Batch {
	q.logger = logger
	return q
}

// Init discovers the property columns to report on.
func (q *Batch) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cols, err := q.lister.Columns()
	if err != nil {
		return fmt.Errorf("discover columns: %w", err)
	}
	if len(cols) == 0 {
		return fmt.Errorf("discover columns: index has no item columns")
	}
	q.mu.Lock()
	q.columns = cols
	q.mu.Unlock()
	return nil
}

// Execute scans every item matching text and builds a Report. Empty text
// scans the whole scope.
func (q *Batch) Execute(ctx context.Context, text string) error {
	q.mu.Lock()
	cols := q.columns
	q.mu.Unlock()
	if cols == nil {
		if err := q.Init(ctx); err != nil {
			return err
		}
		q.mu.Lock()
		cols = q.columns
		q.mu.Unlock()
	}

	query := q.builder.BuildQuery(text, q.opts.ContentSearch, q.opts.MailSearch,
		q.opts.AllUsersSearch, backend.NoReuseToken)

	start := time.Now()
	t := newTally(cols)
	fetcher := &livesearch.RowFetcher{
		Backend:   q.backend,
		BatchSize: livesearch.BulkBatchSize,
		Logger:    q.logger,
		Observe:   t.observe,
	}
	res, err := fetcher.ExecuteAndFetch(ctx, query)
	if err != nil {
		return fmt.Errorf("analyse %q: %w", text, err)
	}

	report := t.report(text, query)
	report.Records = len(res.Records)
	report.Skipped = res.Skipped
	report.Duration = time.Since(start)

	q.logger.Info("property analysis complete",
		"query_text", text,
		"rows", report.Rows,
		"unique_items", report.UniqueItems,
		"duration", report.Duration)

	q.mu.Lock()
	q.records = res.Records
	q.report = report
	q.mu.Unlock()
	return nil
}

// NumResults returns the number of displayable records of the last run.
func (q *Batch) NumResults() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Result returns record idx of the last run.
func (q *Batch) Result(idx int) (livesearch.ResultRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx < 0 || idx >= len(q.records) {
		return livesearch.ResultRecord{}, false
	}
	return q.records[idx], true
}

// Report returns the report of the last run, or nil before one completed.
func (q *Batch) Report() *Report {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.report
}

var _ livesearch.Query = (*Batch)(nil)

// tally accumulates per-row statistics while rows stream in.
type tally struct {
	columns  []string
	rows     int
	valid    int
	ids      map[int64]struct{}
	types    map[string]*TypeStats
	coverage map[string]int
}

func newTally(columns []string) *tally {
	return &tally{
		columns:  columns,
		ids:      make(map[int64]struct{}),
		types:    make(map[string]*TypeStats),
		coverage: make(map[string]int, len(columns)),
	}
}

func (t *tally) observe(row backend.Row) {
	t.rows++
	if id, err := row.Int64(backend.PropID); err == nil {
		t.ids[id] = struct{}{}
	}

	n := 0
	for _, col := range t.columns {
		prop := col
		if p, ok := columnProps[col]; ok {
			prop = p
		}
		if row.HasValue(prop) {
			t.coverage[col]++
			n++
		}
	}
	t.valid += n

	key := typeKey(row)
	ts := t.types[key]
	if ts == nil {
		ts = &TypeStats{Type: key}
		t.types[key] = ts
	}
	ts.Items++
	ts.Properties += n
}

// typeKey groups a row by extension; folders and extensionless items get
// their own buckets.
func typeKey(row backend.Row) string {
	if kind, _ := row.OptString(backend.PropKind); kind == "folder" {
		return "(folder)"
	}
	ext, _ := row.OptString(backend.PropExtension)
	if ext == "" {
		return "(none)"
	}
	return ext
}

func (t *tally) report(text, query string) *Report {
	r := &Report{
		Text:            text,
		Query:           query,
		Columns:         t.columns,
		Rows:            t.rows,
		UniqueItems:     len(t.ids),
		ValidProperties: t.valid,
		Coverage:        t.coverage,
	}
	for _, ts := range t.types {
		r.Types = append(r.Types, *ts)
	}
	sort.Slice(r.Types, func(i, j int) bool {
		if r.Types[i].Items != r.Types[j].Items {
			return r.Types[i].Items > r.Types[j].Items
		}
		return r.Types[i].Type < r.Types[j].Type
	})
	return r
}
