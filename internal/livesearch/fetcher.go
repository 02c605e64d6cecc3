package livesearch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wesm/livefind/internal/backend"
)

// Batch sizes for the two query shapes: small pages for interactive
// display, large ones for whole-scope scans.
const (
	InteractiveBatchSize = 50
	BulkBatchSize        = 5000
)

// RowFetcher executes one query and drains its rows into records.
type RowFetcher struct {
	Backend    backend.Backend
	BatchSize  int // rows per FetchBatch; InteractiveBatchSize if zero
	MaxResults int // stop after this many displayable records; 0 = all
	Policy     DisplayPolicy
	Logger     *slog.Logger
	// Observe, when set, sees every raw row before conversion.
	Observe func(backend.Row)
}

// FetchResult is what one ExecuteAndFetch produced.
type FetchResult struct {
	Records   []ResultRecord
	Rows      int  // rows returned by the backend
	Skipped   int  // rows that failed conversion
	Truncated bool // MaxResults reached before the rows ran out

	// Token is the reuse token of the executed query, read before the
	// handle was released. TokenErr is set when extraction failed.
	Token    backend.ReuseToken
	TokenErr error
}

// ExecuteAndFetch runs query, pulls every batch and releases the handle.
//
// Execution failure returns a *backend.ExecutionError and no result. A
// fetch failure returns a *backend.FetchError and no result: partial rows
// are discarded. When ctx ends mid-fetch the partial result is returned
// with ctx's error, so the caller can still keep its reuse token.
func (f *RowFetcher) ExecuteAndFetch(ctx context.Context, query string) (*FetchResult, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := f.BatchSize
	if batchSize <= 0 {
		batchSize = InteractiveBatchSize
	}

	h, err := f.Backend.ExecuteQuery(ctx, query)
	if err != nil {
		var execErr *backend.ExecutionError
		if !errors.As(err, &execErr) {
			err = &backend.ExecutionError{Query: query, Err: err}
		}
		return nil, err
	}
	defer f.Backend.ReleaseHandle(h)

	res := &FetchResult{}
	filter := f.Policy.newFilter()
	fetchErr := f.drain(ctx, h, batchSize, filter, res, logger)

	if fetchErr != nil && ctx.Err() == nil {
		var fe *backend.FetchError
		if !errors.As(fetchErr, &fe) {
			fetchErr = &backend.FetchError{Handle: h, Err: fetchErr}
		}
		return nil, fetchErr
	}

	res.Token, res.TokenErr = f.Backend.GetReuseToken(h)
	if fetchErr != nil {
		return res, ctx.Err()
	}
	return res, nil
}

func (f *RowFetcher) drain(ctx context.Context, h backend.Handle, batchSize int, filter *displayFilter, res *FetchResult, logger *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, last, err := f.Backend.FetchBatch(ctx, h, batchSize)
		if err != nil {
			return err
		}
		res.Rows += len(rows)

		for i, row := range rows {
			if f.Observe != nil {
				f.Observe(row)
			}
			rec, err := RecordFromRow(row)
			if err != nil {
				res.Skipped++
				logger.Debug("skipping row", "error", err)
				continue
			}
			if !filter.admit(&rec) {
				continue
			}
			res.Records = append(res.Records, rec)
			if f.MaxResults > 0 && len(res.Records) >= f.MaxResults {
				res.Truncated = !last || i < len(rows)-1
				return nil
			}
		}

		if last || len(rows) == 0 {
			return nil
		}
	}
}
