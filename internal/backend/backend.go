// Package backend defines the contract between the live-search coordinator
// and the indexing service that executes queries, plus a SQLite
// implementation over the local index.
package backend

import "context"

// Handle identifies one executed query whose rows can be fetched in
// batches. A handle must be released exactly once; releasing again is a
// no-op.
type Handle uint64

// ReuseToken names the materialised match set of a previously executed
// query. A query that carries the token is evaluated only over that set.
type ReuseToken uint64

// NoReuseToken means "no narrowing scope available".
const NoReuseToken ReuseToken = 0

// Backend executes query strings and serves their rows.
type Backend interface {
	// ExecuteQuery runs query and returns a handle positioned before the
	// first row. Failures are reported as *ExecutionError.
	ExecuteQuery(ctx context.Context, query string) (Handle, error)

	// FetchBatch returns up to maxRows rows. last is true once the result
	// set is exhausted; an empty batch also means exhaustion. Failures are
	// reported as *FetchError.
	FetchBatch(ctx context.Context, h Handle, maxRows int) (rows []Row, last bool, err error)

	// GetReuseToken extracts the token of an executed query. Returns an
	// error wrapping ErrReuseUnsupported when the backend cannot narrow.
	GetReuseToken(h Handle) (ReuseToken, error)

	// ReleaseHandle frees the handle. Idempotent.
	ReleaseHandle(h Handle)
}

// TokenChecker is implemented by backends whose reuse tokens go stale when
// the index changes underneath them. A stale token may miss items that a
// fresh query would return, so callers re-prime instead of narrowing.
type TokenChecker interface {
	TokenValid(ctx context.Context, token ReuseToken) (bool, error)
}
