package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultScopeRetention is the number of materialised scopes kept alive
// per backend before the least recently used one is dropped.
const DefaultScopeRetention = 256

// orphanScopeAge is how old a scope left behind by a dead process must be
// before a new backend deletes it.
const orphanScopeAge = 24 * time.Hour

const cursorSQL = `
	SELECT i.id, i.item_url, i.display_name, i.scope, i.kind, i.kind_text, i.extension,
		i.root, i.rank, i.size, i.date_modified, i.gather_time,
		length(i.content) AS content_length, s.seq
	FROM scope_rows s
	JOIN items i ON i.id = s.item_id
	WHERE s.where_id = ? AND s.seq > ? AND s.seq <= ?
	ORDER BY s.seq`

// SQLiteBackend executes query strings against the index database.
//
// Executing a query materialises its ordered id list into scope_rows under
// a fresh where_id. Fetching pages through that list, and the where_id
// doubles as the reuse token: a later query restricted to
// "id IN (SELECT item_id FROM scope_rows WHERE where_id = N)" only
// examines the earlier match set.
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger

	mu         sync.Mutex
	nextHandle Handle
	cursors    map[Handle]*cursor
	scopes     *lru.Cache[ReuseToken, struct{}]
	evicted    []ReuseToken        // filled by the eviction callback; mu held
	doomed     map[ReuseToken]bool // evicted while a cursor still reads them
	retention  int
}

// cursor pages through a scope by sequence window. Items deleted since
// execution drop out of the join, so a window may yield fewer rows than
// its width.
type cursor struct {
	whereID ReuseToken
	total   int64
	lastSeq int64
}

// SQLiteOption configures a SQLiteBackend.
type SQLiteOption func(*SQLiteBackend)

// WithScopeRetention sets how many reuse scopes are kept.
func WithScopeRetention(n int) SQLiteOption {
	return func(b *SQLiteBackend) {
		if n > 0 {
			b.retention = n
		}
	}
}

// WithLogger sets the logger for the backend.
func WithLogger(logger *slog.Logger) SQLiteOption {
	return func(b *SQLiteBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewSQLiteBackend creates a backend over an index database whose schema
// is already initialised.
func NewSQLiteBackend(db *sql.DB, opts ...SQLiteOption) (*SQLiteBackend, error) {
	b := &SQLiteBackend{
		db:        db,
		logger:    slog.Default(),
		cursors:   make(map[Handle]*cursor),
		doomed:    make(map[ReuseToken]bool),
		retention: DefaultScopeRetention,
	}
	for _, opt := range opts {
		opt(b)
	}

	scopes, err := lru.NewWithEvict[ReuseToken, struct{}](b.retention, func(token ReuseToken, _ struct{}) {
		b.evicted = append(b.evicted, token)
	})
	if err != nil {
		return nil, fmt.Errorf("create scope cache: %w", err)
	}
	b.scopes = scopes

	if err := b.dropOrphans(); err != nil {
		b.logger.Warn("failed to drop orphaned scopes", "error", err)
	}
	return b, nil
}

// ExecuteQuery runs query, which must select the item id as a column named
// "id", and materialises the ordered ids as a new scope.
func (b *SQLiteBackend) ExecuteQuery(ctx context.Context, query string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, &ExecutionError{Query: query, Err: err}
	}

	// Read before the match set so a concurrent index change leaves the
	// scope marked stale rather than current and incomplete.
	gen, err := b.generation(ctx)
	if err != nil {
		return 0, &ExecutionError{Query: query, Err: err}
	}

	ids, err := b.collectIDs(ctx, query)
	if err != nil {
		return 0, &ExecutionError{Query: query, Err: err}
	}

	whereID, err := b.materialise(ctx, ids, gen)
	if err != nil {
		return 0, &ExecutionError{Query: query, Err: err}
	}

	b.mu.Lock()
	b.nextHandle++
	h := b.nextHandle
	b.cursors[h] = &cursor{whereID: whereID, total: int64(len(ids))}
	b.scopes.Add(whereID, struct{}{})
	drop := b.takeEvictedLocked()
	b.mu.Unlock()

	b.deleteScopes(drop)
	b.logger.Debug("query executed", "handle", h, "where_id", whereID, "rows", len(ids))
	return h, nil
}

func (b *SQLiteBackend) collectIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	idIdx := -1
	for i, c := range cols {
		if strings.EqualFold(c, PropID) {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("query does not select an %q column", PropID)
	}

	dest := make([]any, len(cols))
	holders := make([]any, len(cols))
	for i := range dest {
		dest[i] = &holders[i]
	}

	var ids []int64
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		id, ok := holders[idIdx].(int64)
		if !ok {
			return nil, fmt.Errorf("id column has type %T", holders[idIdx])
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *SQLiteBackend) generation(ctx context.Context) (int64, error) {
	var gen int64
	if err := b.db.QueryRowContext(ctx, `SELECT generation FROM index_state WHERE id = 1`).Scan(&gen); err != nil {
		return 0, fmt.Errorf("read index generation: %w", err)
	}
	return gen, nil
}

// materialise allocates a where_id and stores ids under it, in order,
// tagged with the index generation they were read at.
func (b *SQLiteBackend) materialise(ctx context.Context, ids []int64, gen int64) (ReuseToken, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO scopes (created_at, generation) VALUES (?, ?)`, time.Now().Unix(), gen)
	if err != nil {
		return 0, fmt.Errorf("allocate scope: %w", err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("allocate scope: %w", err)
	}
	whereID := ReuseToken(lastID)

	// SQLite's default variable limit is 999; three per row.
	const chunk = 300
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		values := make([]string, 0, end-start)
		args := make([]any, 0, 3*(end-start))
		for i := start; i < end; i++ {
			values = append(values, "(?, ?, ?)")
			args = append(args, int64(whereID), int64(i+1), ids[i])
		}
		q := "INSERT INTO scope_rows (where_id, seq, item_id) VALUES " + strings.Join(values, ",")
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, fmt.Errorf("store scope rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit scope: %w", err)
	}
	return whereID, nil
}

// FetchBatch returns the next page of rows for h.
func (b *SQLiteBackend) FetchBatch(ctx context.Context, h Handle, maxRows int) ([]Row, bool, error) {
	if maxRows <= 0 {
		return nil, false, &FetchError{Handle: h, Err: fmt.Errorf("invalid batch size %d", maxRows)}
	}

	b.mu.Lock()
	c, ok := b.cursors[h]
	var cur cursor
	if ok {
		cur = *c
	}
	b.mu.Unlock()

	if !ok {
		return nil, false, &FetchError{Handle: h, Err: ErrUnknownHandle}
	}

	var batch []Row
	for len(batch) == 0 && cur.lastSeq < cur.total {
		if err := ctx.Err(); err != nil {
			return nil, false, &FetchError{Handle: h, Err: err}
		}
		upper := cur.lastSeq + int64(maxRows)
		rows, err := b.fetchWindow(ctx, cur.whereID, cur.lastSeq, upper)
		if err != nil {
			return nil, false, &FetchError{Handle: h, Err: err}
		}
		batch = rows
		cur.lastSeq = upper
	}
	last := cur.lastSeq >= cur.total

	b.mu.Lock()
	if c, ok := b.cursors[h]; ok {
		c.lastSeq = cur.lastSeq
	}
	b.mu.Unlock()

	return batch, last, nil
}

func (b *SQLiteBackend) fetchWindow(ctx context.Context, whereID ReuseToken, after, upTo int64) ([]Row, error) {
	rows, err := b.db.QueryContext(ctx, cursorSQL, int64(whereID), after, upTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []Row
	for rows.Next() {
		var id, rank, size, modified, gathered, contentLen, seq int64
		var url, name, scope, kind, kindText, ext, root string
		if err := rows.Scan(&id, &url, &name, &scope, &kind, &kindText, &ext,
			&root, &rank, &size, &modified, &gathered, &contentLen, &seq); err != nil {
			return nil, err
		}
		batch = append(batch, Row{
			PropID:            id,
			PropItemURL:       url,
			PropDisplayName:   name,
			PropScope:         scope,
			PropKind:          kind,
			PropKindText:      kindText,
			PropExtension:     ext,
			PropRoot:          root,
			PropRank:          rank,
			PropSize:          size,
			PropDateModified:  modified,
			PropGatherTime:    gathered,
			PropContentLength: contentLen,
		})
	}
	return batch, rows.Err()
}

// GetReuseToken returns the where_id of h and marks it recently used.
func (b *SQLiteBackend) GetReuseToken(h Handle) (ReuseToken, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.cursors[h]
	if !ok {
		return NoReuseToken, fmt.Errorf("reuse token for handle %d: %w", h, ErrUnknownHandle)
	}
	if b.doomed[c.whereID] {
		return NoReuseToken, fmt.Errorf("reuse token for handle %d: scope %d already evicted", h, c.whereID)
	}
	b.scopes.Get(c.whereID)
	return c.whereID, nil
}

// TokenValid reports whether token still names a scope built at the
// current index generation.
func (b *SQLiteBackend) TokenValid(ctx context.Context, token ReuseToken) (bool, error) {
	if token == NoReuseToken {
		return false, nil
	}
	var ok bool
	err := b.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM scopes s JOIN index_state g ON s.generation = g.generation
			WHERE s.where_id = ?)`, int64(token)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check reuse token %d: %w", token, err)
	}
	return ok, nil
}

// ReleaseHandle drops the cursor for h. The scope itself stays until it is
// evicted, so its token remains usable.
func (b *SQLiteBackend) ReleaseHandle(h Handle) {
	b.mu.Lock()
	c, ok := b.cursors[h]
	delete(b.cursors, h)
	var drop []ReuseToken
	if ok && b.doomed[c.whereID] && !b.inUseLocked(c.whereID) {
		delete(b.doomed, c.whereID)
		drop = append(drop, c.whereID)
	}
	b.mu.Unlock()

	b.deleteScopes(drop)
}

// OpenHandles returns the number of unreleased handles.
func (b *SQLiteBackend) OpenHandles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cursors)
}

// Close drops every scope this backend created. Outstanding handles become
// invalid.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	b.scopes.Purge()
	drop := b.evicted
	b.evicted = nil
	for token := range b.doomed {
		drop = append(drop, token)
	}
	b.doomed = make(map[ReuseToken]bool)
	b.cursors = make(map[Handle]*cursor)
	b.mu.Unlock()

	return b.deleteScopesErr(drop)
}

// takeEvictedLocked returns evicted scopes that can be deleted now and
// defers the ones a cursor still reads.
func (b *SQLiteBackend) takeEvictedLocked() []ReuseToken {
	var drop []ReuseToken
	for _, token := range b.evicted {
		if b.inUseLocked(token) {
			b.doomed[token] = true
			continue
		}
		drop = append(drop, token)
	}
	b.evicted = nil
	return drop
}

func (b *SQLiteBackend) inUseLocked(token ReuseToken) bool {
	for _, c := range b.cursors {
		if c.whereID == token {
			return true
		}
	}
	return false
}

func (b *SQLiteBackend) deleteScopes(tokens []ReuseToken) {
	if err := b.deleteScopesErr(tokens); err != nil {
		b.logger.Warn("failed to delete evicted scopes", "error", err)
	}
}

func (b *SQLiteBackend) deleteScopesErr(tokens []ReuseToken) error {
	for _, token := range tokens {
		if _, err := b.db.Exec(`DELETE FROM scope_rows WHERE where_id = ?`, int64(token)); err != nil {
			return fmt.Errorf("delete scope %d: %w", token, err)
		}
		if _, err := b.db.Exec(`DELETE FROM scopes WHERE where_id = ?`, int64(token)); err != nil {
			return fmt.Errorf("delete scope %d: %w", token, err)
		}
		b.logger.Debug("scope dropped", "where_id", token)
	}
	return nil
}

func (b *SQLiteBackend) dropOrphans() error {
	cutoff := time.Now().Add(-orphanScopeAge).Unix()
	if _, err := b.db.Exec(`
		DELETE FROM scope_rows WHERE where_id IN (SELECT where_id FROM scopes WHERE created_at < ?)`,
		cutoff); err != nil {
		return err
	}
	_, err := b.db.Exec(`DELETE FROM scopes WHERE created_at < ?`, cutoff)
	return err
}

var (
	_ Backend      = (*SQLiteBackend)(nil)
	_ TokenChecker = (*SQLiteBackend)(nil)
)
