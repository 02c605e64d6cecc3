// Package backendtest provides a scriptable backend.Backend for tests.
package backendtest

import (
	"context"
	"sync"

	"github.com/wesm/livefind/internal/backend"
)

// MockBackend implements backend.Backend with overridable behaviour. The
// zero value executes every query successfully with no rows. It records
// the executed queries and tracks how many handles are open at once.
type MockBackend struct {
	// ExecuteFunc runs before a handle is issued and may block until ctx
	// is done. A non-nil error fails the execution.
	ExecuteFunc func(ctx context.Context, query string) error
	// RowsFunc returns the rows a query produces.
	RowsFunc func(query string) []backend.Row
	// FetchFunc is consulted before each batch; batch counts from 0.
	FetchFunc func(ctx context.Context, query string, batch int) error
	// TokenFunc overrides token extraction. The default returns a token
	// equal to the handle.
	TokenFunc func(h backend.Handle) (backend.ReuseToken, error)
	// ValidFunc overrides TokenValid. The default reports every token
	// valid.
	ValidFunc func(token backend.ReuseToken) bool

	mu       sync.Mutex
	next     backend.Handle
	cursors  map[backend.Handle]*mockCursor
	queries  []string
	released []backend.Handle
	open     int
	maxOpen  int
}

type mockCursor struct {
	query   string
	rows    []backend.Row
	pos     int
	batches int
}

// ExecuteQuery implements backend.Backend.
func (m *MockBackend) ExecuteQuery(ctx context.Context, query string) (backend.Handle, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		if err := m.ExecuteFunc(ctx, query); err != nil {
			return 0, &backend.ExecutionError{Query: query, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, &backend.ExecutionError{Query: query, Err: err}
	}

	var rows []backend.Row
	if m.RowsFunc != nil {
		rows = m.RowsFunc(query)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursors == nil {
		m.cursors = make(map[backend.Handle]*mockCursor)
	}
	m.next++
	h := m.next
	m.cursors[h] = &mockCursor{query: query, rows: rows}
	m.open++
	m.maxOpen = max(m.maxOpen, m.open)
	return h, nil
}

// FetchBatch implements backend.Backend.
func (m *MockBackend) FetchBatch(ctx context.Context, h backend.Handle, maxRows int) ([]backend.Row, bool, error) {
	m.mu.Lock()
	c, ok := m.cursors[h]
	var query string
	var batch int
	if ok {
		query, batch = c.query, c.batches
		c.batches++
	}
	m.mu.Unlock()

	if !ok {
		return nil, false, &backend.FetchError{Handle: h, Err: backend.ErrUnknownHandle}
	}
	if m.FetchFunc != nil {
		if err := m.FetchFunc(ctx, query, batch); err != nil {
			return nil, false, &backend.FetchError{Handle: h, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, false, &backend.FetchError{Handle: h, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	end := min(c.pos+maxRows, len(c.rows))
	out := c.rows[c.pos:end]
	c.pos = end
	return out, c.pos >= len(c.rows), nil
}

// GetReuseToken implements backend.Backend.
func (m *MockBackend) GetReuseToken(h backend.Handle) (backend.ReuseToken, error) {
	if m.TokenFunc != nil {
		return m.TokenFunc(h)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cursors[h]; !ok {
		return backend.NoReuseToken, backend.ErrUnknownHandle
	}
	return backend.ReuseToken(h), nil
}

// TokenValid implements backend.TokenChecker.
func (m *MockBackend) TokenValid(ctx context.Context, token backend.ReuseToken) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.ValidFunc != nil {
		return m.ValidFunc(token), nil
	}
	return true, nil
}

// ReleaseHandle implements backend.Backend.
func (m *MockBackend) ReleaseHandle(h backend.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cursors[h]; !ok {
		return
	}
	delete(m.cursors, h)
	m.released = append(m.released, h)
	m.open--
}

// Queries returns every query string passed to ExecuteQuery, in order.
func (m *MockBackend) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Released returns released handles in release order.
func (m *MockBackend) Released() []backend.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]backend.Handle(nil), m.released...)
}

// OpenHandles returns the number of handles not yet released.
func (m *MockBackend) OpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// MaxOpenHandles returns the highest number of simultaneously open handles.
func (m *MockBackend) MaxOpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxOpen
}

var (
	_ backend.Backend      = (*MockBackend)(nil)
	_ backend.TokenChecker = (*MockBackend)(nil)
)

// FileRow builds a row for a file item.
func FileRow(name, path string) backend.Row {
	return backend.Row{
		backend.PropDisplayName: name,
		backend.PropItemURL:     "file:" + path,
		backend.PropKind:        "document",
		backend.PropKindText:    "Document",
	}
}

// FolderRow builds a row for a folder item.
func FolderRow(name, path string) backend.Row {
	return backend.Row{
		backend.PropDisplayName: name,
		backend.PropItemURL:     "file:" + path,
		backend.PropKind:        "folder",
		backend.PropKindText:    "Folder",
	}
}

// MailRow builds a row for a mail message.
func MailRow(subject, url string) backend.Row {
	return backend.Row{
		backend.PropDisplayName: subject,
		backend.PropItemURL:     url,
		backend.PropKind:        "email",
		backend.PropKindText:    "Mail Message",
	}
}
