package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Item scopes.
const (
	ScopeFile = "file"
	ScopeMail = "mail"
)

// Item is one indexed file, folder or mail message.
type Item struct {
	ID           int64
	URL          string // file:/abs/path or mapi://mailbox/message-id
	DisplayName  string
	Scope        string
	Kind         string
	KindText     string
	Extension    string
	Root         string
	Content      string
	Rank         int64
	Size         int64
	DateModified time.Time
	GatherTime   time.Time
}

const upsertItemSQL = `
	INSERT INTO items (item_url, display_name, scope, kind, kind_text, extension, root,
		content, rank, size, date_modified, gather_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(item_url) DO UPDATE SET
		display_name = excluded.display_name,
		scope = excluded.scope,
		kind = excluded.kind,
		kind_text = excluded.kind_text,
		extension = excluded.extension,
		root = excluded.root,
		content = excluded.content,
		rank = excluded.rank,
		size = excluded.size,
		date_modified = excluded.date_modified,
		gather_time = excluded.gather_time`

// UpsertItems inserts or updates items keyed by URL inside one transaction.
// Existing rows keep their id so materialised scopes stay valid.
func (s *Store) UpsertItems(items []Item) error {
	if len(items) == 0 {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(upsertItemSQL)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, it := range items {
			if it.URL == "" {
				return fmt.Errorf("upsert item %q: empty url", it.DisplayName)
			}
			if _, err := stmt.Exec(
				it.URL, it.DisplayName, it.Scope, it.Kind, it.KindText, it.Extension, it.Root,
				it.Content, it.Rank, it.Size, unixOrZero(it.DateModified), unixOrZero(it.GatherTime),
			); err != nil {
				return fmt.Errorf("upsert item %s: %w", it.URL, err)
			}
		}
		return bumpGeneration(tx)
	})
}

// DeleteStale removes items of root that were not seen by the crawl that
// started at gatheredAt. Returns the number of rows removed.
func (s *Store) DeleteStale(root string, gatheredAt time.Time) (int64, error) {
	var n int64
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM items WHERE root = ? AND gather_time < ?`, root, gatheredAt.Unix())
		if err != nil {
			return fmt.Errorf("delete stale items: %w", err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("delete stale items: %w", err)
		}
		if n == 0 {
			return nil
		}
		return bumpGeneration(tx)
	})
	return n, err
}

// GetItemByURL looks up a single item. Returns nil, nil when absent.
func (s *Store) GetItemByURL(url string) (*Item, error) {
	var it Item
	var modified, gathered int64
	err := s.db.QueryRow(`
		SELECT id, item_url, display_name, scope, kind, kind_text, extension, root,
			content, rank, size, date_modified, gather_time
		FROM items WHERE item_url = ?`, url).Scan(
		&it.ID, &it.URL, &it.DisplayName, &it.Scope, &it.Kind, &it.KindText, &it.Extension, &it.Root,
		&it.Content, &it.Rank, &it.Size, &modified, &gathered,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	it.DateModified = time.Unix(modified, 0)
	it.GatherTime = time.Unix(gathered, 0)
	return &it, nil
}

// Columns lists the item properties a query may select, in table order.
func (s *Store) Columns() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info('items') ORDER BY cid`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
