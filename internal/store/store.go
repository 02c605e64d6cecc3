// Package store provides database access for the livefind index.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/wesm/livefind/internal/fileutil"
)

//go:embed schema.sql schema_sqlite.sql
var schemaFS embed.FS

// Store provides database operations for the index.
type Store struct {
	db            *sql.DB
	dbPath        string
	fts5Available bool // Whether FTS5 is available for full-text search
}

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
// Handles both value (sqlite3.Error) and pointer (*sqlite3.Error) forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// Open opens or creates the index database at the given path.
func Open(dbPath string) (*Store, error) {
	if strings.Contains(dbPath, "://") {
		return nil, fmt.Errorf("unsupported database URL %q: only SQLite paths are supported", dbPath)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, f := range fileutil.IndexFiles(dbPath) {
		if err := fileutil.RestrictFile(f); err != nil {
			db.Close()
			return nil, fmt.Errorf("restrict database file: %w", err)
		}
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for the query backend.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// FTSAvailable reports whether the items_fts table was created.
// Only meaningful after InitSchema.
func (s *Store) FTSAvailable() bool {
	return s.fts5Available
}

// withTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// InitSchema creates all tables if they don't exist. The FTS5 part is
// optional; when the driver was built without fts5 the store runs in
// LIKE mode.
func (s *Store) InitSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}

	if err := s.ensureColumn("scopes", "generation", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	sqliteSchema, err := schemaFS.ReadFile("schema_sqlite.sql")
	if err != nil {
		return fmt.Errorf("read schema_sqlite.sql: %w", err)
	}

	if _, err := s.db.Exec(string(sqliteSchema)); err != nil {
		if isSQLiteError(err, "no such module: fts5") {
			s.fts5Available = false
		} else {
			return fmt.Errorf("init fts5 schema: %w", err)
		}
	} else {
		s.fts5Available = true
	}

	return nil
}

// ensureColumn adds a column to an index created before the column existed.
func (s *Store) ensureColumn(table, column, decl string) error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

// Generation returns the index generation. It increases with every change
// to the items table made through the store.
func (s *Store) Generation() (int64, error) {
	var gen int64
	if err := s.db.QueryRow(`SELECT generation FROM index_state WHERE id = 1`).Scan(&gen); err != nil {
		return 0, fmt.Errorf("read index generation: %w", err)
	}
	return gen, nil
}

// bumpGeneration marks the index changed; scopes materialised earlier stop
// narrowing queries.
func bumpGeneration(tx *sql.Tx) error {
	if _, err := tx.Exec(`UPDATE index_state SET generation = generation + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("bump index generation: %w", err)
	}
	return nil
}

// Stats holds index statistics.
type Stats struct {
	ItemCount    int64 `json:"item_count"`
	FileCount    int64 `json:"file_count"`
	FolderCount  int64 `json:"folder_count"`
	MailCount    int64 `json:"mail_count"`
	RootCount    int64 `json:"root_count"`
	ScopeCount   int64 `json:"scope_count"` // live reuse scopes
	Generation   int64 `json:"generation"`
	DatabaseSize int64 `json:"database_size_bytes"`
	FTSEnabled   bool  `json:"fts_enabled"`
}

// GetStats returns statistics about the index.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{FTSEnabled: s.fts5Available}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM items", &stats.ItemCount},
		{"SELECT COUNT(*) FROM items WHERE scope = 'file' AND kind != 'folder'", &stats.FileCount},
		{"SELECT COUNT(*) FROM items WHERE kind = 'folder'", &stats.FolderCount},
		{"SELECT COUNT(*) FROM items WHERE scope = 'mail'", &stats.MailCount},
		{"SELECT COUNT(DISTINCT root) FROM items", &stats.RootCount},
		{"SELECT COUNT(DISTINCT where_id) FROM scope_rows", &stats.ScopeCount},
		{"SELECT generation FROM index_state WHERE id = 1", &stats.Generation},
	}

	for _, q := range queries {
		if err := s.db.QueryRow(q.query).Scan(q.dest); err != nil {
			if isSQLiteError(err, "no such table") {
				continue
			}
			return nil, fmt.Errorf("get stats %q: %w", q.query, err)
		}
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}
