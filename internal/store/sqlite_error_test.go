package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
)

// nilSQLiteErr lets errors.As hand back a typed nil *sqlite3.Error.
type nilSQLiteErr struct{}

func (nilSQLiteErr) Error() string { return "typed nil" }

func (nilSQLiteErr) As(target any) bool {
	if ptr, ok := target.(**sqlite3.Error); ok {
		*ptr = nil
		return true
	}
	return false
}

func TestIsSQLiteError(t *testing.T) {
	constraint := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}

	tests := []struct {
		name   string
		err    error
		substr string
		want   bool
	}{
		{"wrapped value", fmt.Errorf("upsert: %w", constraint), "constraint failed", true},
		{"wrapped pointer", fmt.Errorf("upsert: %w", &constraint), "constraint failed", true},
		{"unrelated substring", fmt.Errorf("upsert: %w", constraint), "no such table", false},
		{"typed nil pointer", nilSQLiteErr{}, "any", false},
		{"plain error", errors.New("no such module: fts5"), "fts5", false},
		{"nil", nil, "anything", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteError(tt.err, tt.substr); got != tt.want {
				t.Errorf("isSQLiteError(%v, %q) = %v, want %v", tt.err, tt.substr, got, tt.want)
			}
		})
	}
}
