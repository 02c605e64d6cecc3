package search

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ProfileScope computes which user profile directories are excluded when
// all-users search is off: every directory under the profiles root except
// the current user's own. The list is computed once and cached.
type ProfileScope struct {
	root string
	self string

	once     sync.Once
	excluded []string
}

// NewProfileScope creates a scope for profiles under root, keeping self.
// An empty self uses the current user's home directory.
func NewProfileScope(root, self string) *ProfileScope {
	if self == "" {
		if home, err := os.UserHomeDir(); err == nil {
			self = home
		}
	}
	return &ProfileScope{root: root, self: self}
}

// Excluded returns the slash-separated absolute paths of other users'
// profiles, sorted. An unreadable root yields no exclusions.
func (p *ProfileScope) Excluded() []string {
	p.once.Do(func() {
		if p.root == "" {
			return
		}
		entries, err := os.ReadDir(p.root)
		if err != nil {
			slog.Debug("profiles root not readable", "root", p.root, "error", err)
			return
		}
		self := filepath.Clean(p.self)
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(p.root, e.Name())
			if dir == self {
				continue
			}
			p.excluded = append(p.excluded, filepath.ToSlash(dir))
		}
		sort.Strings(p.excluded)
	})
	return p.excluded
}
