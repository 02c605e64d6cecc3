// Package storetest provides a Fixture for tests that need an index
// populated with files, folders and mail.
package storetest

import (
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesm/livefind/internal/store"
	"github.com/wesm/livefind/internal/testutil"
)

// BaseTime is the modification time given to fixture items unless set.
var BaseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// Fixture holds a fresh index database.
type Fixture struct {
	T     *testing.T
	Store *store.Store
	seq   atomic.Int64
}

// New creates a Fixture with an empty index.
func New(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{T: t, Store: testutil.NewTestStore(t)}
}

// Add writes items and returns them with their assigned ids.
func (f *Fixture) Add(items ...store.Item) []store.Item {
	f.T.Helper()
	for i := range items {
		if items[i].DateModified.IsZero() {
			items[i].DateModified = BaseTime
		}
	}
	testutil.MustNoErr(f.T, f.Store.UpsertItems(items), "Add")
	for i := range items {
		got, err := f.Store.GetItemByURL(items[i].URL)
		testutil.MustNoErr(f.T, err, "Add: GetItemByURL")
		items[i].ID = got.ID
	}
	return items
}

// File adds a file at the slash path p with the given rank.
func (f *Fixture) File(p string, rank int64) store.Item {
	f.T.Helper()
	ext := strings.ToLower(path.Ext(p))
	return f.Add(store.Item{
		URL:         "file:" + p,
		DisplayName: path.Base(p),
		Scope:       store.ScopeFile,
		Kind:        "document",
		KindText:    "Document",
		Extension:   ext,
		Root:        path.Dir(p),
		Rank:        rank,
	})[0]
}

// Folder adds a folder at the slash path p.
func (f *Fixture) Folder(p string, rank int64) store.Item {
	f.T.Helper()
	return f.Add(store.Item{
		URL:         "file:" + p,
		DisplayName: path.Base(p),
		Scope:       store.ScopeFile,
		Kind:        "folder",
		KindText:    "Folder",
		Root:        path.Dir(p),
		Rank:        rank,
	})[0]
}

// Mail adds a message to mailbox with the given subject and body.
func (f *Fixture) Mail(mailbox, subject, body string) store.Item {
	f.T.Helper()
	n := f.seq.Add(1)
	return f.Add(store.Item{
		URL:         "mapi://" + mailbox + "/msg-" + strconv.FormatInt(n, 10),
		DisplayName: subject,
		Scope:       store.ScopeMail,
		Kind:        "email",
		KindText:    "Mail Message",
		Root:        mailbox,
		Content:     subject + "\n" + body,
	})[0]
}
