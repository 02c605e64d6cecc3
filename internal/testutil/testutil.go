// Package testutil provides test helpers for livefind tests.
//
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, ...)
//   - fs_helpers.go: file system fixtures (WriteFile, WriteTree)
//   - store.go: index database setup (NewTestStore)
package testutil
