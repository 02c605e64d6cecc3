package livesearch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/livefind/internal/backend"
	"github.com/wesm/livefind/internal/backend/backendtest"
)

func TestRecordFromRow(t *testing.T) {
	tests := []struct {
		name string
		row  backend.Row
		want ResultRecord
	}{
		{
			name: "file",
			row:  backendtest.FileRow("a.txt", "/home/me/a.txt"),
			want: ResultRecord{
				DisplayName:  "a.txt",
				CanonicalURL: "file:/home/me/a.txt",
				LaunchTarget: filepath.FromSlash("/home/me/a.txt"),
				Kind:         "document",
				Displayable:  true,
			},
		},
		{
			name: "folder",
			row:  backendtest.FolderRow("docs", "/home/me/docs"),
			want: ResultRecord{
				DisplayName:  "docs",
				CanonicalURL: "file:/home/me/docs",
				LaunchTarget: filepath.FromSlash("/home/me/docs"),
				Kind:         "folder",
				IsFolder:     true,
				Displayable:  true,
			},
		},
		{
			name: "mail",
			row:  backendtest.MailRow("Lunch?", "mapi://inbox/<id@x>"),
			want: ResultRecord{
				DisplayName:  "Lunch?",
				CanonicalURL: "mapi://inbox/<id@x>",
				LaunchTarget: "mapi://inbox/<id@x>",
				Kind:         "email",
				IsMail:       true,
				Displayable:  true,
			},
		},
		{
			name: "missing kind text is not a folder",
			row: backend.Row{
				backend.PropDisplayName: "x",
				backend.PropItemURL:     "file:/x",
			},
			want: ResultRecord{
				DisplayName:  "x",
				CanonicalURL: "file:/x",
				LaunchTarget: filepath.FromSlash("/x"),
				Displayable:  true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecordFromRow(tt.row)
			if err != nil {
				t.Fatalf("RecordFromRow: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecordFromRowConversionErrors(t *testing.T) {
	rows := map[string]backend.Row{
		"missing name": {backend.PropItemURL: "file:/x"},
		"missing url":  {backend.PropDisplayName: "x"},
		"numeric name": {backend.PropDisplayName: int64(3), backend.PropItemURL: "file:/x"},
		"numeric kind": {backend.PropDisplayName: "x", backend.PropItemURL: "file:/x", backend.PropKindText: int64(1)},
	}
	for name, row := range rows {
		t.Run(name, func(t *testing.T) {
			_, err := RecordFromRow(row)
			var convErr *backend.RowConversionError
			if !errors.As(err, &convErr) {
				t.Fatalf("err = %v, want *RowConversionError", err)
			}
		})
	}
}

func TestURLToFilePath(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"file:/home/me/a.txt", filepath.FromSlash("/home/me/a.txt"), true},
		{"file:///home/me/a.txt", filepath.FromSlash("/home/me/a.txt"), true},
		{"file:C:/Users/me/a.txt", filepath.FromSlash("C:/Users/me/a.txt"), true},
		{"mapi://inbox/1", "mapi://inbox/1", false},
		{"MAPI16://{S-1}/inbox/1", "MAPI16://{S-1}/inbox/1", false},
		{"file:", "file:", false},
		{"https://example.com/x", "https://example.com/x", false},
	}
	for _, tt := range tests {
		got, ok := URLToFilePath(tt.url)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("URLToFilePath(%q) = %q, %v; want %q, %v", tt.url, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestDisplayFilter(t *testing.T) {
	missing := filepath.FromSlash("/gone/b.txt")
	policy := DisplayPolicy{
		CheckPaths: true,
		Stat: func(name string) (os.FileInfo, error) {
			if name == missing {
				return nil, fs.ErrNotExist
			}
			return nil, nil
		},
	}
	f := policy.newFilter()

	recs := []ResultRecord{
		{DisplayName: "a.txt", CanonicalURL: "file:/a.txt", LaunchTarget: "/a.txt"},
		{DisplayName: "a.txt", CanonicalURL: "file:/a.txt", LaunchTarget: "/a.txt"},
		{DisplayName: "b.txt", CanonicalURL: "file:/gone/b.txt", LaunchTarget: missing},
		{DisplayName: "  ", CanonicalURL: "file:/c", LaunchTarget: "/c"},
		{DisplayName: "mail", CanonicalURL: "mapi://x/1", LaunchTarget: "mapi://x/1", IsMail: true},
	}
	var admitted []string
	for i := range recs {
		if f.admit(&recs[i]) {
			admitted = append(admitted, recs[i].CanonicalURL)
		}
	}
	if diff := cmp.Diff([]string{"file:/a.txt", "mapi://x/1"}, admitted); diff != "" {
		t.Errorf("admitted mismatch (-want +got):\n%s", diff)
	}
	if recs[1].Displayable {
		t.Error("duplicate record marked displayable")
	}
}
