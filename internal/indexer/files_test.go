package indexer

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		ext      string
		kind     string
		kindText string
	}{
		{".pdf", KindDocument, "PDF Document"},
		{".TXT", KindText, "Text Document"},
		{".go", KindText, "Go Source File"},
		{".png", KindPicture, "Image"},
		{".zip", KindArchive, "ZIP Archive"},
		{".eml", MailKind, "Mail File"},
		{".qqq", KindOther, "QQQ File"},
		{"", KindOther, "File"},
	}
	for _, tt := range tests {
		kind, text := classify(tt.ext)
		if kind != tt.kind || text != tt.kindText {
			t.Errorf("classify(%q) = %q, %q; want %q, %q", tt.ext, kind, text, tt.kind, tt.kindText)
		}
	}
}

func TestRank(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	if shallow, deep := rank(0, now, now, false), rank(3, now, now, false); shallow <= deep {
		t.Errorf("shallow rank %d <= deep rank %d", shallow, deep)
	}
	if recent, old := rank(1, now.Add(-day), now, false), rank(1, now.Add(-400*day), now, false); recent <= old {
		t.Errorf("recent rank %d <= old rank %d", recent, old)
	}
	if dir, file := rank(1, now, now, true), rank(1, now, now, false); dir <= file {
		t.Errorf("folder rank %d <= file rank %d", dir, file)
	}
	if r := rank(50, now.Add(-1000*day), now, false); r != 0 {
		t.Errorf("floor rank = %d, want 0", r)
	}
}

func TestFileURL(t *testing.T) {
	if got := FileURL("/home/me/a b.txt"); got != "file:/home/me/a b.txt" {
		t.Errorf("FileURL = %q", got)
	}
}
