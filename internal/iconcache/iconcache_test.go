package iconcache

import (
	"sync"
	"testing"
)

func TestForExtension(t *testing.T) {
	c := New(0)

	tests := []struct {
		ext  string
		want Icon
	}{
		{".pdf", extIcons[".pdf"]},
		{"PDF", extIcons[".pdf"]},
		{".png", mimeIcons["image"]},
		{".jpg", mimeIcons["image"]},
		{".eml", mailIcon},
		{"", fileIcon},
		{".nosuchext", fileIcon},
	}
	for _, tt := range tests {
		if got := c.ForExtension(tt.ext); got != tt.want {
			t.Errorf("ForExtension(%q) = %+v, want %+v", tt.ext, got, tt.want)
		}
	}
}

func TestFor(t *testing.T) {
	c := New(8)
	if got := c.For(true, false, ".txt"); got != c.Folder() {
		t.Errorf("folder = %+v", got)
	}
	if got := c.For(false, true, ""); got != c.Mail() {
		t.Errorf("mail = %+v", got)
	}
	if got := c.For(false, false, ".pdf"); got != extIcons[".pdf"] {
		t.Errorf("pdf = %+v", got)
	}
}

func TestCacheMemoises(t *testing.T) {
	c := New(2)
	c.ForExtension(".a")
	c.ForExtension(".A")
	c.ForExtension(".b")
	if hits, misses := c.Stats(); hits != 1 || misses != 2 {
		t.Errorf("Stats() = %d hits, %d misses; want 1, 2", hits, misses)
	}

	c.ForExtension(".c")
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	c.ForExtension(".a") // evicted, resolved again
	if _, misses := c.Stats(); misses != 4 {
		t.Errorf("misses = %d, want 4", misses)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New(4)
	exts := []string{".txt", ".pdf", ".png", ".go", ".zip", ".mp4"}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				c.ForExtension(exts[i%len(exts)])
			}
		}()
	}
	wg.Wait()
	if hits, misses := c.Stats(); hits+misses != 1600 {
		t.Errorf("lookups = %d, want 1600", hits+misses)
	}
}
