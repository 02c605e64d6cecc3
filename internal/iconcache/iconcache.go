// Package iconcache maps search results to display glyphs.
package iconcache

import (
	"mime"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize bounds the number of distinct extensions remembered.
const DefaultSize = 512

// Icon is the glyph and colour drawn next to a result.
type Icon struct {
	Glyph string
	Color string // lipgloss colour, ANSI 256 index
}

var (
	folderIcon = Icon{Glyph: "▸", Color: "33"}
	mailIcon   = Icon{Glyph: "✉", Color: "214"}
	fileIcon   = Icon{Glyph: "·", Color: "245"}
)

// category icons keyed by the major MIME type or a well-known extension.
var (
	mimeIcons = map[string]Icon{
		"image": {Glyph: "▣", Color: "141"},
		"audio": {Glyph: "♪", Color: "176"},
		"video": {Glyph: "▶", Color: "170"},
		"text":  {Glyph: "≡", Color: "252"},
	}
	extIcons = map[string]Icon{
		".pdf":  {Glyph: "▤", Color: "160"},
		".zip":  {Glyph: "◫", Color: "136"},
		".gz":   {Glyph: "◫", Color: "136"},
		".tar":  {Glyph: "◫", Color: "136"},
		".7z":   {Glyph: "◫", Color: "136"},
		".go":   {Glyph: "λ", Color: "81"},
		".exe":  {Glyph: "⚙", Color: "203"},
		".doc":  {Glyph: "▤", Color: "69"},
		".docx": {Glyph: "▤", Color: "69"},
		".xls":  {Glyph: "▦", Color: "70"},
		".xlsx": {Glyph: "▦", Color: "70"},
		".eml":  mailIcon,
		".emlx": mailIcon,
		".mbox": mailIcon,
	}
)

// Cache memoises the icon for each extension. It is safe for concurrent
// use.
type Cache struct {
	mu     sync.Mutex
	icons  *lru.Cache[string, Icon]
	hits   int
	misses int
}

// New creates a cache holding up to size extensions (DefaultSize if size
// is not positive).
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	icons, err := lru.New[string, Icon](size)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Cache{icons: icons}
}

// Folder returns the folder icon.
func (c *Cache) Folder() Icon { return folderIcon }

// Mail returns the mail message icon.
func (c *Cache) Mail() Icon { return mailIcon }

// ForExtension returns the icon for a file extension such as ".txt".
// Lookups are case-insensitive.
func (c *Cache) ForExtension(ext string) Icon {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if icon, ok := c.icons.Get(ext); ok {
		c.hits++
		return icon
	}
	c.misses++
	icon := resolve(ext)
	c.icons.Add(ext, icon)
	return icon
}

// For picks the icon for a result.
func (c *Cache) For(isFolder, isMail bool, ext string) Icon {
	switch {
	case isFolder:
		return c.Folder()
	case isMail:
		return c.Mail()
	default:
		return c.ForExtension(ext)
	}
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached extensions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.icons.Len()
}

func resolve(ext string) Icon {
	if ext == "" {
		return fileIcon
	}
	if icon, ok := extIcons[ext]; ok {
		return icon
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		major, _, _ := strings.Cut(mt, "/")
		if icon, ok := mimeIcons[major]; ok {
			return icon
		}
	}
	return fileIcon
}
