package indexer

import (
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wesm/livefind/internal/store"
)

// Kinds assigned to file system items.
const (
	KindFolder   = "folder"
	KindDocument = "document"
	KindText     = "text"
	KindPicture  = "picture"
	KindMusic    = "music"
	KindVideo    = "video"
	KindArchive  = "archive"
	KindProgram  = "program"
	KindOther    = "other"

	FolderKindText = "Folder"
)

type kindInfo struct {
	kind string
	text string
}

var extKinds = map[string]kindInfo{
	".pdf":  {KindDocument, "PDF Document"},
	".doc":  {KindDocument, "Word Document"},
	".docx": {KindDocument, "Word Document"},
	".odt":  {KindDocument, "OpenDocument Text"},
	".rtf":  {KindDocument, "Rich Text Document"},
	".xls":  {KindDocument, "Spreadsheet"},
	".xlsx": {KindDocument, "Spreadsheet"},
	".ppt":  {KindDocument, "Presentation"},
	".pptx": {KindDocument, "Presentation"},
	".txt":  {KindText, "Text Document"},
	".md":   {KindText, "Markdown Document"},
	".csv":  {KindText, "CSV File"},
	".log":  {KindText, "Log File"},
	".json": {KindText, "JSON File"},
	".xml":  {KindText, "XML Document"},
	".html": {KindText, "HTML Document"},
	".htm":  {KindText, "HTML Document"},
	".go":   {KindText, "Go Source File"},
	".py":   {KindText, "Python Source File"},
	".c":    {KindText, "C Source File"},
	".h":    {KindText, "C Header File"},
	".js":   {KindText, "JavaScript File"},
	".ts":   {KindText, "TypeScript File"},
	".sh":   {KindText, "Shell Script"},
	".toml": {KindText, "TOML File"},
	".yaml": {KindText, "YAML File"},
	".yml":  {KindText, "YAML File"},
	".zip":  {KindArchive, "ZIP Archive"},
	".tar":  {KindArchive, "TAR Archive"},
	".gz":   {KindArchive, "GZip Archive"},
	".7z":   {KindArchive, "7-Zip Archive"},
	".exe":  {KindProgram, "Application"},
	".app":  {KindProgram, "Application"},
	".eml":  {MailKind, "Mail File"},
	".emlx": {MailKind, "Mail File"},
	".mbox": {MailKind, "Mailbox File"},
}

// classify returns the kind and kind text for a file extension.
func classify(ext string) (kind, text string) {
	ext = strings.ToLower(ext)
	if k, ok := extKinds[ext]; ok {
		return k.kind, k.text
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		major, _, _ := strings.Cut(mt, "/")
		switch major {
		case "image":
			return KindPicture, "Image"
		case "audio":
			return KindMusic, "Audio File"
		case "video":
			return KindVideo, "Video File"
		case "text":
			return KindText, "Text Document"
		}
	}
	if ext == "" {
		return KindOther, "File"
	}
	return KindOther, strings.ToUpper(ext[1:]) + " File"
}

// fileItem builds the item for a file or folder found under root.
func fileItem(root, path string, info fs.FileInfo, depth int, now time.Time) store.Item {
	it := store.Item{
		URL:          FileURL(path),
		DisplayName:  info.Name(),
		Scope:        store.ScopeFile,
		Root:         root,
		DateModified: info.ModTime(),
	}
	if info.IsDir() {
		it.Kind, it.KindText = KindFolder, FolderKindText
	} else {
		it.Extension = strings.ToLower(filepath.Ext(info.Name()))
		it.Kind, it.KindText = classify(it.Extension)
		it.Size = info.Size()
	}
	it.Rank = rank(depth, info.ModTime(), now, info.IsDir())
	return it
}

// FileURL builds the canonical URL of a local path.
func FileURL(path string) string {
	return "file:" + filepath.ToSlash(path)
}

// readContent returns the text of a file of kind text, up to limit bytes.
// Binary files and other kinds yield "".
func readContent(path, kind string, limit int64) (string, error) {
	if kind != KindText || limit <= 0 {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", err
	}
	if looksBinary(data) {
		return "", nil
	}
	return decodeText(data), nil
}

// rank scores an item: shallow paths first, then recent modifications.
// Folders get a small boost so a directory outranks its namesake files.
func rank(depth int, modified, now time.Time, isDir bool) int64 {
	r := int64(max(0, 100-10*depth))
	switch age := now.Sub(modified); {
	case age < 7*24*time.Hour:
		r += 30
	case age < 30*24*time.Hour:
		r += 20
	case age < 365*24*time.Hour:
		r += 10
	}
	if isDir {
		r += 5
	}
	return r
}
