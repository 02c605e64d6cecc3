package livesearch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/livefind/internal/backend"
)

// Options are the per-request search toggles.
type Options struct {
	ContentSearch  bool `json:"content_search"`
	MailSearch     bool `json:"mail_search"`
	AllUsersSearch bool `json:"all_users_search"`
}

func (o Options) String() string {
	return fmt.Sprintf("content=%t mail=%t all_users=%t", o.ContentSearch, o.MailSearch, o.AllUsersSearch)
}

// SearchRequest is one submission. Cookie is assigned by the coordinator
// and strictly increases across submissions.
type SearchRequest struct {
	Text    string
	Options Options
	Cookie  uint64
}

// ResultRecord is one displayable search hit.
type ResultRecord struct {
	DisplayName  string `json:"display_name"`
	CanonicalURL string `json:"url"`
	LaunchTarget string `json:"launch_target"`
	Kind         string `json:"kind,omitempty"`
	Extension    string `json:"extension,omitempty"`
	IsFolder     bool   `json:"is_folder"`
	IsMail       bool   `json:"is_mail"`
	Displayable  bool   `json:"-"`
}

// ResultSet is the ordered output of one completed query. It is not
// modified after it has been published.
type ResultSet struct {
	Cookie    uint64         `json:"cookie"`
	Text      string         `json:"text"`
	Records   []ResultRecord `json:"records"`
	Truncated bool           `json:"truncated,omitempty"`
}

// Len returns the number of records.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Records)
}

const folderKindText = "Folder"

// RecordFromRow maps a backend row to a record. display_name and item_url
// are required; a missing or mistyped value yields *backend.RowConversionError.
func RecordFromRow(r backend.Row) (ResultRecord, error) {
	name, err := r.String(backend.PropDisplayName)
	if err != nil {
		return ResultRecord{}, err
	}
	url, err := r.String(backend.PropItemURL)
	if err != nil {
		return ResultRecord{}, err
	}
	kindText, err := r.OptString(backend.PropKindText)
	if err != nil {
		return ResultRecord{}, err
	}
	kind, err := r.OptString(backend.PropKind)
	if err != nil {
		return ResultRecord{}, err
	}
	ext, err := r.OptString(backend.PropExtension)
	if err != nil {
		return ResultRecord{}, err
	}

	path, converted := URLToFilePath(url)
	rec := ResultRecord{
		DisplayName:  name,
		CanonicalURL: url,
		Kind:         kind,
		Extension:    ext,
		IsFolder:     kindText == folderKindText,
		IsMail:       !converted,
		Displayable:  true,
	}
	if rec.IsMail {
		rec.LaunchTarget = url
	} else {
		rec.LaunchTarget = path
	}
	return rec, nil
}

// URLToFilePath converts a file: URL to a local path. URLs naming mail
// (anything containing "mapi") and URLs without a path after "file:" are
// not converted; ok reports whether conversion happened.
func URLToFilePath(url string) (path string, ok bool) {
	if strings.Contains(strings.ToLower(url), "mapi") {
		return url, false
	}
	i := strings.Index(url, "file:")
	if i < 0 {
		return url, false
	}
	path = url[i+len("file:"):]
	if strings.HasPrefix(path, "///") {
		path = path[2:]
	}
	if path == "" {
		return url, false
	}
	return filepath.FromSlash(path), true
}

// DisplayPolicy decides which records are shown.
type DisplayPolicy struct {
	// CheckPaths hides file results whose path no longer exists.
	CheckPaths bool
	// Stat overrides os.Stat for CheckPaths.
	Stat func(name string) (os.FileInfo, error)
}

// displayFilter applies a DisplayPolicy to the records of one query.
type displayFilter struct {
	policy DisplayPolicy
	seen   map[string]bool
}

func (p DisplayPolicy) newFilter() *displayFilter {
	return &displayFilter{policy: p, seen: make(map[string]bool)}
}

// admit sets rec.Displayable and reports it. Records with no name, repeats
// of an already-admitted URL and, with CheckPaths, missing files are
// rejected.
func (f *displayFilter) admit(rec *ResultRecord) bool {
	rec.Displayable = f.displayable(rec)
	if rec.Displayable {
		f.seen[rec.CanonicalURL] = true
	}
	return rec.Displayable
}

func (f *displayFilter) displayable(rec *ResultRecord) bool {
	if strings.TrimSpace(rec.DisplayName) == "" || rec.LaunchTarget == "" {
		return false
	}
	if f.seen[rec.CanonicalURL] {
		return false
	}
	if f.policy.CheckPaths && !rec.IsMail {
		stat := f.policy.Stat
		if stat == nil {
			stat = os.Stat
		}
		if _, err := stat(rec.LaunchTarget); err != nil {
			return false
		}
	}
	return true
}
