package indexer

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"howett.net/plist"

	"github.com/wesm/livefind/internal/store"
)

// Mail item constants.
const (
	MailScheme   = "mapi://"
	MailKind     = "email"
	MailKindText = "Mail Message"
)

// maxMailBytes caps a single message read from an mbox.
const maxMailBytes = 32 << 20

// message is the part of a parsed mail message the index keeps.
type message struct {
	ID      string
	Subject string
	From    string
	Date    time.Time
	Body    string
}

// parseMessage reads an RFC 5322 message. The raw bytes hash stands in for
// a missing Message-ID so the item URL stays stable across crawls.
func parseMessage(raw []byte) (*message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	m := &message{
		ID:      strings.Trim(strings.TrimSpace(env.GetHeader("Message-ID")), "<>"),
		Subject: strings.TrimSpace(env.GetHeader("Subject")),
		Body:    env.Text,
	}
	if m.ID == "" {
		sum := sha256.Sum256(raw)
		m.ID = "sha256-" + hex.EncodeToString(sum[:12])
	}
	if list, err := env.AddressList("From"); err == nil && len(list) > 0 {
		m.From = list[0].Address
		if list[0].Name != "" {
			m.From = list[0].Name + " <" + list[0].Address + ">"
		}
	}
	if d := env.GetHeader("Date"); d != "" {
		if t, err := mail.ParseDate(strings.Join(strings.Fields(d), " ")); err == nil {
			m.Date = t.UTC()
		}
	}
	return m, nil
}

// item converts m to an index item belonging to mailbox.
func (m *message) item(mailbox, root string, modified time.Time, maxContent int64) store.Item {
	name := m.Subject
	if name == "" {
		name = "(no subject)"
	}
	date := m.Date
	if date.IsZero() {
		date = modified
	}
	var content string
	if maxContent > 0 {
		content = strings.TrimSpace(m.Subject + "\n" + m.From + "\n" + m.Body)
		if int64(len(content)) > maxContent {
			content = strings.ToValidUTF8(content[:maxContent], "")
		}
	}
	return store.Item{
		URL:          MailURL(mailbox, m.ID),
		DisplayName:  name,
		Scope:        store.ScopeMail,
		Kind:         MailKind,
		KindText:     MailKindText,
		Root:         root,
		Content:      content,
		Size:         int64(len(m.Body)),
		DateModified: date,
	}
}

// MailURL builds the canonical URL of a message.
func MailURL(mailbox, messageID string) string {
	return MailScheme + mailbox + "/" + messageID
}

// mailboxName derives the mailbox of a mail file. Messages inside an
// Apple Mail "Name.mbox" directory belong to Name; a standalone mbox file
// is its own mailbox; anything else takes its directory name.
func mailboxName(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".mbox") {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
	}
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		base := filepath.Base(dir)
		for _, suffix := range []string{".mbox", ".imapmbox"} {
			if strings.HasSuffix(strings.ToLower(base), suffix) {
				return base[:len(base)-len(suffix)]
			}
		}
		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}
	return filepath.Base(filepath.Dir(path))
}

// fromLineRe matches an mbox separator: "From " then a sender and a
// ctime-style date carrying at least a time of day and a year.
var fromLineRe = regexp.MustCompile(`^From \S+\s+.*\b\d{1,2}:\d{2}(:\d{2})?\b.*\b\d{4}\b`)

func isFromLine(line []byte) bool {
	return bytes.HasPrefix(line, []byte("From ")) && fromLineRe.Match(bytes.TrimRight(line, "\r\n"))
}

// unescapeFrom removes one '>' from lines matching ^>+From (mboxrd).
func unescapeFrom(line []byte) []byte {
	i := 0
	for i < len(line) && line[i] == '>' {
		i++
	}
	if i > 0 && bytes.HasPrefix(line[i:], []byte("From ")) {
		return line[1:]
	}
	return line
}

// readMbox calls fn with the raw bytes of each message in r. Oversized
// messages are skipped and counted.
func readMbox(r io.Reader, fn func(raw []byte) error) (skipped int, err error) {
	br := bufio.NewReader(r)
	var buf bytes.Buffer
	inMessage, tooLarge := false, false

	flush := func() error {
		defer func() { buf.Reset(); tooLarge = false }()
		if !inMessage {
			return nil
		}
		if tooLarge {
			skipped++
			return nil
		}
		return fn(bytes.Clone(buf.Bytes()))
	}

	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			switch {
			case isFromLine(line):
				if err := flush(); err != nil {
					return skipped, err
				}
				inMessage = true
			case inMessage && !tooLarge:
				line = unescapeFrom(line)
				if buf.Len()+len(line) > maxMailBytes {
					tooLarge = true
				} else {
					buf.Write(line)
				}
			}
		}
		if readErr == io.EOF {
			return skipped, flush()
		}
		if readErr != nil {
			return skipped, fmt.Errorf("read mbox: %w", readErr)
		}
	}
}

// emlxMeta is the plist trailer Apple Mail appends to an .emlx file.
type emlxMeta struct {
	DateSent        any    `plist:"date-sent"`
	Flags           uint64 `plist:"flags"`
	OriginalMailbox string `plist:"original-mailbox"`
}

// appleEpoch is the zero of Apple's reference-date timestamps.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// parseEmlx splits an .emlx file into the message bytes and the date from
// its metadata trailer (zero when absent or unreadable).
func parseEmlx(data []byte) (raw []byte, sent time.Time, err error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, time.Time{}, errors.New("emlx: no byte count line")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data[:nl])), 10, 64)
	if err != nil || n < 0 {
		return nil, time.Time{}, fmt.Errorf("emlx: invalid byte count %q", data[:nl])
	}
	end := int64(nl+1) + n
	if end > int64(len(data)) {
		return nil, time.Time{}, fmt.Errorf("emlx: byte count %d exceeds file size", n)
	}
	raw = data[nl+1 : end]

	if trailer := bytes.TrimSpace(data[end:]); len(trailer) > 0 {
		var meta emlxMeta
		if _, err := plist.Unmarshal(trailer, &meta); err == nil {
			switch v := meta.DateSent.(type) {
			case float64:
				sent = appleEpoch.Add(time.Duration(v * float64(time.Second)))
			case uint64:
				sent = appleEpoch.Add(time.Duration(v) * time.Second)
			case int64:
				sent = appleEpoch.Add(time.Duration(v) * time.Second)
			}
		}
	}
	return raw, sent, nil
}
