// Package email builds raw RFC 5322 messages and mail stores for tests.
package email

import (
	"fmt"
	"strings"
)

// MessageBuilder constructs a plain-text message.
type MessageBuilder struct {
	from      string
	to        string
	subject   string
	date      string
	messageID string
	body      string
	crlf      bool
	noSubject bool
}

// NewMessage creates a MessageBuilder with defaults for every header.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		from:    "sender@example.com",
		to:      "recipient@example.com",
		date:    "Mon, 01 Jan 2024 12:00:00 +0000",
		subject: "Test Message",
		body:    "This is a test message body.",
	}
}

func (b *MessageBuilder) From(v string) *MessageBuilder      { b.from = v; return b }
func (b *MessageBuilder) To(v string) *MessageBuilder        { b.to = v; return b }
func (b *MessageBuilder) Date(v string) *MessageBuilder      { b.date = v; return b }
func (b *MessageBuilder) Body(v string) *MessageBuilder      { b.body = v; return b }
func (b *MessageBuilder) MessageID(v string) *MessageBuilder { b.messageID = v; return b }

// Subject sets the Subject header. NoSubject omits it.
func (b *MessageBuilder) Subject(v string) *MessageBuilder {
	b.subject, b.noSubject = v, false
	return b
}

func (b *MessageBuilder) NoSubject() *MessageBuilder { b.noSubject = true; return b }

// CRLF switches to \r\n line endings.
func (b *MessageBuilder) CRLF() *MessageBuilder { b.crlf = true; return b }

// Bytes renders the message.
func (b *MessageBuilder) Bytes() []byte {
	nl := "\n"
	if b.crlf {
		nl = "\r\n"
	}
	var s strings.Builder
	s.WriteString("From: " + b.from + nl)
	s.WriteString("To: " + b.to + nl)
	if !b.noSubject {
		s.WriteString("Subject: " + b.subject + nl)
	}
	if b.date != "" {
		s.WriteString("Date: " + b.date + nl)
	}
	if b.messageID != "" {
		s.WriteString("Message-ID: <" + b.messageID + ">" + nl)
	}
	s.WriteString(`Content-Type: text/plain; charset="utf-8"` + nl)
	s.WriteString(nl)
	s.WriteString(strings.ReplaceAll(b.body, "\n", nl) + nl)
	return []byte(s.String())
}

// Mbox joins messages into an mbox file, escaping body lines that start
// with "From ".
func Mbox(messages ...[]byte) []byte {
	var s strings.Builder
	for _, m := range messages {
		s.WriteString("From MAILER-DAEMON Mon Jan  1 12:00:00 2024\n")
		for _, line := range strings.SplitAfter(string(m), "\n") {
			if strings.HasPrefix(strings.TrimLeft(line, ">"), "From ") {
				s.WriteString(">")
			}
			s.WriteString(line)
		}
		if !strings.HasSuffix(string(m), "\n") {
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}
	return []byte(s.String())
}

// Emlx wraps a message in the Apple Mail .emlx layout: a byte count line,
// the message, then a plist trailer carrying dateSent (seconds since
// 2001-01-01 UTC) when it is positive.
func Emlx(raw []byte, dateSent float64) []byte {
	var s strings.Builder
	fmt.Fprintf(&s, "%d\n", len(raw))
	s.Write(raw)
	if dateSent > 0 {
		s.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>date-sent</key>
	<real>`)
		fmt.Fprintf(&s, "%.0f", dateSent)
		s.WriteString(`</real>
	<key>flags</key>
	<integer>8590195713</integer>
</dict>
</plist>
`)
	}
	return []byte(s.String())
}
