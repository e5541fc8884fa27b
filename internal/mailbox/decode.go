package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

// ErrNoTextBody is returned when neither a text/plain nor a text/html part exists.
var ErrNoTextBody = errors.New("no text body")

// Decode extracts the subject and text body of a raw RFC 5322 message.
//
// The subject is decoded with its declared charset, then taken as UTF-8, and
// finally read as ISO-8859-1 which maps every byte. The body is the first
// text/plain part found walking nested multiparts depth first, or the first
// text/html part when no plain text exists.
func Decode(raw []byte) (subject, body string, err error) {
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", "", fmt.Errorf("parse message: %w", err)
	}

	subject = decodeSubject(e.Header)

	plain, html, err := walk(e)
	if err != nil {
		return subject, "", err
	}
	switch {
	case plain != nil:
		return subject, *plain, nil
	case html != nil:
		return subject, *html, nil
	default:
		return subject, "", ErrNoTextBody
	}
}

func decodeSubject(h message.Header) string {
	if s, err := h.Text("Subject"); err == nil && utf8.ValidString(s) {
		return s
	}
	raw := h.Get("Subject")
	if utf8.ValidString(raw) {
		return raw
	}
	return latin1(raw)
}

func latin1(s string) string {
	out, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

func walk(e *message.Entity) (plain, html *string, err error) {
	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return plain, html, fmt.Errorf("read part: %w", err)
			}
			if part == nil {
				continue
			}
			p, h, err := walk(part)
			if err != nil {
				return plain, html, err
			}
			if p != nil {
				return p, html, nil
			}
			if html == nil {
				html = h
			}
		}
		return nil, html, nil
	}

	ct, _, err := e.Header.ContentType()
	if err != nil || ct == "" {
		ct = "text/plain"
	}
	ct = strings.ToLower(ct)
	if ct != "text/plain" && ct != "text/html" {
		return nil, nil, nil
	}

	data, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = latin1(text)
	}
	if ct == "text/plain" {
		return &text, nil, nil
	}
	return nil, &text, nil
}
