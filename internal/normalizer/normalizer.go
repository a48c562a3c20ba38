package normalizer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// ErrParse marks a message that could not be parsed. A parse failure on
// one message never aborts its siblings; the orchestrator counts it and
// moves on.
var ErrParse = errors.New("parse error")

const (
	// MaxBodyLength bounds the normalized body so classification and
	// storage stay bounded.
	MaxBodyLength = 2000

	// DefaultSubject is stored when a message carries no Subject header
	DefaultSubject = "No Subject"
	// DefaultBody is stored when a message carries no usable body
	DefaultBody = "No Content"
)

// Email is a normalized message ready for classification and storage
type Email struct {
	Subject    string
	Sender     string // From header display form
	Body       string // Plain text, bounded by MaxBodyLength
	ReceivedAt time.Time
}

// Normalizer parses raw RFC822 byte streams into normalized records
type Normalizer struct {
	stripper *htmlStripper
}

// New creates a new Normalizer
func New() *Normalizer {
	return &Normalizer{stripper: newHTMLStripper()}
}

// Normalize parses one raw message. Plain-text bodies are preferred; an
// HTML-only message is stripped of tags before use.
func (n *Normalizer) Normalize(raw []byte) (*Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read message: %v", ErrParse, err)
	}

	email := &Email{
		Subject: DefaultSubject,
		Sender:  "Unknown",
	}

	if subject, err := mr.Header.Subject(); err == nil && strings.TrimSpace(subject) != "" {
		email.Subject = sanitizeHeader(subject)
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		email.Sender = sanitizeHeader(formatAddress(from[0]))
	}
	if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
		email.ReceivedAt = date
	} else {
		email.ReceivedAt = time.Now()
	}

	var plainText, htmlText string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A broken part doesn't invalidate what we already have
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()

		switch {
		case strings.HasPrefix(contentType, "text/plain") && plainText == "":
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			plainText = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlText == "":
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			htmlText = string(body)
		}
	}

	email.Body = n.pickBody(plainText, htmlText)
	return email, nil
}

// pickBody prefers plain text and falls back to stripped HTML
func (n *Normalizer) pickBody(plainText, htmlText string) string {
	body := strings.TrimSpace(plainText)
	if body == "" && htmlText != "" {
		stripped, err := n.stripper.strip(htmlText)
		if err == nil {
			body = stripped
		}
	}
	if body == "" {
		return DefaultBody
	}
	return truncate(body, MaxBodyLength)
}

// formatAddress renders an address in display form: "Name <addr>" when a
// display name is present, the bare address otherwise.
func formatAddress(addr *mail.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
	}
	return addr.Address
}

// sanitizeHeader collapses header folding whitespace into single spaces
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary
	cut := max
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
