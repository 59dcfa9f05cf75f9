package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// EmailMessage is a message as reported by a mail provider. It is never mutated
// after fetch; (user id, ID) identifies it for dedupe.
type EmailMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
	From    string `json:"from"`
	Date    string `json:"date"` // ISO-8601 as delivered by the provider
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

// OccurredAt parses Date. Providers mostly hand back RFC3339, but raw header
// dates show up from IMAP, so the mail header parser is the last resort.
func (m EmailMessage) OccurredAt() (time.Time, error) {
	s := strings.TrimSpace(m.Date)
	if s == "" {
		return time.Time{}, fmt.Errorf("email %s: empty date", m.ID)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("email %s: unparsable date %q", m.ID, m.Date)
}

// SenderDomain returns the lowercased domain of the From address, or "".
func (m EmailMessage) SenderDomain() string {
	from := strings.TrimSpace(m.From)
	if addr, err := mail.ParseAddress(from); err == nil {
		from = addr.Address
	}
	i := strings.LastIndexByte(from, '@')
	if i < 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(from[i+1:], "<> "))
}
