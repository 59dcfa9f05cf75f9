package mailbox

import (
	"bytes"
	"encoding/base64"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// SnippetLen matches the length Gmail uses for its own snippets.
const SnippetLen = 200

type parsedMessage struct {
	MessageID string
	Subject   string
	From      string
	Date      string
	Text      string
	HTML      string
}

func parseRFC822(raw []byte) (parsedMessage, error) {
	var p parsedMessage
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return p, err
	}
	h := msg.Header
	p.MessageID = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	p.Subject = decodeRFC2047(h.Get("Subject"))
	p.From = decodeRFC2047(h.Get("From"))
	p.Date = strings.TrimSpace(h.Get("Date"))

	body, _ := io.ReadAll(io.LimitReader(msg.Body, 10<<20))
	p.Text, p.HTML = extractMIMETextParts(h, body)
	return p, nil
}

// Snippet prefers the plain part and falls back to visible HTML text.
func (p parsedMessage) Snippet() string {
	text := p.Text
	if strings.TrimSpace(text) == "" && p.HTML != "" {
		text = htmlToText(p.HTML)
	}
	return clip(strings.Join(strings.Fields(text), " "), SnippetLen)
}

func extractMIMETextParts(h mail.Header, body []byte) (plain, htmlPart string) {
	ct := h.Get("Content-Type")
	cte := strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding")))

	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return string(decodeTransferEncoding(body, cte)), ""
	}
	mediaType = strings.ToLower(mediaType)

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return string(decodeTransferEncoding(body, cte)), ""
		}
		mr := multipart.NewReader(bytes.NewReader(body), boundary)
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			b, _ := io.ReadAll(io.LimitReader(part, 5<<20))
			pl, ht := extractMIMETextParts(mail.Header(part.Header), b)
			if plain == "" {
				plain = pl
			}
			if htmlPart == "" {
				htmlPart = ht
			}
		}
		return plain, htmlPart
	}

	s := string(decodeTransferEncoding(body, cte))
	switch {
	case strings.HasPrefix(mediaType, "text/html"):
		return "", s
	case strings.HasPrefix(mediaType, "text/"):
		return s, ""
	}
	return "", ""
}

func decodeTransferEncoding(b []byte, cte string) []byte {
	var r io.Reader
	switch cte {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, bytes.NewReader(b))
	case "quoted-printable":
		r = quotedprintable.NewReader(bytes.NewReader(b))
	default:
		return b
	}
	out, err := io.ReadAll(io.LimitReader(r, 5<<20))
	if err != nil && len(out) == 0 {
		return b
	}
	return out
}

func decodeRFC2047(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	out, err := new(mime.WordDecoder).DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

func htmlToText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return html.UnescapeString(s)
	}
	doc.Find("script, style, head").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
