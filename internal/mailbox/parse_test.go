package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrack-engine/internal/domain"
)

const multipartMsg = "Message-Id: <abc123@mail.acme.com>\r\n" +
	"Subject: =?UTF-8?Q?Thanks_for_applying_=E2=9C=93?=\r\n" +
	"From: Acme Talent <talent@acme.com>\r\n" +
	"Date: Mon, 15 Jan 2024 09:30:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><head><style>p{}</style></head><body><p>We have <b>received</b> your application.</p></body></html>\r\n" +
	"--XYZ--\r\n"

func TestParseRFC822_HTMLSnippet(t *testing.T) {
	pm, err := parseRFC822([]byte(multipartMsg))
	require.NoError(t, err)

	assert.Equal(t, "abc123@mail.acme.com", pm.MessageID)
	assert.Equal(t, "Thanks for applying ✓", pm.Subject)
	assert.Equal(t, "Acme Talent <talent@acme.com>", pm.From)
	assert.Equal(t, "We have received your application.", pm.Snippet())
}

func TestParseRFC822_QuotedPrintablePlain(t *testing.T) {
	raw := "Subject: Update\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Unfortunately we are not moving =\r\nforward.\r\n"
	pm, err := parseRFC822([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Unfortunately we are not moving forward.", pm.Snippet())
}

func TestSnippet_Clipped(t *testing.T) {
	pm := parsedMessage{Text: strings.Repeat("word ", 100)}
	assert.Len(t, []rune(pm.Snippet()), SnippetLen)
}

func TestIMAPAddr(t *testing.T) {
	assert.Equal(t, "imap.gmail.com:993", IMAPAddr("imap.gmail.com", 0))
	assert.Equal(t, "imap.example.com:143", IMAPAddr("imap.example.com", 143))
	assert.Equal(t, "host:1", IMAPAddr("host:1", 993))
}

func TestSortChronological_UndatedLast(t *testing.T) {
	msgs := []domain.EmailMessage{
		{ID: "u1", Date: "sometime"},
		{ID: "late", Date: "2024-01-16T10:00:00Z"},
		{ID: "u2", Date: ""},
		{ID: "early", Date: "Mon, 15 Jan 2024 09:30:00 +0000"},
	}
	sortChronological(msgs)

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"early", "late", "u1", "u2"}, ids)
}
