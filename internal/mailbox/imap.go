package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/emailpoll"
	"jobtrack-engine/internal/logging"
)

type IMAPConfig struct {
	Addr     string // host:port
	Username string
	Mailbox  string
	// Password is resolved per run so a rotated keychain entry is picked up.
	Password func() (string, error)
	TLS      *tls.Config
	MaxFetch int
}

// IMAPProvider lists messages over IMAP. It opens the mailbox read-only, so
// polling never changes \Seen flags.
type IMAPProvider struct {
	cfg IMAPConfig
	log *zap.Logger
}

func NewIMAPProvider(cfg IMAPConfig, log *zap.Logger) *IMAPProvider {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.MaxFetch <= 0 {
		cfg.MaxFetch = 500
	}
	return &IMAPProvider{cfg: cfg, log: logging.OrNop(log)}
}

func IMAPAddr(host string, port int) string {
	if strings.Contains(host, ":") {
		return host
	}
	if port == 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", host, port)
}

var _ emailpoll.Provider = (*IMAPProvider)(nil)

func (p *IMAPProvider) ListMessages(ctx context.Context, sinceISO string) ([]domain.EmailMessage, error) {
	since, err := time.Parse(time.RFC3339, sinceISO)
	if err != nil {
		return nil, fmt.Errorf("imap: bad since %q: %w", sinceISO, err)
	}
	if p.cfg.Password == nil {
		return nil, errors.New("imap: no password source")
	}
	pw, err := p.cfg.Password()
	if err != nil {
		return nil, err
	}

	c, err := dialAndLogin(ctx, p.cfg.Addr, p.cfg.Username, pw, p.cfg.TLS)
	if err != nil {
		return nil, err
	}
	defer logoutAndClose(c, p.log)

	sel, err := c.Select(p.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap select %q: %w", p.cfg.Mailbox, err)
	}

	// SEARCH SINCE has day granularity; the exact cutoff is applied below.
	searchData, err := c.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return []domain.EmailMessage{}, nil
	}
	if len(uids) > p.cfg.MaxFetch {
		uids = uids[len(uids)-p.cfg.MaxFetch:]
	}

	bodyAll := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierNone, Peek: true}
	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	out := make([]domain.EmailMessage, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}

		em, at := toEmailMessage(buf, bodyAll, sel.UIDValidity)
		if !at.IsZero() && at.Before(since) {
			continue
		}
		out = append(out, em)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}

	sortChronological(out)
	return out, nil
}

func toEmailMessage(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection, validity uint32) (domain.EmailMessage, time.Time) {
	var em domain.EmailMessage
	var at time.Time

	if buf.Envelope != nil {
		em.Subject = buf.Envelope.Subject
		em.From = joinAddrs(buf.Envelope.From)
		at = buf.Envelope.Date
		if id := strings.Trim(buf.Envelope.MessageID, "<>"); id != "" {
			em.ID = id
		}
	}
	if at.IsZero() {
		at = buf.InternalDate
	}

	if raw := buf.FindBodySection(section); len(raw) > 0 {
		if pm, err := parseRFC822(raw); err == nil {
			if em.ID == "" {
				em.ID = pm.MessageID
			}
			if em.Subject == "" {
				em.Subject = pm.Subject
			}
			if em.From == "" {
				em.From = pm.From
			}
			if at.IsZero() {
				if t, err := (domain.EmailMessage{Date: pm.Date}).OccurredAt(); err == nil {
					at = t
				}
			}
			em.Snippet = pm.Snippet()
		}
	}

	// No Message-ID: fall back to something stable for this mailbox.
	if em.ID == "" {
		em.ID = fmt.Sprintf("uid:%d:%d", validity, buf.UID)
	}
	if !at.IsZero() {
		em.Date = at.UTC().Format(time.RFC3339)
	}
	return em, at
}

func sortChronological(msgs []domain.EmailMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, errA := msgs[i].OccurredAt()
		b, errB := msgs[j].OccurredAt()
		switch {
		case errA != nil:
			// undated messages go last, in mailbox order
			return false
		case errB != nil:
			return true
		}
		return a.Before(b)
	})
}

func dialAndLogin(ctx context.Context, addr, username, password string, tlsCfg *tls.Config) (*imapclient.Client, error) {
	if addr == "" {
		return nil, errors.New("imap addr is required")
	}
	if username == "" || password == "" {
		return nil, errors.New("imap username/password is required")
	}
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c, err := imapclient.DialTLS(addr, &imapclient.Options{TLSConfig: tlsCfg})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// Best-effort close on context cancel.
	context.AfterFunc(ctx, func() { _ = c.Close() })

	if err := c.Login(username, password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}

func logoutAndClose(c *imapclient.Client, log *zap.Logger) {
	if c == nil {
		return
	}
	if err := c.Logout().Wait(); err != nil {
		log.Debug("imap logout", zap.Error(err))
	}
	_ = c.Close()
}

func joinAddrs(addrs []imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for i := range addrs {
		a := &addrs[i]
		addr := strings.TrimSpace(a.Addr())
		if addr == "" {
			addr = strings.TrimSpace(a.Name)
		}
		if addr != "" {
			parts = append(parts, addr)
		}
	}
	return strings.Join(parts, ", ")
}
