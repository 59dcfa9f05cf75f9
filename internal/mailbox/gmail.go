package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/time/rate"

	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/emailpoll"
	"jobtrack-engine/internal/logging"
)

const (
	DefaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"
	GmailReadonlyScope  = "https://www.googleapis.com/auth/gmail.readonly"
	GmailProviderName   = "gmail"
)

// GmailOAuthConfig builds the oauth2 config used for consent and refresh.
func GmailOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{GmailReadonlyScope},
	}
}

type GmailProvider struct {
	client   *http.Client
	baseURL  string
	limiter  *rate.Limiter
	pageSize int
	maxPages int
	log      *zap.Logger
}

type GmailOption func(*GmailProvider)

func WithBaseURL(u string) GmailOption {
	return func(p *GmailProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

func WithLimiter(l *rate.Limiter) GmailOption {
	return func(p *GmailProvider) { p.limiter = l }
}

func WithPageSize(n int) GmailOption {
	return func(p *GmailProvider) { p.pageSize = n }
}

func WithMaxPages(n int) GmailOption {
	return func(p *GmailProvider) { p.maxPages = n }
}

// NewGmailProvider uses ts for auth. Tokens stay in the source and are never
// written anywhere by the provider.
func NewGmailProvider(ctx context.Context, ts oauth2.TokenSource, log *zap.Logger, opts ...GmailOption) *GmailProvider {
	p := &GmailProvider{
		client:   oauth2.NewClient(ctx, ts),
		baseURL:  DefaultGmailBaseURL,
		limiter:  rate.NewLimiter(rate.Limit(5), 5),
		pageSize: 100,
		maxPages: 10,
		log:      logging.OrNop(log),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var _ emailpoll.Provider = (*GmailProvider)(nil)

type gmailList struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

type gmailMessage struct {
	ID           string `json:"id"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"` // epoch millis
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

type gmailError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListMessages returns messages received after since, oldest first.
func (p *GmailProvider) ListMessages(ctx context.Context, sinceISO string) ([]domain.EmailMessage, error) {
	since, err := time.Parse(time.RFC3339, sinceISO)
	if err != nil {
		return nil, fmt.Errorf("gmail: bad since %q: %w", sinceISO, err)
	}

	var ids []string
	pageToken := ""
	for page := 0; page < p.maxPages; page++ {
		q := url.Values{}
		q.Set("q", "after:"+strconv.FormatInt(since.Unix(), 10))
		q.Set("maxResults", strconv.Itoa(p.pageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var list gmailList
		if err := p.get(ctx, "/messages?"+q.Encode(), &list); err != nil {
			return nil, err
		}
		for _, m := range list.Messages {
			ids = append(ids, m.ID)
		}
		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}
	if pageToken != "" {
		// older messages in the window are not fetched this run
		p.log.Warn("gmail listing truncated",
			zap.Int("max_pages", p.maxPages),
			zap.Int("page_size", p.pageSize),
			zap.Int("listed", len(ids)),
			zap.String("since", sinceISO),
		)
	}

	out := make([]domain.EmailMessage, 0, len(ids))
	// list is newest first; walk it backwards so callers see time order
	for i := len(ids) - 1; i >= 0; i-- {
		q := url.Values{}
		q.Set("format", "metadata")
		for _, h := range []string{"Subject", "From", "Date"} {
			q.Add("metadataHeaders", h)
		}
		var gm gmailMessage
		if err := p.get(ctx, "/messages/"+url.PathEscape(ids[i])+"?"+q.Encode(), &gm); err != nil {
			return nil, err
		}
		out = append(out, gm.toEmailMessage())
	}
	p.log.Debug("gmail listed", zap.Int("count", len(out)), zap.String("since", sinceISO))
	return out, nil
}

func (gm gmailMessage) toEmailMessage() domain.EmailMessage {
	em := domain.EmailMessage{ID: gm.ID, Snippet: html.UnescapeString(gm.Snippet)}
	var headerDate string
	for _, h := range gm.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			em.Subject = h.Value
		case "from":
			em.From = h.Value
		case "date":
			headerDate = h.Value
		}
	}
	if ms, err := strconv.ParseInt(gm.InternalDate, 10, 64); err == nil && ms > 0 {
		em.Date = time.UnixMilli(ms).UTC().Format(time.RFC3339)
	} else {
		em.Date = headerDate
	}
	return em
}

// get issues one rate-limited request. Non-2xx answers become
// *emailpoll.ProviderError with Google's code and message.
func (p *GmailProvider) get(ctx context.Context, path string, dst any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("gmail read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &emailpoll.ProviderError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var ge gmailError
		if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
			pe.Message = ge.Error.Message
		}
		return pe
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("gmail decode: %w", err)
	}
	return nil
}
