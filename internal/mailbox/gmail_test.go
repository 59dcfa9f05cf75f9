package mailbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"jobtrack-engine/internal/emailpoll"
)

func newTestGmail(t *testing.T, h http.HandlerFunc) *GmailProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-access"})
	return NewGmailProvider(context.Background(), ts, nil,
		WithBaseURL(srv.URL),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithPageSize(2),
	)
}

func TestGmail_ListMessages(t *testing.T) {
	var gotQuery string
	p := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-access", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/messages":
			if r.URL.Query().Get("pageToken") == "" {
				gotQuery = r.URL.Query().Get("q")
				_, _ = w.Write([]byte(`{"messages":[{"id":"c"},{"id":"b"}],"nextPageToken":"p2"}`))
				return
			}
			_, _ = w.Write([]byte(`{"messages":[{"id":"a"}]}`))
		case "/messages/a":
			_, _ = w.Write([]byte(`{"id":"a","snippet":"We&#39;ve received your application","internalDate":"1705311000000","payload":{"headers":[{"name":"Subject","value":"Thanks for applying"},{"name":"From","value":"jobs@acme.com"}]}}`))
		case "/messages/b":
			_, _ = w.Write([]byte(`{"id":"b","snippet":"","internalDate":"1705397400000","payload":{"headers":[{"name":"Subject","value":"Interview"}]}}`))
		case "/messages/c":
			_, _ = w.Write([]byte(`{"id":"c","snippet":"","internalDate":"","payload":{"headers":[{"name":"Date","value":"Tue, 16 Jan 2024 10:00:00 +0000"}]}}`))
		default:
			http.NotFound(w, r)
		}
	})

	msgs, err := p.ListMessages(context.Background(), "2024-01-06T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "after:1704542400", gotQuery)

	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	assert.Equal(t, "We've received your application", msgs[0].Snippet)
	assert.Equal(t, "Thanks for applying", msgs[0].Subject)
	assert.Equal(t, "jobs@acme.com", msgs[0].From)
	assert.Equal(t, "2024-01-15T09:30:00Z", msgs[0].Date)
	assert.Equal(t, "Tue, 16 Jan 2024 10:00:00 +0000", msgs[2].Date)
}

func TestGmail_RateLimitIsProviderError(t *testing.T) {
	p := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Rate limit exceeded"}}`))
	})

	_, err := p.ListMessages(context.Background(), "2024-01-06T12:00:00Z")
	var pe *emailpoll.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 429, pe.Code)
	assert.Equal(t, "Rate limit exceeded", pe.Message)
	assert.True(t, emailpoll.IsRateLimited(err))
}

func TestGmail_ErrorWithoutBody(t *testing.T) {
	p := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := p.ListMessages(context.Background(), "2024-01-06T12:00:00Z")
	var pe *emailpoll.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusServiceUnavailable, pe.Code)
	assert.Equal(t, "Service Unavailable", pe.Message)
}

func TestGmail_BadSince(t *testing.T) {
	p := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := p.ListMessages(context.Background(), "last tuesday")
	assert.Error(t, err)
}

func TestGmail_TruncatedListingWarns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/messages" {
			n, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
			_, _ = w.Write([]byte(`{"messages":[{"id":"m` + strconv.Itoa(n) + `"}],"nextPageToken":"` + strconv.Itoa(n+1) + `"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"x","internalDate":"1705311000000"}`))
	}))
	t.Cleanup(srv.Close)

	core, logs := observer.New(zap.WarnLevel)
	p := NewGmailProvider(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), zap.New(core),
		WithBaseURL(srv.URL),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithPageSize(1),
		WithMaxPages(2),
	)

	msgs, err := p.ListMessages(context.Background(), "2024-01-06T12:00:00Z")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	require.Equal(t, 1, logs.FilterMessage("gmail listing truncated").Len())
	assert.Equal(t, int64(2), logs.All()[0].ContextMap()["listed"])
}
