package poll

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/emailpoll"
	"jobtrack-engine/internal/events"
)

type fakeProvider struct {
	msgs []domain.EmailMessage
	err  error
}

func (p fakeProvider) ListMessages(context.Context, string) ([]domain.EmailMessage, error) {
	return p.msgs, p.err
}

type fakeStore struct {
	mu      sync.Mutex
	seen    map[string]bool
	updates []domain.Status
}

func (s *fakeStore) UpsertEmail(_ context.Context, userID string, m domain.EmailMessage, _ domain.Status) (emailpoll.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	k := userID + "/" + m.ID
	if s.seen[k] {
		return emailpoll.Skipped, nil
	}
	s.seen[k] = true
	return emailpoll.Inserted, nil
}

func (s *fakeStore) MatchJob(context.Context, string, domain.EmailMessage) (int64, bool, error) {
	return 1, true, nil
}

func (s *fakeStore) UpdateJobStatus(_ context.Context, _ int64, st domain.Status, _ time.Time) error {
	s.mu.Lock()
	s.updates = append(s.updates, st)
	s.mu.Unlock()
	return nil
}

type recorder struct {
	mu   sync.Mutex
	evts []string
}

func (r *recorder) Publish(e string) {
	r.mu.Lock()
	r.evts = append(r.evts, e)
	r.mu.Unlock()
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.evts {
		if strings.Contains(e, `"type":"`+typ+`"`) {
			n++
		}
	}
	return n
}

var fixedNow = time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

func msg(id, subject string) domain.EmailMessage {
	return domain.EmailMessage{ID: id, Subject: subject, From: "jobs@acme.com", Date: "2024-01-15T09:30:00Z"}
}

func newRunner(t *testing.T, accts []Account, opts Options) (*Runner, *fakeStore, *recorder, *Metrics) {
	t.Helper()
	st := &fakeStore{}
	rec := &recorder{}
	m := NewMetrics(prometheus.NewRegistry())
	r := NewRunner(opts, Deps{
		Store:     st,
		Accounts:  AccountSourceFunc(func(context.Context) ([]Account, error) { return accts, nil }),
		Publisher: rec,
		Metrics:   m,
		Logger:    zaptest.NewLogger(t),
		Now:       func() time.Time { return fixedNow },
	})
	return r, st, rec, m
}

func TestRunner_RunAllAggregates(t *testing.T) {
	accts := []Account{
		{UserID: "u2", Provider: fakeProvider{msgs: []domain.EmailMessage{msg("a", "Interview invitation")}}},
		{UserID: "u1", Provider: fakeProvider{msgs: []domain.EmailMessage{msg("a", "Thank you for applying"), msg("b", "Newsletter")}}},
	}
	r, st, rec, m := newRunner(t, accts, Options{MaxParallel: 2})

	sum, err := r.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Accounts, 2)
	assert.Equal(t, "u1", sum.Accounts[0].UserID)
	assert.Equal(t, 3, sum.Totals.Inserted)
	assert.Equal(t, 2, sum.Totals.DetectedCount)
	assert.Len(t, st.updates, 2)

	assert.Equal(t, 2, rec.count(events.JobStatusChanged))
	assert.Equal(t, 1, rec.count(events.PollStarted))
	assert.Equal(t, 1, rec.count(events.PollFinished))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EmailsTotal.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ok")))

	status := r.Status()
	assert.False(t, status.Running)
	assert.Equal(t, "2024-01-20T12:00:00Z", status.LastOkAt)
	assert.Empty(t, status.LastError)

	// second run over the same window skips everything
	sum, err = r.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Totals.Skipped)
	assert.Zero(t, sum.Totals.DetectedCount)
}

func TestRunner_OneAccountFailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("imap: connection refused")
	accts := []Account{
		{UserID: "bad", Provider: fakeProvider{err: boom}},
		{UserID: "good", Provider: fakeProvider{msgs: []domain.EmailMessage{msg("a", "Offer letter")}}},
	}
	r, _, _, _ := newRunner(t, accts, Options{MaxParallel: 1})

	sum, err := r.RunAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sum.Totals.Inserted)
	assert.Equal(t, boom.Error(), sum.Accounts[0].Error)
	assert.Contains(t, r.Status().LastError, "account bad")
}

func TestRunner_RateLimitStartsBackoff(t *testing.T) {
	pe := &emailpoll.ProviderError{Code: 429, Message: "Too Many Requests"}
	accts := []Account{{UserID: "u1", Provider: fakeProvider{err: pe}}}
	r, _, rec, m := newRunner(t, accts, Options{Backoff: time.Minute})

	_, err := r.RunAll(context.Background())
	var got *emailpoll.ProviderError
	require.True(t, errors.As(err, &got))
	assert.Same(t, pe, got)
	assert.Equal(t, 1, rec.count(events.PollRateLimited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
	assert.Equal(t, "2024-01-20T12:01:00Z", r.Status().BackoffUntil)

	_, err = r.RunAll(context.Background())
	assert.ErrorIs(t, err, ErrBackoff)
	assert.NoError(t, r.Task(context.Background()))
}

func TestRunner_RunUser(t *testing.T) {
	accts := []Account{
		{UserID: "u1", Provider: fakeProvider{msgs: []domain.EmailMessage{msg("a", "x")}}},
		{UserID: "u2", Provider: fakeProvider{msgs: []domain.EmailMessage{msg("b", "y")}}},
	}
	r, _, _, _ := newRunner(t, accts, Options{})

	sum, err := r.RunUser(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, sum.Accounts, 1)
	assert.Equal(t, "u2", sum.Accounts[0].UserID)

	_, err = r.RunUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestRunner_FileLockHeldElsewhere(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "poll.lock")
	other := flock.New(lockPath)
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = other.Unlock() }()

	r, _, _, m := newRunner(t, nil, Options{LockPath: lockPath})
	_, err = r.RunAll(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("busy")))
	assert.NoError(t, r.Task(context.Background()))
}
