package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"jobtrack-engine/internal/comments"
	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/emailpoll"
	"jobtrack-engine/internal/secrets"
)

var clock = time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	d.Now = func() time.Time { return clock }
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestMigrate_Idempotent(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, Migrate(d.Pool))

	var v int
	require.NoError(t, d.Pool.QueryRow(`PRAGMA user_version;`).Scan(&v))
	assert.Equal(t, len(migrations), v)
}

func TestUpsertEmail_Outcomes(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	m := domain.EmailMessage{ID: "m1", Subject: "Thanks for applying", From: "jobs@acme.com", Date: "2024-01-15T09:30:00Z"}

	out, err := d.UpsertEmail(ctx, "u1", m, domain.StatusApplied)
	require.NoError(t, err)
	assert.Equal(t, emailpoll.Inserted, out)

	out, err = d.UpsertEmail(ctx, "u1", m, domain.StatusApplied)
	require.NoError(t, err)
	assert.Equal(t, emailpoll.Skipped, out)

	// same id, different user: independent record
	out, err = d.UpsertEmail(ctx, "u2", m, domain.StatusApplied)
	require.NoError(t, err)
	assert.Equal(t, emailpoll.Inserted, out)

	m.Snippet = "edited by provider"
	out, err = d.UpsertEmail(ctx, "u1", m, domain.StatusApplied)
	require.NoError(t, err)
	assert.Equal(t, emailpoll.Updated, out)

	emails, err := d.ListTrackedEmails(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, domain.StatusApplied, emails[0].DetectedStatus)
}

func TestUpdateJobStatus(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	job, err := d.CreateJob(ctx, JobInsert{UserID: "u1", Company: "Acme", Title: "SRE"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInterested, job.Status)

	at := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, d.UpdateJobStatus(ctx, job.ID, domain.StatusApplied, at))
	require.NoError(t, d.UpdateJobStatus(ctx, job.ID, domain.StatusApplied, at)) // re-applied

	got, err := d.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApplied, got.Status)
	assert.True(t, got.StatusChangedAt.Equal(at), "transition time comes from the email")

	later := at.Add(48 * time.Hour)
	require.NoError(t, d.UpdateJobStatus(ctx, job.ID, domain.StatusInterview, later))
	// an overlapping window replays the older email: no regression
	require.NoError(t, d.UpdateJobStatus(ctx, job.ID, domain.StatusApplied, at))

	got, err = d.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInterview, got.Status)

	hist, err := d.StatusHistory(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.StatusInterested, hist[0].From)
	assert.Equal(t, domain.StatusApplied, hist[0].To)
	assert.Equal(t, domain.StatusInterview, hist[1].To)

	assert.ErrorIs(t, d.UpdateJobStatus(ctx, 9999, domain.StatusOffer, at), ErrNotFound)
	assert.Error(t, d.UpdateJobStatus(ctx, job.ID, domain.Status("Hired"), at))
}

func TestMatchJob(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	acme, err := d.CreateJob(ctx, JobInsert{UserID: "u1", Company: "Acme Corp", Title: "SRE"})
	require.NoError(t, err)
	globex, err := d.CreateJob(ctx, JobInsert{UserID: "u1", Company: "Globex", Title: "Platform"})
	require.NoError(t, err)
	_, err = d.CreateJob(ctx, JobInsert{UserID: "u2", Company: "Initech", Title: "Dev"})
	require.NoError(t, err)
	require.NoError(t, d.UpsertCompanyDomain(ctx, "Acme Corp", "https://www.acme.com/"))

	id, ok, err := d.MatchJob(ctx, "u1", domain.EmailMessage{ID: "1", From: "Recruiting <talent@mail.acme.com>", Subject: "Next steps"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, acme.ID, id)

	id, ok, err = d.MatchJob(ctx, "u1", domain.EmailMessage{ID: "2", From: "noreply@greenhouse.io", Subject: "Your application to Globex"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, globex.ID, id)

	_, ok, err = d.MatchJob(ctx, "u1", domain.EmailMessage{ID: "3", From: "hr@initech.com", Subject: "Interview at Initech"})
	require.NoError(t, err)
	assert.False(t, ok, "other users' jobs never match")
}

func TestMatchJob_PrefersOpenJobs(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	open, err := d.CreateJob(ctx, JobInsert{UserID: "u1", Company: "Acme", Title: "SRE"})
	require.NoError(t, err)
	closed, err := d.CreateJob(ctx, JobInsert{UserID: "u1", Company: "Acme", Title: "SWE"})
	require.NoError(t, err)
	d.Now = func() time.Time { return clock.Add(time.Hour) }
	require.NoError(t, d.UpdateJobStatus(ctx, closed.ID, domain.StatusRejected, clock))

	id, ok, err := d.MatchJob(ctx, "u1", domain.EmailMessage{ID: "1", Subject: "Acme interview"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, open.ID, id)
}

func TestShares(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	exp := clock.Add(24 * time.Hour)
	s, err := d.CreateShare(ctx, ShareInsert{ExpiresAt: &exp, CanComment: true})
	require.NoError(t, err)
	assert.Len(t, s.Token, 64)

	got, err := d.GetShareByToken(ctx, s.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsActive)
	assert.True(t, got.CanComment)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(exp))

	missing, err := d.GetShareByToken(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	res := comments.PostComment(ctx, s.Token, comments.Input{AuthorName: "Ada", Body: "Looks good"}, comments.Deps{
		Store: d,
		Now:   func() time.Time { return clock },
	})
	require.True(t, res.Success, "%+v", res.Err)

	list, err := d.ListComments(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.CommentID, list[0].ID)
	assert.Equal(t, "Looks good", list[0].Body)

	require.NoError(t, d.SetShareActive(ctx, s.ID, false))
	res = comments.PostComment(ctx, s.Token, comments.Input{AuthorName: "Ada", Body: "again"}, comments.Deps{Store: d})
	require.NotNil(t, res.Err)
	assert.Equal(t, comments.CodeInactiveShare, res.Err.Code)
}

func TestTokenStore_EncryptsAtRest(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	c, err := secrets.NewCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	ts := TokenStore{DB: d, Cipher: c}

	exp := clock.Add(time.Hour)
	require.NoError(t, ts.SaveToken(ctx, "u1", "gmail", &oauth2.Token{
		AccessToken: "ya29.live-access", RefreshToken: "1//refresh", TokenType: "Bearer", Expiry: exp,
	}))

	var rawAccess, rawRefresh string
	require.NoError(t, d.Pool.QueryRow(`SELECT access_token, refresh_token FROM oauth_tokens WHERE user_id = 'u1';`).Scan(&rawAccess, &rawRefresh))
	assert.NotContains(t, rawAccess, "ya29")
	assert.NotContains(t, rawRefresh, "refresh")
	assert.Contains(t, rawAccess, ":")

	tok, err := ts.LoadToken(ctx, "u1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "ya29.live-access", tok.AccessToken)
	assert.Equal(t, "1//refresh", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(exp))

	// refresh without a new refresh token keeps the old one
	require.NoError(t, ts.SaveToken(ctx, "u1", "gmail", &oauth2.Token{AccessToken: "ya29.next"}))
	tok, err = ts.LoadToken(ctx, "u1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "ya29.next", tok.AccessToken)
	assert.Equal(t, "1//refresh", tok.RefreshToken)

	users, err := ts.Users(ctx, "gmail")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)

	other, err := secrets.NewCipher("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	_, err = TokenStore{DB: d, Cipher: other}.LoadToken(ctx, "u1", "gmail")
	assert.ErrorIs(t, err, secrets.ErrDecrypt)

	_, err = ts.LoadToken(ctx, "nobody", "gmail")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteJob_CascadesHistory(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	job, err := d.CreateJob(ctx, JobInsert{UserID: "u1", Company: "Acme", Title: "Engineer"})
	require.NoError(t, err)
	require.NoError(t, d.UpdateJobStatus(ctx, job.ID, domain.StatusApplied, clock))

	require.NoError(t, d.DeleteJob(ctx, job.ID))
	hist, err := d.StatusHistory(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)

	assert.ErrorIs(t, d.DeleteJob(ctx, job.ID), ErrNotFound)
}

func TestListJobs_SubSecondOrder(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	older, err := d.CreateJob(ctx, JobInsert{UserID: "u1", Company: "Acme", Title: "Engineer"})
	require.NoError(t, err)
	d.Now = func() time.Time { return clock.Add(500 * time.Millisecond) }
	newer, err := d.CreateJob(ctx, JobInsert{UserID: "u1", Company: "Globex", Title: "SRE"})
	require.NoError(t, err)

	jobs, err := d.ListJobs(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, newer.ID, jobs[0].ID)
	assert.Equal(t, older.ID, jobs[1].ID)

	assert.Equal(t, "2024-01-20T12:00:00.000000000Z", formatTime(clock))
	assert.Equal(t, clock, parseTime("2024-01-20T12:00:00Z"))
	assert.Less(t, formatTime(clock), formatTime(clock.Add(500*time.Millisecond)))
}

func TestCompaniesForDomain(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.UpsertCompanyDomain(ctx, "Acme Corp", "acme.com"))
	require.NoError(t, d.UpsertCompanyDomain(ctx, "Acme Labs", "labs.acme.com"))

	got, err := d.companiesForDomain(ctx, "eu.labs.acme.com")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"acme corp": true, "acme labs": true}, got)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = d.companiesForDomain(cctx, "acme.com")
	assert.ErrorIs(t, err, context.Canceled)
}
