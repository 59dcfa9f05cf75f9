package comments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrack-engine/internal/domain"
)

type fakeShares struct {
	shares    map[string]*domain.ShareRecord
	lookups   int
	inserted  []Input
	getErr    error
	insertErr error
}

func (f *fakeShares) GetShareByToken(_ context.Context, token string) (*domain.ShareRecord, error) {
	f.lookups++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.shares[token], nil
}

func (f *fakeShares) InsertComment(_ context.Context, shareID string, in Input) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserted = append(f.inserted, in)
	return "c-" + shareID, nil
}

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func newDeps(shares map[string]*domain.ShareRecord) (Deps, *fakeShares) {
	f := &fakeShares{shares: shares}
	return Deps{Store: f, Now: func() time.Time { return now }}, f
}

func openShare() *domain.ShareRecord {
	return &domain.ShareRecord{ID: "s1", IsActive: true, CanComment: true}
}

var goodInput = Input{AuthorName: "Ada", Body: "Tighten the summary."}

func TestValidateComment(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		msg  string
	}{
		{"blank author", Input{AuthorName: "  ", Body: "x"}, "Author name is required"},
		{"long author", Input{AuthorName: strings.Repeat("a", 101), Body: "x"}, "Author name must be less than 100 characters"},
		{"blank body", Input{AuthorName: "a", Body: "\n\t"}, "Comment is required"},
		{"long body", Input{AuthorName: "a", Body: strings.Repeat("b", 2001)}, "Comment must be less than 2000 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateComment(tc.in)
			var ce *Error
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, CodeValidation, ce.Code)
			assert.Equal(t, tc.msg, ce.Message)
		})
	}

	assert.NoError(t, ValidateComment(Input{AuthorName: strings.Repeat("a", 100), Body: strings.Repeat("b", 2000)}))
	assert.NoError(t, ValidateComment(Input{AuthorName: "ü", Body: strings.Repeat("é", 2000)}))
}

func TestPostComment_ValidationShortCircuits(t *testing.T) {
	d, f := newDeps(nil)
	res := PostComment(context.Background(), "no-such-token", Input{AuthorName: "", Body: ""}, d)

	require.NotNil(t, res.Err)
	assert.Equal(t, CodeValidation, res.Err.Code)
	assert.Zero(t, f.lookups)
}

func TestPostComment_BodyBoundary(t *testing.T) {
	d, _ := newDeps(map[string]*domain.ShareRecord{"tok": openShare()})

	res := PostComment(context.Background(), "tok", Input{AuthorName: "a", Body: strings.Repeat("x", 2000)}, d)
	assert.True(t, res.Success)

	res = PostComment(context.Background(), "tok", Input{AuthorName: "a", Body: strings.Repeat("x", 2001)}, d)
	require.NotNil(t, res.Err)
	assert.Equal(t, "Comment must be less than 2000 characters", res.Err.Message)
}

func TestPostComment_Guards(t *testing.T) {
	inactive := openShare()
	inactive.IsActive = false
	expired := openShare()
	expired.ExpiresAt = ptr(now.Add(-time.Second))
	disabled := openShare()
	disabled.CanComment = false
	inactiveAndExpired := openShare()
	inactiveAndExpired.IsActive = false
	inactiveAndExpired.ExpiresAt = ptr(now.Add(-time.Hour))
	expiredAndDisabled := openShare()
	expiredAndDisabled.ExpiresAt = ptr(now.Add(-time.Hour))
	expiredAndDisabled.CanComment = false

	shares := map[string]*domain.ShareRecord{
		"inactive": inactive,
		"expired":  expired,
		"disabled": disabled,
		"ie":       inactiveAndExpired,
		"ed":       expiredAndDisabled,
	}

	cases := map[string]Code{
		"missing":  CodeInvalidToken,
		"inactive": CodeInactiveShare,
		"expired":  CodeExpiredShare,
		"disabled": CodeCommentsDisabled,
		"ie":       CodeInactiveShare,
		"ed":       CodeExpiredShare,
	}
	for token, want := range cases {
		t.Run(token, func(t *testing.T) {
			d, f := newDeps(shares)
			res := PostComment(context.Background(), token, goodInput, d)
			require.NotNil(t, res.Err)
			assert.Equal(t, want, res.Err.Code)
			assert.False(t, res.Success)
			assert.Empty(t, f.inserted)
		})
	}
}

func TestPostComment_ExpiryBoundary(t *testing.T) {
	future := openShare()
	future.ExpiresAt = ptr(now.Add(time.Second))
	d, _ := newDeps(map[string]*domain.ShareRecord{"tok": future})
	res := PostComment(context.Background(), "tok", goodInput, d)
	assert.True(t, res.Success)

	past := openShare()
	past.ExpiresAt = ptr(now.Add(-time.Second))
	d, _ = newDeps(map[string]*domain.ShareRecord{"tok": past})
	res = PostComment(context.Background(), "tok", goodInput, d)
	require.NotNil(t, res.Err)
	assert.Equal(t, CodeExpiredShare, res.Err.Code)
}

func TestPostComment_Success(t *testing.T) {
	d, f := newDeps(map[string]*domain.ShareRecord{"tok": openShare()})
	res := PostComment(context.Background(), "tok", Input{AuthorName: "  Ada ", Body: " nice "}, d)

	assert.Equal(t, Result{Success: true, CommentID: "c-s1"}, res)
	assert.Equal(t, []Input{{AuthorName: "Ada", Body: "nice"}}, f.inserted)
}

func TestPostComment_InsertFailure(t *testing.T) {
	d, f := newDeps(map[string]*domain.ShareRecord{"tok": openShare()})
	f.insertErr = errors.New("constraint failed")

	res := PostComment(context.Background(), "tok", goodInput, d)
	require.NotNil(t, res.Err)
	assert.Equal(t, CodeCommentFailed, res.Err.Code)
	assert.Equal(t, "constraint failed", res.Err.Message)
}

func TestPostComment_LookupFailure(t *testing.T) {
	d, f := newDeps(nil)
	f.getErr = errors.New("connection reset")

	res := PostComment(context.Background(), "tok", goodInput, d)
	require.NotNil(t, res.Err)
	assert.Equal(t, CodeCommentFailed, res.Err.Code)
}
