package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jobtrack-engine/internal/comments"
	"jobtrack-engine/internal/domain"
)

type ShareInsert struct {
	ExpiresAt  *time.Time
	CanComment bool
}

// CreateShare issues a new share link with a random 32-byte token.
func (d *DB) CreateShare(ctx context.Context, in ShareInsert) (domain.ShareRecord, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return domain.ShareRecord{}, err
	}
	s := domain.ShareRecord{
		ID:         uuid.NewString(),
		Token:      hex.EncodeToString(b[:]),
		IsActive:   true,
		ExpiresAt:  in.ExpiresAt,
		CanComment: in.CanComment,
	}

	var expires sql.NullString
	if s.ExpiresAt != nil {
		expires = sql.NullString{String: formatTime(*s.ExpiresAt), Valid: true}
	}
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO resume_shares(id, token, is_active, expires_at, can_comment, created_at)
VALUES(?,?,?,?,?,?);`, s.ID, s.Token, true, expires, s.CanComment, formatTime(d.now()))
	if err != nil {
		return domain.ShareRecord{}, fmt.Errorf("insert share: %w", err)
	}
	return s, nil
}

func (d *DB) SetShareActive(ctx context.Context, id string, active bool) error {
	res, err := d.Pool.ExecContext(ctx, `UPDATE resume_shares SET is_active = ? WHERE id = ?;`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetShareByToken returns (nil, nil) for an unknown token.
func (d *DB) GetShareByToken(ctx context.Context, token string) (*domain.ShareRecord, error) {
	var s domain.ShareRecord
	var expires sql.NullString
	err := d.Pool.QueryRowContext(ctx, `
SELECT id, token, is_active, expires_at, can_comment
FROM resume_shares WHERE token = ? LIMIT 1;`, token).
		Scan(&s.ID, &s.Token, &s.IsActive, &expires, &s.CanComment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid && expires.String != "" {
		t := parseTime(expires.String)
		s.ExpiresAt = &t
	}
	return &s, nil
}

func (d *DB) InsertComment(ctx context.Context, shareID string, in comments.Input) (string, error) {
	id := uuid.NewString()
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO resume_share_comments(id, share_id, author_name, body, created_at)
VALUES(?,?,?,?,?);`, id, shareID, in.AuthorName, in.Body, formatTime(d.now()))
	if err != nil {
		return "", fmt.Errorf("insert comment: %w", err)
	}
	return id, nil
}

func (d *DB) ListComments(ctx context.Context, shareID string) ([]domain.Comment, error) {
	rows, err := d.Pool.QueryContext(ctx, `
SELECT id, share_id, author_name, body, created_at
FROM resume_share_comments
WHERE share_id = ?
ORDER BY created_at, id;`, shareID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Comment
	for rows.Next() {
		var c domain.Comment
		var created string
		if err := rows.Scan(&c.ID, &c.ShareID, &c.AuthorName, &c.Body, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
