package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenCipher seals secrets before they reach disk.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// TokenStore persists OAuth tokens in encrypted form only. Plaintext exists
// in memory for the duration of a single call.
type TokenStore struct {
	DB     *DB
	Cipher TokenCipher
}

func (s TokenStore) SaveToken(ctx context.Context, userID, provider string, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("save token: access token is empty")
	}
	access, err := s.Cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	var refresh string
	if tok.RefreshToken != "" {
		if refresh, err = s.Cipher.Encrypt(tok.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	var expiry string
	if !tok.Expiry.IsZero() {
		expiry = formatTime(tok.Expiry)
	}

	// An empty refresh token on re-save keeps the stored one; providers only
	// send it on first consent.
	_, err = s.DB.Pool.ExecContext(ctx, `
INSERT INTO oauth_tokens(user_id, provider, access_token, refresh_token, token_type, expiry, updated_at)
VALUES(?,?,?,?,?,?,?)
ON CONFLICT(user_id, provider) DO UPDATE SET
  access_token = excluded.access_token,
  refresh_token = CASE WHEN excluded.refresh_token = '' THEN oauth_tokens.refresh_token ELSE excluded.refresh_token END,
  token_type = excluded.token_type,
  expiry = excluded.expiry,
  updated_at = excluded.updated_at;`,
		userID, provider, access, refresh, tok.TokenType, expiry, formatTime(s.DB.now()))
	return err
}

func (s TokenStore) LoadToken(ctx context.Context, userID, provider string) (*oauth2.Token, error) {
	var access, refresh, typ, expiry string
	err := s.DB.Pool.QueryRowContext(ctx, `
SELECT access_token, refresh_token, token_type, expiry
FROM oauth_tokens WHERE user_id = ? AND provider = ?;`, userID, provider).
		Scan(&access, &refresh, &typ, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{TokenType: typ}
	if tok.AccessToken, err = s.Cipher.Decrypt(access); err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	if refresh != "" {
		if tok.RefreshToken, err = s.Cipher.Decrypt(refresh); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	if expiry != "" {
		tok.Expiry = parseTime(expiry)
	}
	return tok, nil
}

func (s TokenStore) DeleteToken(ctx context.Context, userID, provider string) error {
	_, err := s.DB.Pool.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE user_id = ? AND provider = ?;`, userID, provider)
	return err
}

// Users lists user ids holding a token for provider; the poll runner uses it
// to decide which mailboxes to poll.
func (s TokenStore) Users(ctx context.Context, provider string) ([]string, error) {
	rows, err := s.DB.Pool.QueryContext(ctx, `SELECT user_id FROM oauth_tokens WHERE provider = ? ORDER BY user_id;`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// persistingSource writes refreshed tokens back through the store.
type persistingSource struct {
	ctx      context.Context
	store    TokenStore
	userID   string
	provider string
	base     oauth2.TokenSource
	last     string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != p.last {
		if err := p.store.SaveToken(p.ctx, p.userID, p.provider, tok); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// TokenSource loads the user's token and wraps cfg's refreshing source so
// renewed tokens are re-encrypted into the store.
func (s TokenStore) TokenSource(ctx context.Context, cfg *oauth2.Config, userID, provider string) (oauth2.TokenSource, error) {
	tok, err := s.LoadToken(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	return oauth2.ReuseTokenSource(tok, &persistingSource{
		ctx:      ctx,
		store:    s,
		userID:   userID,
		provider: provider,
		base:     cfg.TokenSource(ctx, tok),
		last:     tok.AccessToken,
	}), nil
}
