package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/emailpoll"
)

// UpsertEmail is the dedupe authority for polled mail, keyed by
// (user, provider message id). An unchanged row reports skipped; a row whose
// content or detected status changed reports updated.
func (d *DB) UpsertEmail(ctx context.Context, userID string, m domain.EmailMessage, detected domain.Status) (emailpoll.UpsertOutcome, error) {
	if strings.TrimSpace(m.ID) == "" {
		return "", errors.New("upsert email: empty message id")
	}

	received := m.Date
	if t, err := m.OccurredAt(); err == nil {
		received = formatTime(t)
	}
	now := formatTime(d.now())

	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var subject, snippet, prev string
	err = tx.QueryRowContext(ctx, `
SELECT subject, snippet, detected_status FROM email_tracking
WHERE user_id = ? AND message_id = ?;`, userID, m.ID).Scan(&subject, &snippet, &prev)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
INSERT INTO email_tracking(user_id, message_id, subject, snippet, sender, received_at, detected_status, first_seen_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?);`,
			userID, m.ID, m.Subject, m.Snippet, m.From, received, string(detected), now, now); err != nil {
			return "", fmt.Errorf("insert email: %w", err)
		}
		return emailpoll.Inserted, tx.Commit()

	case err != nil:
		return "", err
	}

	if subject == m.Subject && snippet == m.Snippet && prev == string(detected) {
		return emailpoll.Skipped, nil
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE email_tracking
SET subject = ?, snippet = ?, sender = ?, received_at = ?, detected_status = ?, updated_at = ?
WHERE user_id = ? AND message_id = ?;`,
		m.Subject, m.Snippet, m.From, received, string(detected), now, userID, m.ID); err != nil {
		return "", fmt.Errorf("update email: %w", err)
	}
	return emailpoll.Updated, tx.Commit()
}

// MatchJob resolves a message to one of the user's jobs. Sender domains mapped
// in company_domains win; otherwise a company name that appears in the
// subject or sender matches. Among candidates, open jobs beat closed ones and
// the most recently touched wins.
func (d *DB) MatchJob(ctx context.Context, userID string, m domain.EmailMessage) (int64, bool, error) {
	byDomain, err := d.companiesForDomain(ctx, m.SenderDomain())
	if err != nil {
		return 0, false, fmt.Errorf("match job: %w", err)
	}

	rows, err := d.Pool.QueryContext(ctx, `
SELECT id, company, status FROM jobs
WHERE user_id = ?
ORDER BY updated_at DESC, id DESC;`, userID)
	if err != nil {
		return 0, false, fmt.Errorf("match job: %w", err)
	}
	defer rows.Close()

	haystack := strings.ToLower(m.Subject + " " + m.From)

	type cand struct {
		id       int64
		terminal bool
	}
	var domainHits, nameHits []cand
	for rows.Next() {
		var id int64
		var company, st string
		if err := rows.Scan(&id, &company, &st); err != nil {
			return 0, false, err
		}
		key := normalizeCompanyKey(company)
		c := cand{id: id, terminal: domain.Status(st).Terminal()}
		switch {
		case byDomain[key]:
			domainHits = append(domainHits, c)
		case key != "" && strings.Contains(haystack, key):
			nameHits = append(nameHits, c)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}

	pick := func(cs []cand) (int64, bool) {
		for _, c := range cs {
			if !c.terminal {
				return c.id, true
			}
		}
		if len(cs) > 0 {
			return cs[0].id, true
		}
		return 0, false
	}
	if id, ok := pick(domainHits); ok {
		return id, true, nil
	}
	id, ok := pick(nameHits)
	return id, ok, nil
}

type TrackedEmail struct {
	MessageID      string        `json:"messageId"`
	Subject        string        `json:"subject"`
	From           string        `json:"from"`
	ReceivedAt     string        `json:"receivedAt"`
	DetectedStatus domain.Status `json:"detectedStatus"`
}

func (d *DB) ListTrackedEmails(ctx context.Context, userID string, limit int) ([]TrackedEmail, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := d.Pool.QueryContext(ctx, `
SELECT message_id, subject, sender, received_at, detected_status
FROM email_tracking
WHERE user_id = ?
ORDER BY received_at DESC
LIMIT ?;`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackedEmail
	for rows.Next() {
		var e TrackedEmail
		var st string
		if err := rows.Scan(&e.MessageID, &e.Subject, &e.From, &e.ReceivedAt, &st); err != nil {
			return nil, err
		}
		e.DetectedStatus = domain.Status(st)
		out = append(out, e)
	}
	return out, rows.Err()
}
