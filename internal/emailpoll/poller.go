// Package emailpoll turns recent mailbox messages into job status transitions.
package emailpoll

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/logging"
	"jobtrack-engine/internal/status"
)

// Window is how far back each run looks. Runs overlap by design; the store's
// upsert is the only dedupe authority.
const Window = 14 * 24 * time.Hour

// SinceLayout is the ISO-8601 UTC form handed to providers.
const SinceLayout = "2006-01-02T15:04:05Z"

type Provider interface {
	ListMessages(ctx context.Context, sinceISO string) ([]domain.EmailMessage, error)
}

type UpsertOutcome string

const (
	Inserted UpsertOutcome = "inserted"
	Updated  UpsertOutcome = "updated"
	Skipped  UpsertOutcome = "skipped"
)

type Store interface {
	UpsertEmail(ctx context.Context, userID string, msg domain.EmailMessage, detected domain.Status) (UpsertOutcome, error)
	// MatchJob returns ok=false when no tracked job fits the message.
	MatchJob(ctx context.Context, userID string, msg domain.EmailMessage) (jobID int64, ok bool, err error)
	UpdateJobStatus(ctx context.Context, jobID int64, st domain.Status, occurredAt time.Time) error
}

type Deps struct {
	UserID   string
	Provider Provider
	Store    Store
	Now      func() time.Time
	Logger   *zap.Logger
}

type Result struct {
	Inserted      int `json:"inserted"`
	Updated       int `json:"updated"`
	Skipped       int `json:"skipped"`
	DetectedCount int `json:"detectedCount"`
}

// RunEmailPoller fetches the window, then processes messages one at a time in
// provider order. A provider error is returned as-is so callers can inspect
// it; store and matcher errors abort the run wrapped with the message id.
func RunEmailPoller(ctx context.Context, d Deps) (Result, error) {
	var res Result
	log := logging.OrNop(d.Logger).With(zap.String("user_id", d.UserID))

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	since := now().UTC().Add(-Window).Format(SinceLayout)

	msgs, err := d.Provider.ListMessages(ctx, since)
	if err != nil {
		return Result{}, err
	}
	log.Debug("fetched messages", zap.String("since", since), zap.Int("count", len(msgs)))

	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		detected := status.Classify(m.Subject, m.Snippet)

		outcome, err := d.Store.UpsertEmail(ctx, d.UserID, m, detected)
		if err != nil {
			return Result{}, fmt.Errorf("email %s: upsert: %w", m.ID, err)
		}
		switch outcome {
		case Inserted:
			res.Inserted++
		case Updated:
			res.Updated++
		case Skipped:
			res.Skipped++
			continue
		default:
			return Result{}, fmt.Errorf("email %s: upsert: unknown outcome %q", m.ID, outcome)
		}

		if detected == domain.StatusNone {
			continue
		}
		res.DetectedCount++

		jobID, ok, err := d.Store.MatchJob(ctx, d.UserID, m)
		if err != nil {
			return Result{}, fmt.Errorf("email %s: match job: %w", m.ID, err)
		}
		if !ok {
			log.Debug("no job matched", zap.String("email_id", m.ID), zap.String("status", string(detected)))
			continue
		}

		occurredAt, err := m.OccurredAt()
		if err != nil {
			return Result{}, err
		}
		if err := d.Store.UpdateJobStatus(ctx, jobID, detected, occurredAt); err != nil {
			return Result{}, fmt.Errorf("email %s: update job %d: %w", m.ID, jobID, err)
		}
		log.Info("job status updated",
			zap.String("email_id", m.ID),
			zap.Int64("job_id", jobID),
			zap.String("status", string(detected)),
			zap.Time("occurred_at", occurredAt),
		)
	}

	return res, nil
}
