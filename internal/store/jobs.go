package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobtrack-engine/internal/domain"
)

type JobInsert struct {
	UserID  string
	Company string
	Title   string
	URL     string
	Status  domain.Status // defaults to Interested
}

func (d *DB) CreateJob(ctx context.Context, j JobInsert) (domain.Job, error) {
	if strings.TrimSpace(j.UserID) == "" || strings.TrimSpace(j.Company) == "" || strings.TrimSpace(j.Title) == "" {
		return domain.Job{}, errors.New("create job: user_id, company and title are required")
	}
	st := j.Status
	if st == domain.StatusNone {
		st = domain.StatusInterested
	}
	if !st.Valid() {
		return domain.Job{}, fmt.Errorf("create job: invalid status %q", st)
	}

	now := d.now()
	ts := formatTime(now)
	res, err := d.Pool.ExecContext(ctx, `
INSERT INTO jobs(user_id, company, title, url, status, status_changed_at, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?);`,
		j.UserID, strings.TrimSpace(j.Company), strings.TrimSpace(j.Title), j.URL, string(st), ts, ts, ts)
	if err != nil {
		return domain.Job{}, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Job{}, err
	}
	return domain.Job{
		ID:              id,
		UserID:          j.UserID,
		Company:         strings.TrimSpace(j.Company),
		Title:           strings.TrimSpace(j.Title),
		URL:             j.URL,
		Status:          st,
		StatusChangedAt: now,
		CreatedAt:       now,
	}, nil
}

func (d *DB) GetJob(ctx context.Context, id int64) (domain.Job, error) {
	row := d.Pool.QueryRowContext(ctx, `
SELECT id, user_id, company, title, url, status, status_changed_at, created_at
FROM jobs WHERE id = ?;`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, ErrNotFound
	}
	return j, err
}

func (d *DB) ListJobs(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	rows, err := d.Pool.QueryContext(ctx, `
SELECT id, user_id, company, title, url, status, status_changed_at, created_at
FROM jobs
WHERE user_id = ?
ORDER BY updated_at DESC, id DESC
LIMIT ?;`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (d *DB) DeleteJob(ctx context.Context, id int64) error {
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus moves a job to st as of occurredAt (the email's date, not
// the wall clock). Re-applying a transition already recorded for this job at
// the same instant, or an instant older than the latest transition, is a
// no-op, which makes overlapping poll windows safe.
func (d *DB) UpdateJobStatus(ctx context.Context, jobID int64, st domain.Status, occurredAt time.Time) error {
	if !st.Valid() {
		return fmt.Errorf("update job %d: invalid status %q", jobID, st)
	}

	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var cur string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?;`, jobID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update job %d: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	// an email older than the latest recorded transition never moves the job
	var last string
	err = tx.QueryRowContext(ctx, `
SELECT occurred_at FROM job_status_events WHERE job_id = ? ORDER BY id DESC LIMIT 1;`, jobID).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if last != "" && occurredAt.Before(parseTime(last)) {
		return tx.Commit()
	}

	at := formatTime(occurredAt)
	res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO job_status_events(job_id, from_status, to_status, occurred_at, source, recorded_at)
VALUES(?,?,?,?,?,?);`, jobID, cur, string(st), at, "email", formatTime(d.now()))
	if err != nil {
		return fmt.Errorf("record status event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE jobs SET status = ?, status_changed_at = ?, updated_at = ?
WHERE id = ?;`, string(st), at, formatTime(d.now()), jobID); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return tx.Commit()
}

func (d *DB) StatusHistory(ctx context.Context, jobID int64) ([]domain.StatusEvent, error) {
	rows, err := d.Pool.QueryContext(ctx, `
SELECT job_id, from_status, to_status, occurred_at, source
FROM job_status_events
WHERE job_id = ?
ORDER BY id;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StatusEvent
	for rows.Next() {
		var e domain.StatusEvent
		var from, to, at string
		if err := rows.Scan(&e.JobID, &from, &to, &at, &e.Source); err != nil {
			return nil, err
		}
		e.From, e.To, e.OccurredAt = domain.Status(from), domain.Status(to), parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (domain.Job, error) {
	var j domain.Job
	var st, changed, created string
	if err := r.Scan(&j.ID, &j.UserID, &j.Company, &j.Title, &j.URL, &st, &changed, &created); err != nil {
		return domain.Job{}, err
	}
	j.Status = domain.Status(st)
	j.StatusChangedAt = parseTime(changed)
	j.CreatedAt = parseTime(created)
	return j, nil
}
