package domain

import "time"

type Job struct {
	ID              int64     `json:"id"`
	UserID          string    `json:"userId"`
	Company         string    `json:"company"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Status          Status    `json:"status"`
	StatusChangedAt time.Time `json:"statusChangedAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

// StatusEvent is one recorded transition of a job's status.
type StatusEvent struct {
	JobID      int64     `json:"jobId"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	OccurredAt time.Time `json:"occurredAt"`
	Source     string    `json:"source"`
}
