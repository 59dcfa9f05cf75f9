package events

import (
	"encoding/json"
	"time"
)

// Event types pushed to /events subscribers.
const (
	JobStatusChanged = "job_status_changed"
	PollStarted      = "poll_started"
	PollFinished     = "poll_finished"
	PollRateLimited  = "poll_rate_limited"
)

// Version of the event envelope. Bump when Data shapes change incompatibly.
const Version = 1

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type JobStatusData struct {
	JobID      int64  `json:"job_id"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}

type PollData struct {
	UserID        string `json:"user_id,omitempty"`
	Accounts      int    `json:"accounts,omitempty"`
	Inserted      int    `json:"inserted"`
	Updated       int    `json:"updated"`
	Skipped       int    `json:"skipped"`
	DetectedCount int    `json:"detected_count"`
	Error         string `json:"error,omitempty"`
}

// MakeEvent returns the JSON line for one event. Marshal failures of data
// produce an event without a payload rather than no event at all.
func MakeEvent(reqID, typ string, data any) string {
	var raw json.RawMessage
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	b, _ := json.Marshal(Event{
		Type:      typ,
		Version:   Version,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	})
	return string(b)
}
