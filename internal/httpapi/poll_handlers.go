package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobtrack-engine/internal/poll"
)

type PollHandler struct {
	Runner PollRunner
	Log    *zap.Logger
	// Timeout bounds a manually triggered run, which outlives the request.
	Timeout time.Duration
}

func (h PollHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Runner.Status())
}

// Run starts a poll in the background and returns immediately. ?user=
// restricts it to one account.
func (h PollHandler) Run(w http.ResponseWriter, r *http.Request) {
	st := h.Runner.Status()
	if st.Running {
		WriteJSON(w, http.StatusConflict, map[string]any{"ok": false, "msg": "already running"})
		return
	}
	if st.BackoffUntil != "" {
		WriteJSON(w, http.StatusTooManyRequests, map[string]any{"ok": false, "msg": "rate limited", "backoff_until": st.BackoffUntil})
		return
	}

	user := strings.TrimSpace(r.URL.Query().Get("user"))
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	reqID := RequestIDFrom(r.Context())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var err error
		if user != "" {
			_, err = h.Runner.RunUser(ctx, user)
		} else {
			_, err = h.Runner.RunAll(ctx)
		}
		if err != nil && h.Log != nil {
			lvl := zap.ErrorLevel
			if errors.Is(err, poll.ErrBusy) || errors.Is(err, poll.ErrBackoff) {
				lvl = zap.InfoLevel
			}
			h.Log.Log(lvl, "manual poll finished with error", zap.String("request_id", reqID), zap.Error(err))
		}
	}()

	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
