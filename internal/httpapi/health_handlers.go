package httpapi

import (
	"context"
	"net/http"
	"time"

	"jobtrack-engine/internal/store"
)

type HealthHandler struct {
	Store *store.DB
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.Pool.PingContext(ctx); err != nil {
			WriteError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "database unavailable: "+err.Error())
			return
		}
	}
	writeJSON(w, map[string]any{"ok": true})
}
