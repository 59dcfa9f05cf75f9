package httpapi

import (
	"net/http"

	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/logging"
)

// NewMux returns the raw mux so main() can still attach /shutdown.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	log := logging.OrNop(d.Logger)
	var pub events.Publisher
	if d.Hub != nil {
		pub = d.Hub
	}

	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: HealthHandler{Store: d.Store}.Health,
	}))

	// Jobs
	jh := JobsHandler{Store: d.Store, Hub: pub}
	mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  jh.List,
		http.MethodPost: jh.Create,
	}))
	mux.HandleFunc("/jobs/", jh.ByPath) // /jobs/{id}, /jobs/{id}/history

	eh := EmailsHandler{Store: d.Store}
	mux.HandleFunc("/emails", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.List,
	}))

	// Poll
	ph := PollHandler{Runner: d.Poller, Log: log}
	mux.HandleFunc("/poll/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ph.Status,
	}))
	mux.HandleFunc("/poll/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ph.Run,
	}))

	// Resume shares
	sh := SharesHandler{Store: d.Store, Now: d.Now}
	mux.HandleFunc("/shares", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Create,
	}))
	mux.HandleFunc("/shares/", sh.ByPath) // /shares/{token}, /shares/{token}/comments

	// OAuth tokens (encrypted at rest)
	oh := OAuthHandler{Tokens: d.Tokens}
	mux.HandleFunc("/oauth/tokens", methodMux(map[string]http.HandlerFunc{
		http.MethodPost:   oh.Save,
		http.MethodDelete: oh.Delete,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Validate,
	}))

	// Secrets (use CfgVal, NOT a snapshot cfg)
	sec := SecretsHandler{CfgVal: d.CfgVal}
	mux.HandleFunc("/api/secrets/imap", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sec.SetIMAPPassword,
	}))

	dh := DBHandler{Store: d.Store}
	mux.HandleFunc("/db/checkpoint", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: dh.Checkpoint,
	}))

	// SSE events
	evh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: evh.ServeSSE,
	}))

	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}

	return mux
}

// Handler wraps the mux in the standard middleware stack.
func Handler(d Deps, mux http.Handler) http.Handler {
	log := logging.OrNop(d.Logger)
	return Chain(mux, RequestID, Recover(log), AccessLog(log), Cors)
}
