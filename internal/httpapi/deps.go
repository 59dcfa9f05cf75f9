package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/poll"
	"jobtrack-engine/internal/store"
)

// PollRunner is the part of *poll.Runner the API drives.
type PollRunner interface {
	RunAll(ctx context.Context) (poll.Summary, error)
	RunUser(ctx context.Context, userID string) (poll.Summary, error)
	Status() poll.Status
}

// TokenSaver persists OAuth tokens; implementations must encrypt at rest.
type TokenSaver interface {
	SaveToken(ctx context.Context, userID, provider string, tok *oauth2.Token) error
	DeleteToken(ctx context.Context, userID, provider string) error
}

type Deps struct {
	Store *store.DB
	Hub   *events.Hub

	Poller PollRunner
	Tokens TokenSaver

	// CfgVal stores config.Config.
	CfgVal      *atomic.Value
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Metrics serves /metrics; nil leaves the route unmounted.
	Metrics http.Handler

	Logger *zap.Logger
	Now    func() time.Time
}
