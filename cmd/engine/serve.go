package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/httpapi"
	"jobtrack-engine/internal/poll"
	"jobtrack-engine/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled email poller",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadConfig()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.openStore(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := events.NewHub()
	runner := newRunner(a, hub, poll.NewMetrics(reg))

	cfg := a.cfg()
	if cfg.Polling.Enabled && cfg.Email.Enabled {
		go scheduler.Every(ctx, time.Duration(cfg.Polling.EmailSeconds)*time.Second, "email-poll", a.log, runner.Task)
	} else {
		a.log.Info("email polling disabled")
	}

	deps := httpapi.Deps{
		Store:       a.db,
		Hub:         hub,
		Poller:      runner,
		Tokens:      a.tokens,
		CfgVal:      a.cfgVal,
		UserCfgPath: a.cfgPath,
		LoadCfg:     a.loadCfg,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:      a.log,
	}
	mux := httpapi.NewMux(deps)
	srv := &http.Server{
		Handler:           httpapi.Handler(deps, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	token, err := shutdownToken(dataDir)
	if err != nil {
		return fmt.Errorf("shutdown token: %w", err)
	}
	mux.HandleFunc("/shutdown", shutdownHandler(token, srv.Shutdown))

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.log.Info("engine listening", zap.String("addr", "http://"+addr), zap.String("version", version))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newRunner wires the poll runner to the store, the account resolver and
// the event hub.
func newRunner(a *app, pub events.Publisher, m *poll.Metrics) *poll.Runner {
	cfg := a.cfg()
	return poll.NewRunner(poll.Options{
		LockPath:    filepath.Join(dataDir, "poll.lock"),
		MaxParallel: cfg.Polling.MaxParallelAccounts,
		RunTimeout:  time.Duration(cfg.Polling.RunTimeoutSeconds) * time.Second,
	}, poll.Deps{
		Store:     a.db,
		Accounts:  poll.ConfigAccounts(a.cfg, a.tokens, a.log),
		Publisher: pub,
		Metrics:   m,
		Logger:    a.log,
	})
}

