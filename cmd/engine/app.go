package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/logging"
	"jobtrack-engine/internal/secrets"
	"jobtrack-engine/internal/store"
)

const dbFile = "jobtrack.db"

// app is the state every subcommand shares.
type app struct {
	cfgPath string
	cfgVal  *atomic.Value // config.Config
	log     *zap.Logger
	cipher  *secrets.Cipher
	db      *store.DB
	tokens  store.TokenStore
}

func (a *app) cfg() config.Config { return a.cfgVal.Load().(config.Config) }

func (a *app) loadCfg() (config.Config, error) {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return cfg, err
	}
	cfg, vr := config.NormalizeAndValidate(cfg)
	for _, w := range vr.Warnings {
		a.logger().Warn("config", zap.String("warning", w))
	}
	return cfg, vr.Err()
}

func (a *app) logger() *zap.Logger { return logging.OrNop(a.log) }

// loadConfig bootstraps and validates config.yml and builds the logger.
func loadConfig() (*app, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	cfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		return nil, fmt.Errorf("config bootstrap failed: %w", err)
	}
	a := &app{cfgPath: cfgPath, cfgVal: &atomic.Value{}}

	cfg, err := a.loadCfg()
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", cfgPath, err)
	}
	a.cfgVal.Store(cfg)

	log, err := logging.New(cfg.App.LogLevel, cfg.App.DevLogs)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.log = log
	return a, nil
}

// mustCipher loads the token key. A missing or short key is fatal: the engine
// must not start with secrets it cannot protect.
func (a *app) mustCipher() *secrets.Cipher {
	key, err := secrets.LoadTokenKey(secrets.TokenKeyKeyringAccount(a.cfg()))
	if err != nil {
		a.log.Fatal("token encryption key unavailable", zap.Error(err))
	}
	c, err := secrets.NewCipher(key)
	if err != nil {
		a.log.Fatal("token encryption key rejected", zap.Error(err))
	}
	return c
}

// openStore opens the database and the encrypted token store.
func (a *app) openStore() error {
	a.cipher = a.mustCipher()

	dbPath := filepath.Join(a.cfg().App.DataDir, dbFile)
	if a.cfg().App.DataDir == "" || a.cfg().App.DataDir == "." {
		dbPath = filepath.Join(dataDir, dbFile)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	a.db = db
	a.tokens = store.TokenStore{DB: db, Cipher: a.cipher}
	a.log.Info("store opened", zap.String("path", dbPath))
	return nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
