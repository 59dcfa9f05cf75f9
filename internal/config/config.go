// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderIMAP  = "imap"
	ProviderGmail = "gmail"
)

type Config struct {
	App struct {
		Port     int    `yaml:"port" json:"port"`
		DataDir  string `yaml:"data_dir" json:"data_dir"`
		LogLevel string `yaml:"log_level" json:"log_level"`
		DevLogs  bool   `yaml:"dev_logs" json:"dev_logs"`
	} `yaml:"app" json:"app"`

	Polling struct {
		Enabled             bool `yaml:"enabled" json:"enabled"`
		EmailSeconds        int  `yaml:"email_seconds" json:"email_seconds"`
		MaxParallelAccounts int  `yaml:"max_parallel_accounts" json:"max_parallel_accounts"`
		RunTimeoutSeconds   int  `yaml:"run_timeout_seconds" json:"run_timeout_seconds"`
	} `yaml:"polling" json:"polling"`

	Email struct {
		Enabled  bool   `yaml:"enabled" json:"enabled"`
		Provider string `yaml:"provider" json:"provider"` // imap | gmail
		UserID   string `yaml:"user_id" json:"user_id"`
		IMAPHost string `yaml:"imap_host" json:"imap_host"`
		IMAPPort int    `yaml:"imap_port" json:"imap_port"`
		Username string `yaml:"username" json:"username"`
		Mailbox  string `yaml:"mailbox" json:"mailbox"`
	} `yaml:"email" json:"email"`

	Gmail struct {
		ClientID     string `yaml:"client_id" json:"client_id"`
		ClientSecret string `yaml:"client_secret" json:"-"`
		RedirectURL  string `yaml:"redirect_url" json:"redirect_url"`
		// Requests per second against the Gmail API, per process.
		RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	} `yaml:"gmail" json:"gmail"`

	Security struct {
		KeyringAccount string `yaml:"keyring_account" json:"keyring_account"`
	} `yaml:"security" json:"security"`
}

// Default returns the values used when config.yml leaves a field unset.
func Default() Config {
	var c Config
	c.App.Port = 38471
	c.App.DataDir = "."
	c.App.LogLevel = "info"
	c.Polling.Enabled = true
	c.Polling.EmailSeconds = 300
	c.Polling.MaxParallelAccounts = 4
	c.Polling.RunTimeoutSeconds = 120
	c.Email.Provider = ProviderGmail
	c.Email.Mailbox = "INBOX"
	c.Email.IMAPPort = 993
	c.Gmail.RateLimit = 5
	return c
}

// Load reads path over Default(), then applies .env files and JOBTRACK_*
// environment overrides. Env always wins.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := loadEnvFiles(); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadEnvFiles() error {
	if f := os.Getenv("ENV_FILE"); f != "" {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
		return nil
	}
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("JOBTRACK_DATA_DIR", &cfg.App.DataDir)
	str("JOBTRACK_LOG_LEVEL", &cfg.App.LogLevel)
	str("JOBTRACK_EMAIL_PROVIDER", &cfg.Email.Provider)
	str("JOBTRACK_EMAIL_USER_ID", &cfg.Email.UserID)
	str("JOBTRACK_IMAP_HOST", &cfg.Email.IMAPHost)
	str("JOBTRACK_IMAP_USERNAME", &cfg.Email.Username)
	str("JOBTRACK_GMAIL_CLIENT_ID", &cfg.Gmail.ClientID)
	str("JOBTRACK_GMAIL_CLIENT_SECRET", &cfg.Gmail.ClientSecret)
	if err := num("JOBTRACK_PORT", &cfg.App.Port); err != nil {
		return err
	}
	if err := num("JOBTRACK_IMAP_PORT", &cfg.Email.IMAPPort); err != nil {
		return err
	}
	return num("JOBTRACK_POLL_SECONDS", &cfg.Polling.EmailSeconds)
}
