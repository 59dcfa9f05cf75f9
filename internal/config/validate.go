package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return fmt.Errorf("config validation failed:\n- %s", strings.Join(v.Errors, "\n- "))
}

// NormalizeAndValidate returns a normalized copy and the validation result.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	out.Email.Provider = strings.ToLower(strings.TrimSpace(out.Email.Provider))
	out.Email.IMAPHost = strings.TrimSpace(out.Email.IMAPHost)
	out.Email.Username = strings.TrimSpace(out.Email.Username)
	out.Email.UserID = strings.TrimSpace(out.Email.UserID)
	out.App.LogLevel = strings.ToLower(strings.TrimSpace(out.App.LogLevel))
	if strings.TrimSpace(out.Email.Mailbox) == "" {
		out.Email.Mailbox = "INBOX"
	}

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}
	switch out.App.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		res.addErr("app.log_level must be one of debug, info, warn, error")
	}

	if out.Polling.EmailSeconds <= 0 {
		res.addErr("polling.email_seconds must be > 0")
	} else if out.Polling.EmailSeconds < 60 {
		res.addWarn("polling.email_seconds is very low (%d) and may cause rate limits.", out.Polling.EmailSeconds)
	}
	if out.Polling.MaxParallelAccounts <= 0 {
		res.addErr("polling.max_parallel_accounts must be > 0")
	}
	if out.Polling.RunTimeoutSeconds <= 0 {
		res.addErr("polling.run_timeout_seconds must be > 0")
	}

	if out.Email.Enabled {
		switch out.Email.Provider {
		case ProviderIMAP:
			if out.Email.IMAPHost == "" {
				res.addErr("email.imap_host is required when email.provider=imap")
			}
			if out.Email.IMAPPort == 0 {
				res.addErr("email.imap_port is required when email.provider=imap")
			}
			if out.Email.Username == "" {
				res.addErr("email.username is required when email.provider=imap")
			}
			if out.Email.UserID == "" {
				res.addErr("email.user_id is required when email.provider=imap")
			}
		case ProviderGmail:
			// oauth credentials are per-user and live encrypted in the store
			if strings.TrimSpace(out.Gmail.ClientID) == "" {
				res.addErr("gmail.client_id is required when email.provider=gmail")
			}
			if strings.TrimSpace(out.Gmail.ClientSecret) == "" {
				res.addWarn("gmail.client_secret is empty; token refresh will fail.")
			}
			if out.Gmail.RateLimit <= 0 {
				res.addErr("gmail.rate_limit must be > 0")
			}
		default:
			res.addErr("email.provider must be %q or %q", ProviderIMAP, ProviderGmail)
		}
	}

	return out, res
}
