package poll

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/logging"
	"jobtrack-engine/internal/mailbox"
	"jobtrack-engine/internal/secrets"
)

// TokenSourcer is the subset of store.TokenStore the Gmail accounts need.
type TokenSourcer interface {
	Users(ctx context.Context, provider string) ([]string, error)
	TokenSource(ctx context.Context, cfg *oauth2.Config, userID, provider string) (oauth2.TokenSource, error)
}

// ConfigAccounts resolves accounts from cfg on every run, so a config reload
// or a newly connected Gmail user is picked up without a restart.
func ConfigAccounts(cfg func() config.Config, tokens TokenSourcer, log *zap.Logger) AccountSource {
	log = logging.OrNop(log)
	var (
		limiter     *rate.Limiter
		limiterRate float64
	)
	return AccountSourceFunc(func(ctx context.Context) ([]Account, error) {
		c := cfg()
		if !c.Email.Enabled {
			return nil, nil
		}
		switch c.Email.Provider {
		case config.ProviderIMAP:
			return []Account{imapAccount(c, log)}, nil
		case config.ProviderGmail:
			if limiter == nil || limiterRate != c.Gmail.RateLimit {
				burst := int(math.Max(1, math.Ceil(c.Gmail.RateLimit)))
				limiter = rate.NewLimiter(rate.Limit(c.Gmail.RateLimit), burst)
				limiterRate = c.Gmail.RateLimit
			}
			return gmailAccounts(ctx, c, tokens, limiter, log)
		default:
			return nil, fmt.Errorf("unknown email provider %q", c.Email.Provider)
		}
	})
}

func imapAccount(c config.Config, log *zap.Logger) Account {
	keyAcct := secrets.IMAPKeyringAccount(c)
	return Account{
		UserID: c.Email.UserID,
		Provider: mailbox.NewIMAPProvider(mailbox.IMAPConfig{
			Addr:     mailbox.IMAPAddr(c.Email.IMAPHost, c.Email.IMAPPort),
			Username: c.Email.Username,
			Mailbox:  c.Email.Mailbox,
			Password: func() (string, error) { return secrets.GetIMAPPassword(keyAcct) },
		}, log.With(zap.String("provider", config.ProviderIMAP))),
	}
}

func gmailAccounts(ctx context.Context, c config.Config, tokens TokenSourcer, limiter *rate.Limiter, log *zap.Logger) ([]Account, error) {
	if tokens == nil {
		return nil, errors.New("gmail provider needs a token store")
	}
	users, err := tokens.Users(ctx, mailbox.GmailProviderName)
	if err != nil {
		return nil, fmt.Errorf("list gmail users: %w", err)
	}
	oc := mailbox.GmailOAuthConfig(c.Gmail.ClientID, c.Gmail.ClientSecret, c.Gmail.RedirectURL)

	out := make([]Account, 0, len(users))
	for _, u := range users {
		ts, err := tokens.TokenSource(ctx, oc, u, mailbox.GmailProviderName)
		if err != nil {
			// one unreadable token should not hide every other user
			log.Error("gmail token unavailable", zap.String("user_id", u), zap.Error(err))
			continue
		}
		out = append(out, Account{
			UserID: u,
			Provider: mailbox.NewGmailProvider(ctx, ts, log.With(zap.String("provider", config.ProviderGmail)),
				mailbox.WithLimiter(limiter)),
		})
	}
	return out, nil
}
