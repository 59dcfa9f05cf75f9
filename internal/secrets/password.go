package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"jobtrack-engine/internal/config"
)

const (
	// Service groups the engine's secrets in the OS keychain.
	KeyringService = "jobtrack"

	// TokenKeyEnv overrides the keychain for the token encryption key.
	TokenKeyEnv = "TOKEN_ENCRYPTION_KEY"
)

// LoadTokenKey returns the token encryption secret: env first, then keychain.
// The caller must validate it through NewCipher before serving.
func LoadTokenKey(keyringAccount string) (string, error) {
	if v := os.Getenv(TokenKeyEnv); v != "" {
		return v, nil
	}
	if strings.TrimSpace(keyringAccount) != "" {
		key, err := keyring.Get(KeyringService, keyringAccount)
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keyring get %s: %w", keyringAccount, err)
		}
	}
	return "", fmt.Errorf("token encryption key not found (set %s or store it in the keychain)", TokenKeyEnv)
}

// StoreTokenKey writes the encryption secret into the keychain. Short keys are
// refused here too so a weak key never lands in storage.
func StoreTokenKey(keyringAccount, key string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	if len(key) < keySize {
		return ErrWeakKey
	}
	return keyring.Set(KeyringService, keyringAccount, key)
}

func GetIMAPPassword(keyringAccount string) (string, error) {
	if strings.TrimSpace(keyringAccount) != "" {
		pw, err := keyring.Get(KeyringService, keyringAccount)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}
	return "", errors.New("IMAP password not found (set it in keychain)")
}

func SetIMAPPassword(keyringAccount string, password string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, keyringAccount, password)
}

func IMAPKeyringAccount(cfg config.Config) string {
	return fmt.Sprintf("jobtrack:imap:%s@%s", cfg.Email.Username, cfg.Email.IMAPHost)
}

func TokenKeyKeyringAccount(cfg config.Config) string {
	if a := strings.TrimSpace(cfg.Security.KeyringAccount); a != "" {
		return a
	}
	return "jobtrack:token-key"
}
