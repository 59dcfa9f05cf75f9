package emailpoll

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError is a transport-level failure from a mail provider. Code is an
// HTTP-style status (429 for rate limiting).
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// IsRateLimited reports whether err carries a 429 from the provider.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == http.StatusTooManyRequests
}
