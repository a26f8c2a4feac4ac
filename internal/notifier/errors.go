package notifier

import (
	"errors"

	"github.com/prakashnk/trafficalert/internal/config"
)

// ErrInvalidRecipient is returned when the recipient address cannot be parsed.
var ErrInvalidRecipient = errors.New("a valid recipient email address is required")

// SendError reports an alert the email provider did not accept: the provider
// was unreachable, rejected the credentials after the single refresh attempt,
// or answered with a non-2xx status.
type SendError struct {
	Provider   config.EmailProvider
	StatusCode int
	Message    string
	Err        error
}

func (e *SendError) Error() string {
	return e.Message
}

func (e *SendError) Unwrap() error {
	return e.Err
}
