package hosts

import (
	"errors"
	"fmt"
)

// Error taxonomy for capability failures. Schedulers branch on these to
// decide between fallback, credential refresh, and giving up.
var (
	// ErrCancelled marks a user-initiated stop. Never auto-retried.
	ErrCancelled = errors.New("cancelled by user")
	// ErrNoCapability means no handler is registered for a host. Fatal for
	// that one link or host only.
	ErrNoCapability = errors.New("no capability registered for host")
)

// TransferError is a network or host failure. It is retryable via a fallback
// link or a later retry pass.
type TransferError struct {
	Host string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed on %s: %v", e.Host, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// AuthError means a credential or token was invalid or expired. Callers
// retry once after a refresh.
type AuthError struct {
	Host string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed on %s: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsTransfer reports whether err is (or wraps) a TransferError.
func IsTransfer(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
