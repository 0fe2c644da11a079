package portal

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials is the cause of an AuthError raised because the
// portal rejected the username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthError means the portal definitively rejected the credentials. It is
// never retried and marks the credentials as bad.
type AuthError struct {
	Portal string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed on %s", e.Portal)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func NewAuthError(portal, reason string) *AuthError {
	return &AuthError{Portal: portal, Reason: reason, Err: ErrInvalidCredentials}
}

// TransientError is a failure that may go away on retry (network errors,
// timeouts, layout surprises).
type TransientError struct {
	Step string
	Err  error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: transient failure", e.Step)
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Err.Error())
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Transient(step string, err error) *TransientError {
	return &TransientError{Step: step, Err: err}
}

// Transientf is Transient with a formatted error.
func Transientf(step, format string, args ...any) *TransientError {
	return &TransientError{Step: step, Err: fmt.Errorf(format, args...)}
}

// UnknownPortalError is returned when no engine is registered for a key.
type UnknownPortalError struct {
	Key string
}

func (e *UnknownPortalError) Error() string {
	return fmt.Sprintf("no engine registered for portal '%s'", e.Key)
}

func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

func IsUnknownPortal(err error) bool {
	var target *UnknownPortalError
	return errors.As(err, &target)
}
