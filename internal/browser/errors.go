package browser

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedKind       = errors.New("unsupported browser engine")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrElementNotFound       = errors.New("ui element not found")
	ErrSessionClosed         = errors.New("browser session closed")
)

// CapabilityUnavailableError reports use of a capability the session was not
// configured for.
type CapabilityUnavailableError struct {
	Capability string
	Reason     string
}

func (e *CapabilityUnavailableError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Capability, ErrCapabilityUnavailable, e.Reason)
}

func (e *CapabilityUnavailableError) Unwrap() error { return ErrCapabilityUnavailable }

// ElementError wraps a selector resolution or interaction failure.
type ElementError struct {
	Locator Locator
	Op      string
	Err     error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Locator, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }

// NotFound builds an ElementError for a locator that did not resolve. cause
// is kept in the chain alongside ErrElementNotFound.
func NotFound(op string, loc Locator, cause error) *ElementError {
	if cause == nil {
		return &ElementError{Locator: loc, Op: op, Err: ErrElementNotFound}
	}
	return &ElementError{Locator: loc, Op: op, Err: fmt.Errorf("%w: %w", ErrElementNotFound, cause)}
}

// IsElementNotFound reports whether err is a selector resolution failure.
func IsElementNotFound(err error) bool { return errors.Is(err, ErrElementNotFound) }

// IsCapabilityUnavailable reports whether err is a misconfigured-session failure.
func IsCapabilityUnavailable(err error) bool { return errors.Is(err, ErrCapabilityUnavailable) }

// DownloadsDisabled is the error every driver returns from Downloader when
// the session was launched without AcceptDownloads.
func DownloadsDisabled() error {
	return &CapabilityUnavailableError{Capability: "download", Reason: "session launched without accept_downloads"}
}
