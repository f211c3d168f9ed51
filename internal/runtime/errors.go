package runtime

import (
	"errors"
	"fmt"
)

// Sentinel errors and interrupt kinds.
var (
	// ErrExit is raised by Router.Exit to unwind a strategy's main loop
	// without being treated as a failure.
	ErrExit = errors.New("runtime: router exit")

	// ErrTerminate and ErrRestart are the InterruptSentinel values: they
	// propagate out of the executor's event loop verbatim.
	ErrTerminate = errors.New("runtime: terminate signal")
	ErrRestart   = errors.New("runtime: restart signal")

	// ErrNetworkSentinel means the host reported a network error while
	// calling send(); the executor absorbs it and keeps running.
	ErrNetworkSentinel = errors.New("runtime: network error")

	// ErrStartup marks a strategy that failed on its first resume. Fatal to
	// startup.
	ErrStartup = errors.New("runtime: strategy startup failed")

	// ErrNoWant is the fatal "coroutine wants nothing" error: a task cannot
	// be resumed without first registering a want.
	ErrNoWant = errors.New("runtime: strategy has no want registered")
)

// ParseFailure wraps an error raised while parsing a fetcher response.
type ParseFailure struct {
	Fingerprint Fingerprint
	Err         error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("runtime: parse failure for %s: %v", e.Fingerprint, e.Err)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// TransportError is raised by Send when the host reports a failed request.
// Kept as a typed struct rather than a string match.
type TransportError struct {
	URL     string
	Status  uint16
	Content string
	Kind    TransportErrorKind
}

// TransportErrorKind classifies a TransportError instead of requiring
// callers to match on status codes or error strings directly.
type TransportErrorKind int

const (
	TransportErrorOther TransportErrorKind = iota
	TransportErrorTimeout
	TransportErrorHTTPStatus
	TransportErrorNetwork
)

func (e *TransportError) Error() string {
	return fmt.Sprintf("runtime: transport error (status=%d): %s: %s", e.Status, e.URL, e.Content)
}

// UserCallbackError wraps a panic or error raised by user strategy code.
type UserCallbackError struct {
	Strategy string
	Err      error
}

func (e *UserCallbackError) Error() string {
	return fmt.Sprintf("runtime: strategy %s callback error: %v", e.Strategy, e.Err)
}

func (e *UserCallbackError) Unwrap() error { return e.Err }
