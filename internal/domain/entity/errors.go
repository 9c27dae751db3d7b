package entity

import (
	"errors"
	"fmt"
	"time"
)

// Standard domain errors
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNetwork           = errors.New("network failure")
	ErrRemoteAPI         = errors.New("remote api error")
	ErrRunFailed         = errors.New("run failed")
	ErrRunTimeout        = errors.New("run timed out")
	ErrInvalidRequest    = errors.New("invalid request parameters")
	ErrResourceNotFound  = errors.New("the requested resource was not found")
)

// RateLimitError is returned after retry exhaustion on HTTP 429. Wait is the
// last computed backoff, suitable for a user-facing retry suggestion.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in ~%s", e.Wait.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// RemoteAPIError is a non-retryable failure reported by the remote API.
type RemoteAPIError struct {
	Status  int
	Message string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("remote api error (status %d): %s", e.Status, e.Message)
}

func (e *RemoteAPIError) Unwrap() error { return ErrRemoteAPI }

// NetworkError wraps a transport-level failure that survived retries.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network failure: %v", e.Err) }

func (e *NetworkError) Unwrap() error { return ErrNetwork }

// RunFailedError carries the remote-reported failure message for a run.
type RunFailedError struct {
	RunID  string
	Reason string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s failed: %s", e.RunID, e.Reason)
}

func (e *RunFailedError) Unwrap() error { return ErrRunFailed }

// RunTimeoutError is raised when the polling attempt ceiling is reached.
type RunTimeoutError struct {
	RunID    string
	Attempts int
	Elapsed  time.Duration
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("run %s did not finish after %d polls (~%.1f minutes)",
		e.RunID, e.Attempts, e.Elapsed.Minutes())
}

func (e *RunTimeoutError) Unwrap() error { return ErrRunTimeout }
