package client

import (
	"context"
	"time"
)

// SwapOutcome classifies the result of one provider call. The executor makes
// retry decisions from this value, never from error-type inspection.
type SwapOutcome string

const (
	// SwapSuccess carries the edited image.
	SwapSuccess SwapOutcome = "success"
	// SwapNoFace means no clear face was found in either input. Not retryable.
	SwapNoFace SwapOutcome = "no_face"
	// SwapTransient means the backend signalled a condition likely to clear on
	// retry (rate limit, quota, timeout, 5xx).
	SwapTransient SwapOutcome = "transient"
	// SwapFatal means the call can never succeed as submitted.
	SwapFatal SwapOutcome = "fatal"
)

// SwapResult is the four-way result of a face-swap attempt.
type SwapResult struct {
	Outcome  SwapOutcome
	Image    []byte
	MimeType string
	Message  string
	// RetryAfter, when set on a transient result, overrides the executor's
	// computed backoff delay for the next attempt.
	RetryAfter time.Duration
}

// SwapProvider performs the actual identity-swap edit. Implementations may be
// a remote image-edit API or a local inference pipeline; the orchestration
// core only consumes the SwapResult contract.
type SwapProvider interface {
	Swap(ctx context.Context, baseImage, selfieImage []byte) (*SwapResult, error)
	IsConfigured() bool
}
