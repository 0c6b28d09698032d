package models

import "errors"

// Error taxonomy for the pipeline. Handlers map these onto HTTP status codes;
// components wrap them with fmt.Errorf("...: %w", err).
var (
	// ErrInvalidInput marks missing or malformed request fields. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized marks a missing caller identity or an ownership mismatch.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUpstreamUnavailable marks an unreachable LLM provider or datastore.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrValidationTimeout marks a validator that exceeded its budget. The chat
	// flow proceeds without validation when it sees this.
	ErrValidationTimeout = errors.New("validation timed out")

	// ErrStageUnhealthy marks a coordination run where no usable stage path
	// remained. Converted to a degraded response, never surfaced raw.
	ErrStageUnhealthy = errors.New("stage health critical")

	// ErrSessionTerminal marks a metric update against a completed or
	// interrupted session.
	ErrSessionTerminal = errors.New("session already ended")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")
)
