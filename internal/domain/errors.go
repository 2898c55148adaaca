package domain

import "errors"

// Error kinds surfaced across the Brain boundary. Front-ends map these to
// their own protocol's error representation; raw driver or HTTP client
// errors never cross the boundary unwrapped.
var (
	// ErrInvalidInput marks malformed requests and out-of-bounds settings.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTranscriptionFailed marks a voice provider STT failure.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrAgentEngineFailed marks a failed agent engine call.
	ErrAgentEngineFailed = errors.New("agent engine failed")

	// ErrStorageUnavailable marks a state store read/write failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRateLimited marks a turn rejected by the rate limiter.
	ErrRateLimited = errors.New("rate limited")
)
