package services

import "errors"

// Expected control-flow conditions surfaced by the chat session controller.
// These are never thrown mid-exchange; quota and rate limits are checked
// before any call to the completion backend.
var (
	// ErrQuotaExceeded means the identity's daily token limit would be
	// exceeded. Not retryable until period rollover or sign-in.
	ErrQuotaExceeded = errors.New("daily token limit reached")

	// ErrRateLimited means the minimum inter-send interval has not elapsed.
	// Retryable; the typed input is not lost.
	ErrRateLimited = errors.New("please wait a few seconds before sending again")

	// ErrUnauthorized means a conversation store operation was attempted by
	// an anonymous identity.
	ErrUnauthorized = errors.New("sign in to keep conversation history")
)
