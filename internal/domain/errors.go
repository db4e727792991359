package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// ErrDocNotFound indicates the requested document does not exist.
	ErrDocNotFound = errors.New("document not found")

	// ErrNoIdentity indicates an operation that requires a resolved
	// identity was attempted before one existed.
	ErrNoIdentity = errors.New("no identity resolved")

	// ErrAuthFailed indicates a durable sign-in was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrInvalidReview indicates an unknown review value.
	ErrInvalidReview = errors.New("invalid review value")
)
