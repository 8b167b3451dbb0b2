package domain

import "errors"

var (
	// ErrAllocationExhausted is returned when no free slug was found within the attempt bound.
	ErrAllocationExhausted = errors.New("slug allocation exhausted")
	// ErrAllocationRace is returned when a claim is rejected after a successful probe.
	// Callers should retry allocation from scratch.
	ErrAllocationRace = errors.New("slug claimed concurrently")
	// ErrSnapshotUnavailable is returned when the initial snapshot of a collection failed.
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
	// ErrFeedDisconnected marks a view whose change feed dropped.
	ErrFeedDisconnected = errors.New("change feed disconnected")

	ErrInvalidName    = errors.New("name does not produce a valid slug")
	ErrInvalidConfig  = errors.New("invalid collection config")
	ErrInvalidPhoto   = errors.New("invalid photo")
	ErrSlugTaken      = errors.New("slug already exists")
	ErrMalformedEvent = errors.New("malformed change event")
	ErrNotFound       = errors.New("not found")
	ErrViewClosed     = errors.New("view closed")
)
