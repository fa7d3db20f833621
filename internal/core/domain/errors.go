package domain

import "errors"

var (
	// ErrProviderUnavailable is returned when the routing provider fails on the base route.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrCandidateRejected marks a detour candidate that failed or exceeded the overhead budget.
	ErrCandidateRejected = errors.New("detour candidate rejected")
	// ErrInvalidPolygon marks an unclosed or degenerate ring.
	ErrInvalidPolygon = errors.New("invalid polygon")
	// ErrInvalidMultiplier marks a safety multiplier outside (0, 1].
	ErrInvalidMultiplier = errors.New("invalid safety multiplier")
	// ErrInvalidCoordinate marks a coordinate outside WGS 84 bounds.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound = errors.New("not found")
)
