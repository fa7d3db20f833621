package usecases

import (
	"time"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// Engine defaults.
const (
	DefaultMaxOverheadFraction     = 0.2
	DefaultBufferRadiusMeters      = 500.0
	DefaultExclusionRadiusMeters   = 200.0
	DefaultOutsidePreferredPenalty = 0.5
	DefaultMaxConcurrency          = 4
	DefaultCandidateTimeout        = 8 * time.Second
)

// EngineConfig tunes the cost model and the detour heuristic.
type EngineConfig struct {
	// MaxOverheadFraction caps a detour at (1 + f) times the base distance.
	MaxOverheadFraction float64
	// BufferRadiusMeters is the corridor around the base route in which safe
	// places are considered.
	BufferRadiusMeters float64
	// ExclusionRadiusMeters drops safe places this close to either endpoint.
	ExclusionRadiusMeters float64
	// OutsidePreferredPenalty multiplies priority outside every preferred polygon.
	OutsidePreferredPenalty float64
	Heuristic               domain.HeuristicMode
	MaxConcurrency          int
	// CandidateTimeout bounds the whole candidate phase. Zero disables it.
	CandidateTimeout time.Duration
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxOverheadFraction:     DefaultMaxOverheadFraction,
		BufferRadiusMeters:      DefaultBufferRadiusMeters,
		ExclusionRadiusMeters:   DefaultExclusionRadiusMeters,
		OutsidePreferredPenalty: DefaultOutsidePreferredPenalty,
		Heuristic:               domain.HeuristicDistance,
		MaxConcurrency:          DefaultMaxConcurrency,
		CandidateTimeout:        DefaultCandidateTimeout,
	}
}

// withDefaults fills unset or out-of-range fields.
func (c EngineConfig) withDefaults() EngineConfig {
	if c.MaxOverheadFraction < 0 {
		c.MaxOverheadFraction = DefaultMaxOverheadFraction
	}
	if c.BufferRadiusMeters <= 0 {
		c.BufferRadiusMeters = DefaultBufferRadiusMeters
	}
	if c.ExclusionRadiusMeters < 0 {
		c.ExclusionRadiusMeters = DefaultExclusionRadiusMeters
	}
	if c.OutsidePreferredPenalty <= 0 || c.OutsidePreferredPenalty > 1 {
		c.OutsidePreferredPenalty = DefaultOutsidePreferredPenalty
	}
	if c.Heuristic == "" {
		c.Heuristic = domain.HeuristicDistance
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.CandidateTimeout < 0 {
		c.CandidateTimeout = 0
	}
	return c
}
