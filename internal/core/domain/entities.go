package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DangerPolygon is an area the cost model penalizes. SafetyMultiplier is in
// (0, 1]: 1 means safe, values near 0 are heavily avoided.
type DangerPolygon struct {
	ID               int64     `json:"id"`
	Ring             Ring      `json:"ring"`
	SafetyMultiplier float64   `json:"safety_multiplier"`
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks the ring and the multiplier range.
func (p DangerPolygon) Validate() error {
	if err := p.Ring.Validate(); err != nil {
		return fmt.Errorf("danger polygon %d: %w", p.ID, err)
	}
	if err := ValidateMultiplier(p.SafetyMultiplier); err != nil {
		return fmt.Errorf("danger polygon %d: %w", p.ID, err)
	}
	return nil
}

// PreferredPolygon is an area the cost model favors. Being outside every
// preferred polygon is what gets penalized.
type PreferredPolygon struct {
	ID        int64     `json:"id"`
	Ring      Ring      `json:"ring"`
	CreatedAt time.Time `json:"created_at"`
}

// SafePlace is a point the detour heuristic may route through
// (a staffed or well-lit location).
type SafePlace struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name,omitempty"`
	Location  Coordinate `json:"location"`
	CreatedAt time.Time  `json:"created_at"`
}

// SafetySnapshot is a mutually consistent read of the three safety collections.
type SafetySnapshot struct {
	Danger     []DangerPolygon    `json:"danger"`
	Preferred  []PreferredPolygon `json:"preferred"`
	SafePlaces []SafePlace        `json:"safe_places"`
	TakenAt    time.Time          `json:"taken_at"`
}

// Empty reports whether the snapshot holds no data at all.
func (s *SafetySnapshot) Empty() bool {
	return s == nil || (len(s.Danger) == 0 && len(s.Preferred) == 0 && len(s.SafePlaces) == 0)
}

// ValidateMultiplier enforces the (0, 1] range of a safety multiplier.
func ValidateMultiplier(m float64) error {
	if math.IsNaN(m) || m <= 0 || m > 1 {
		return fmt.Errorf("%w: %v not in (0, 1]", ErrInvalidMultiplier, m)
	}
	return nil
}

// Route is a path returned by the routing provider.
type Route struct {
	Points         []Coordinate `json:"points"`
	Distance       float64      `json:"distance"` // meters
	DurationMillis int64        `json:"duration_ms"`
	Profile        string       `json:"profile"`
	Via            []Coordinate `json:"via,omitempty"`
}

// Validate checks the minimal shape every provider route must have.
func (r *Route) Validate() error {
	if r == nil {
		return fmt.Errorf("route is nil")
	}
	if len(r.Points) < 2 {
		return fmt.Errorf("route has %d points, need at least 2", len(r.Points))
	}
	if r.Distance < 0 || math.IsNaN(r.Distance) {
		return fmt.Errorf("route distance %v is negative", r.Distance)
	}
	return nil
}

// RuleKind selects how a cost rule tests its areas.
type RuleKind int

const (
	// RuleInside matches points inside any of the rule's areas.
	RuleInside RuleKind = iota
	// RuleOutside matches points outside the union of the rule's areas.
	RuleOutside
)

func (k RuleKind) String() string {
	if k == RuleOutside {
		return "outside"
	}
	return "inside"
}

// Area is a named ring referenced by a cost rule.
type Area struct {
	ID   string `json:"id"`
	Ring Ring   `json:"ring"`
}

// CostRule multiplies routing priority by Multiplier when it matches.
type CostRule struct {
	Kind       RuleKind `json:"kind"`
	Areas      []Area   `json:"areas"`
	Multiplier float64  `json:"multiplier"`
}

// CostBiasModel is an ordered, first-match-wins rule list handed to the
// routing provider. An empty model means unbiased routing.
type CostBiasModel struct {
	Rules []CostRule `json:"rules"`
}

// Unbiased reports whether the model carries no rules.
func (m CostBiasModel) Unbiased() bool {
	return len(m.Rules) == 0
}

// HeuristicMode selects how detour candidates are ranked.
type HeuristicMode string

const (
	// HeuristicDistance ranks candidates by raw route distance.
	HeuristicDistance HeuristicMode = "distance"
	// HeuristicBadness ranks candidates by the badness-weighted cost.
	HeuristicBadness HeuristicMode = "badness"
)

// ParseHeuristicMode parses a mode name; the empty string yields HeuristicDistance.
func ParseHeuristicMode(s string) (HeuristicMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(HeuristicDistance):
		return HeuristicDistance, nil
	case string(HeuristicBadness):
		return HeuristicBadness, nil
	default:
		return "", fmt.Errorf("unknown heuristic %q (want distance or badness)", s)
	}
}

// RouteResult is what the engine hands to the serving layer.
type RouteResult struct {
	ID                  string        `json:"id"`
	Route               Route         `json:"route"`
	DetourApplied       bool          `json:"detour_applied"`
	SafePlace           *SafePlace    `json:"safe_place,omitempty"`
	BaseDistance        float64       `json:"base_distance"`
	Heuristic           HeuristicMode `json:"heuristic"`
	CandidatesEvaluated int           `json:"candidates_evaluated"`
	ComputedAt          time.Time     `json:"computed_at"`
}

// RouteComputedEvent is published after a successful safe-route computation.
type RouteComputedEvent struct {
	RouteID       string    `json:"route_id"`
	Profile       string    `json:"profile"`
	Distance      float64   `json:"distance"`
	BaseDistance  float64   `json:"base_distance"`
	DetourApplied bool      `json:"detour_applied"`
	SafePlaceID   int64     `json:"safe_place_id,omitempty"`
	Time          time.Time `json:"time"`
}

// MapUpdateKind names the collection a map update touched.
type MapUpdateKind string

const (
	MapUpdateDanger    MapUpdateKind = "danger_polygon"
	MapUpdatePreferred MapUpdateKind = "preferred_polygon"
	MapUpdateSafePlace MapUpdateKind = "safe_place"
	MapUpdateImport    MapUpdateKind = "import"
)

// MapUpdateEvent announces a change to the safety map.
type MapUpdateEvent struct {
	Kind MapUpdateKind `json:"kind"`
	ID   int64         `json:"id,omitempty"`
	Time time.Time     `json:"time"`
}

// Suggestion is a geocoding hit.
type Suggestion struct {
	Name     string     `json:"name"`
	Country  string     `json:"country,omitempty"`
	City     string     `json:"city,omitempty"`
	Street   string     `json:"street,omitempty"`
	Location Coordinate `json:"location"`
}

// MapImport is a batch of safety-map records loaded together.
type MapImport struct {
	Danger     []DangerPolygon    `json:"danger" yaml:"danger"`
	Preferred  []PreferredPolygon `json:"preferred" yaml:"preferred"`
	SafePlaces []SafePlace        `json:"safe_places" yaml:"safe_places"`
}

// ImportResult lists the ids assigned to imported records.
type ImportResult struct {
	DangerIDs    []int64 `json:"danger_ids"`
	PreferredIDs []int64 `json:"preferred_ids"`
	SafePlaceIDs []int64 `json:"safe_place_ids"`
}
