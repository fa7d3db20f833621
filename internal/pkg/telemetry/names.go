package telemetry

const instrumentationName = "github.com/samirrijal/safewalk"

// Span names.
const (
	SpanGetSafeRoute    = "routing.get_safe_route"
	SpanBaseRoute       = "routing.base_route"
	SpanDetourPlan      = "routing.detour_plan"
	SpanDetourCandidate = "routing.detour_candidate"
	SpanProviderCall    = "provider.compute_route"
	SpanGeocode         = "provider.geocode"
	SpanSnapshot        = "safety_map.snapshot"
)

// Span attribute keys.
const (
	AttrProfile       = "route.profile"
	AttrHeuristic     = "route.heuristic"
	AttrBaseDistance  = "route.base_distance_m"
	AttrDistance      = "route.distance_m"
	AttrDetourApplied = "route.detour_applied"
	AttrCandidates    = "detour.candidates"
	AttrSafePlaceID   = "detour.safe_place_id"
	AttrOutcome       = "detour.outcome"
	AttrViaCount      = "provider.via_count"
)
