package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/safewalk/internal/adapters/filestore"
	handler "github.com/samirrijal/safewalk/internal/adapters/http"
	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/ports"
	"github.com/samirrijal/safewalk/internal/core/usecases"
)

// ---- Mocks ----

type mockProvider struct {
	computeFn func(ctx context.Context, origin, dest domain.Coordinate, via []domain.Coordinate, profile string, model domain.CostBiasModel) (*domain.Route, error)

	mu       sync.Mutex
	profiles []string
}

func (m *mockProvider) ComputeRoute(ctx context.Context, origin, dest domain.Coordinate, via []domain.Coordinate, profile string, model domain.CostBiasModel) (*domain.Route, error) {
	m.mu.Lock()
	m.profiles = append(m.profiles, profile)
	m.mu.Unlock()
	if m.computeFn != nil {
		return m.computeFn(ctx, origin, dest, via, profile, model)
	}
	return straightRoute(origin, dest, via), nil
}

// straightRoute returns a polyline through via with a distance that grows
// with each via point.
func straightRoute(origin, dest domain.Coordinate, via []domain.Coordinate) *domain.Route {
	points := append([]domain.Coordinate{origin}, via...)
	points = append(points, dest)
	return &domain.Route{
		Points:         points,
		Distance:       1500 + 100*float64(len(via)),
		DurationMillis: 1_080_000,
	}
}

type mockGeocoder struct {
	geocodeFn func(ctx context.Context, query string, limit int) ([]domain.Suggestion, error)
	calls     int
}

func (m *mockGeocoder) Geocode(ctx context.Context, query string, limit int) ([]domain.Suggestion, error) {
	m.calls++
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, query, limit)
	}
	return nil, nil
}

// failingRepo is a store whose reads fail.
type failingRepo struct {
	ports.SafetyRepository
}

func (failingRepo) Snapshot(ctx context.Context) (*domain.SafetySnapshot, error) {
	return nil, errors.New("disk on fire")
}

type mockPinger struct {
	err error
}

func (m mockPinger) Ping(ctx context.Context) error { return m.err }

// ---- Test helpers ----

var (
	origin      = domain.Coordinate{Lon: 9.17, Lat: 48.77}
	destination = domain.Coordinate{Lon: 9.19, Lat: 48.77}
	// About 110 m north of the straight line, far from both endpoints.
	nearbyPlace = domain.Coordinate{Lon: 9.18, Lat: 48.771}
)

type testEnv struct {
	store    *filestore.Store
	provider *mockProvider
	geocoder *mockGeocoder
	deps     *handler.Dependencies
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{store: store, provider: &mockProvider{}, geocoder: &mockGeocoder{}}
	env.wire(store)
	return env
}

func (e *testEnv) wire(repo ports.SafetyRepository) {
	safetyMap := usecases.NewSafetyMapService(repo, nil, nil)
	safetyMap.SetMemoTTL(0)
	e.deps = &handler.Dependencies{
		SafeRoutes:  usecases.NewSafeRouteService(safetyMap, e.provider, nil, usecases.DefaultEngineConfig()),
		SafetyMap:   safetyMap,
		Suggestions: usecases.NewSuggestionService(e.geocoder, nil),
		Store:       mockPinger{},
	}
}

func (e *testEnv) app() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, e.deps)
	return app
}

func (e *testEnv) addSafePlace(t *testing.T, c domain.Coordinate, name string) {
	t.Helper()
	if _, err := e.store.AppendSafePlace(context.Background(), domain.SafePlace{Location: c, Name: name}); err != nil {
		t.Fatal(err)
	}
}

func do(t *testing.T, app *fiber.App, method, target string, body string) (int, []byte, map[string][]string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, b, resp.Header
}

func decodeError(t *testing.T, body []byte) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	return apiErr
}

func latLonQuery(c domain.Coordinate) string {
	return fmt.Sprintf("%v,%v", c.Lat, c.Lon)
}

func lonLatQuery(c domain.Coordinate) string {
	return fmt.Sprintf("%v,%v", c.Lon, c.Lat)
}

// ---- Safe route ----

func TestSafeRoute_NoSafePlaces(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	status, body, hdr := do(t, app, "GET",
		"/v1/route?origin="+latLonQuery(origin)+"&destination="+latLonQuery(destination), "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var view handler.RouteView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if view.DetourApplied {
		t.Error("expected no detour without safe places")
	}
	if view.Profile != "foot" {
		t.Errorf("expected default profile foot, got %q", view.Profile)
	}
	if view.Points[0] != [2]float64{48.77, 9.17} {
		t.Errorf("expected first point [lat, lon] = [48.77 9.17], got %v", view.Points[0])
	}
	if got := hdr["Cache-Control"]; len(got) == 0 || got[0] != "private, no-store" {
		t.Errorf("expected private, no-store, got %v", got)
	}
	if _, ok := hdr["Etag"]; ok {
		t.Error("no-store responses must not carry an ETag")
	}
}

func TestSafeRoute_DetourThroughSafePlace(t *testing.T) {
	env := newEnv(t)
	env.addSafePlace(t, nearbyPlace, "Late pharmacy")
	app := env.app()

	status, body, _ := do(t, app, "GET",
		"/v1/route?origin="+latLonQuery(origin)+"&destination="+latLonQuery(destination)+"&profile=bike", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var view handler.RouteView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if !view.DetourApplied {
		t.Fatal("expected detour through the nearby safe place")
	}
	if view.SafePlace == nil || view.SafePlace.Name != "Late pharmacy" {
		t.Fatalf("expected safe place in response, got %+v", view.SafePlace)
	}
	if view.SafePlace.Coordinates != [2]float64{48.771, 9.18} {
		t.Errorf("expected safe place [lat, lon], got %v", view.SafePlace.Coordinates)
	}
	if view.BaseDistance != 1500 || view.Distance != 1600 {
		t.Errorf("expected base 1500 and detour 1600, got %v and %v", view.BaseDistance, view.Distance)
	}
	if view.CandidatesEvaluated != 1 {
		t.Errorf("expected 1 candidate evaluated, got %d", view.CandidatesEvaluated)
	}
	for _, p := range env.provider.profiles {
		if p != "bike" {
			t.Errorf("expected every provider call to use bike, got %q", p)
		}
	}
}

func TestSafeRoute_BadRequests(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	tests := []struct {
		name  string
		query string
	}{
		{"missing destination", "origin=48.77,9.17"},
		{"malformed origin", "origin=48.77&destination=48.77,9.19"},
		{"latitude out of range", "origin=95,9.17&destination=48.77,9.19"},
		{"unknown profile", "origin=48.77,9.17&destination=48.77,9.19&profile=rocket"},
		{"unknown heuristic", "origin=48.77,9.17&destination=48.77,9.19&heuristic=vibes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := do(t, app, "GET", "/v1/route?"+tt.query, "")
			if status != 400 {
				t.Fatalf("expected 400, got %d: %s", status, body)
			}
			if apiErr := decodeError(t, body); apiErr.Code != "bad_request" {
				t.Errorf("expected bad_request, got %s", apiErr.Code)
			}
		})
	}
	if n := len(env.provider.profiles); n != 0 {
		t.Errorf("expected no provider calls, got %d", n)
	}
}

func TestSafeRoute_ProviderDown(t *testing.T) {
	env := newEnv(t)
	env.provider.computeFn = func(ctx context.Context, origin, dest domain.Coordinate, via []domain.Coordinate, profile string, model domain.CostBiasModel) (*domain.Route, error) {
		return nil, errors.New("connection refused")
	}
	app := env.app()

	status, body, _ := do(t, app, "GET",
		"/v1/route?origin="+latLonQuery(origin)+"&destination="+latLonQuery(destination), "")
	if status != 502 {
		t.Fatalf("expected 502, got %d: %s", status, body)
	}
	apiErr := decodeError(t, body)
	if apiErr.Code != "provider_unavailable" {
		t.Errorf("expected provider_unavailable, got %s", apiErr.Code)
	}
	if strings.Contains(apiErr.Message, "connection refused") {
		t.Error("provider error details must not leak to clients")
	}
}

func TestSafeRoute_StoreFailure(t *testing.T) {
	env := newEnv(t)
	env.wire(failingRepo{})
	app := env.app()

	status, body, _ := do(t, app, "GET",
		"/v1/route?origin="+latLonQuery(origin)+"&destination="+latLonQuery(destination), "")
	if status != 500 {
		t.Fatalf("expected 500, got %d: %s", status, body)
	}
	if apiErr := decodeError(t, body); apiErr.Message != "internal error" {
		t.Errorf("expected generic message, got %q", apiErr.Message)
	}
}

func TestLegacyRoute_LonLatGeoJSON(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	status, body, hdr := do(t, app, "GET",
		"/route?origin="+lonLatQuery(origin)+"&destination="+lonLatQuery(destination), "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var resp struct {
		Paths []struct {
			Points struct {
				Type        string       `json:"type"`
				Coordinates [][2]float64 `json:"coordinates"`
			} `json:"points"`
			Distance float64 `json:"distance"`
			Time     int64   `json:"time"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(resp.Paths))
	}
	p := resp.Paths[0]
	if p.Points.Type != "LineString" {
		t.Errorf("expected LineString, got %s", p.Points.Type)
	}
	if p.Points.Coordinates[0] != [2]float64{9.17, 48.77} {
		t.Errorf("expected [lon, lat] first point, got %v", p.Points.Coordinates[0])
	}
	if p.Time != 1_080_000 {
		t.Errorf("expected time in ms, got %d", p.Time)
	}
	if hdr["Deprecation"] == nil || hdr["Deprecation"][0] != "true" {
		t.Error("expected Deprecation header on legacy path")
	}
	if link := hdr["Link"]; len(link) == 0 || !strings.Contains(link[0], "/v1/route") {
		t.Errorf("expected successor link, got %v", link)
	}
}

// ---- Safety map ----

func TestSafetyMap_LatLonOrder(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ring := domain.Ring{{Lon: 9.1, Lat: 48.7}, {Lon: 9.2, Lat: 48.7}, {Lon: 9.2, Lat: 48.8}, {Lon: 9.1, Lat: 48.7}}
	if _, err := env.store.AppendDangerPolygon(ctx, domain.DangerPolygon{Ring: ring, SafetyMultiplier: 0.3}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.store.AppendPreferredPolygon(ctx, domain.PreferredPolygon{Ring: ring}); err != nil {
		t.Fatal(err)
	}
	env.addSafePlace(t, nearbyPlace, "")
	app := env.app()

	for _, path := range []string{"/v1/safety-map", "/heatmap"} {
		status, body, _ := do(t, app, "GET", path, "")
		if status != 200 {
			t.Fatalf("%s: expected 200, got %d", path, status)
		}
		var view handler.SafetyMapView
		if err := json.Unmarshal(body, &view); err != nil {
			t.Fatal(err)
		}
		if len(view.Heatmap.Coordinates) != 1 || view.Heatmap.SafetyScores[0] != 0.3 {
			t.Fatalf("%s: unexpected heatmap %+v", path, view.Heatmap)
		}
		if got := view.Heatmap.Coordinates[0][1]; got != [2]float64{48.7, 9.2} {
			t.Errorf("%s: expected [lat, lon] vertex, got %v", path, got)
		}
		if got := view.SafePlaces.Coordinates; len(got) != 1 || got[0] != [2]float64{48.771, 9.18} {
			t.Errorf("%s: unexpected safe places %v", path, got)
		}
		if len(view.Preferred.Coordinates) != 1 {
			t.Errorf("%s: expected 1 preferred polygon", path)
		}
	}
}

func TestSafetyMap_EmptyCollectionsAreArrays(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	_, body, _ := do(t, app, "GET", "/v1/safety-map", "")
	want := `{"heatmap":{"coordinates":[],"safetyScores":[]},"safePlaces":{"coordinates":[]},"preferred":{"coordinates":[]}}`
	if string(body) != want {
		t.Errorf("expected %s, got %s", want, body)
	}
}

func TestSafetyMap_ETag(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	_, _, hdr := do(t, app, "GET", "/v1/safety-map", "")
	etag := hdr["Etag"]
	if len(etag) == 0 {
		t.Fatal("expected ETag header")
	}

	req := httptest.NewRequest("GET", "/v1/safety-map", nil)
	req.Header.Set("If-None-Match", etag[0])
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

func TestSafetyMapGeoJSON(t *testing.T) {
	env := newEnv(t)
	ring := domain.Ring{{Lon: 9.1, Lat: 48.7}, {Lon: 9.2, Lat: 48.7}, {Lon: 9.2, Lat: 48.8}, {Lon: 9.1, Lat: 48.7}}
	if _, err := env.store.AppendDangerPolygon(context.Background(), domain.DangerPolygon{Ring: ring, SafetyMultiplier: 0.5}); err != nil {
		t.Fatal(err)
	}
	env.addSafePlace(t, nearbyPlace, "Kiosk")
	app := env.app()

	status, body, hdr := do(t, app, "GET", "/v1/safety-map.geojson", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if ct := hdr["Content-Type"]; len(ct) == 0 || ct[0] != "application/geo+json" {
		t.Errorf("expected application/geo+json, got %v", ct)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string          `json:"type"`
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %+v", fc)
	}
	if fc.Features[0].Properties["kind"] != "danger" || fc.Features[0].Properties["safety_multiplier"] != 0.5 {
		t.Errorf("unexpected danger properties %v", fc.Features[0].Properties)
	}
	if got := string(fc.Features[1].Geometry.Coordinates); got != "[9.18,48.771]" {
		t.Errorf("expected GeoJSON [lon, lat] point, got %s", got)
	}
}

// ---- Writes ----

func TestAddPolygon_DangerAndPreferred(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	danger := `{"coordinates":[[48.7,9.1],[48.7,9.2],[48.8,9.2]],"safetyScore":0.4}`
	status, body, _ := do(t, app, "POST", "/v1/polygons", danger)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var view handler.SafetyMapView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Heatmap.Coordinates) != 1 {
		t.Fatalf("expected 1 danger polygon, got %d", len(view.Heatmap.Coordinates))
	}
	ring := view.Heatmap.Coordinates[0]
	if len(ring) != 4 || ring[0] != ring[3] {
		t.Errorf("expected open ring to be closed, got %v", ring)
	}

	preferred := `{"coordinates":[[48.7,9.1],[48.7,9.2],[48.8,9.2],[48.7,9.1]],"safetyScore":2}`
	status, body, _ = do(t, app, "POST", "/v1/polygons", preferred)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	snap, _ := env.store.Snapshot(context.Background())
	if len(snap.Danger) != 1 || len(snap.Preferred) != 1 {
		t.Errorf("expected 1 danger and 1 preferred, got %d and %d", len(snap.Danger), len(snap.Preferred))
	}
	if snap.Danger[0].Ring[1] != (domain.Coordinate{Lon: 9.2, Lat: 48.7}) {
		t.Errorf("expected stored ring in [lon, lat], got %v", snap.Danger[0].Ring[1])
	}
}

func TestAddPolygon_Rejects(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing score", `{"coordinates":[[48.7,9.1],[48.7,9.2],[48.8,9.2]]}`},
		{"zero score", `{"coordinates":[[48.7,9.1],[48.7,9.2],[48.8,9.2]],"safetyScore":0}`},
		{"two vertices", `{"coordinates":[[48.7,9.1],[48.7,9.2]],"safetyScore":0.5}`},
		{"bad latitude", `{"coordinates":[[98.7,9.1],[48.7,9.2],[48.8,9.2]],"safetyScore":0.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := do(t, app, "POST", "/v1/polygons", tt.body)
			if status != 400 {
				t.Fatalf("expected 400, got %d: %s", status, body)
			}
		})
	}

	snap, _ := env.store.Snapshot(context.Background())
	if !snap.Empty() {
		t.Error("rejected polygons must not be stored")
	}
}

func TestLegacyAddPolygon_QueryParams(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	q := url.Values{}
	q.Set("polygon", `{"coordinates":[[9.1,48.7],[9.2,48.7],[9.2,48.8]]}`)
	q.Set("safetyScore", "0.25")
	status, body, hdr := do(t, app, "POST", "/add_polygon?"+q.Encode(), "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if hdr["Deprecation"] == nil {
		t.Error("expected Deprecation header")
	}

	snap, _ := env.store.Snapshot(context.Background())
	if len(snap.Danger) != 1 || snap.Danger[0].SafetyMultiplier != 0.25 {
		t.Fatalf("expected one danger polygon with 0.25, got %+v", snap.Danger)
	}
	if snap.Danger[0].Ring[0] != (domain.Coordinate{Lon: 9.1, Lat: 48.7}) {
		t.Errorf("legacy polygon is [lon, lat], got %v", snap.Danger[0].Ring[0])
	}
}

func TestAddSafePlace(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	status, body, _ := do(t, app, "POST", "/v1/safe-places", `{"coordinates":[48.771,9.18],"name":"  Night pharmacy "}`)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	places, _ := env.store.ListSafePlaces(context.Background())
	if len(places) != 1 || places[0].Location != nearbyPlace || places[0].Name != "Night pharmacy" {
		t.Fatalf("unexpected stored places %+v", places)
	}

	status, _, _ = do(t, app, "POST", "/v1/safe-places", `{"name":"nowhere"}`)
	if status != 400 {
		t.Errorf("expected 400 without coordinates, got %d", status)
	}
	status, _, _ = do(t, app, "POST", "/v1/safe-places", `{"coordinates":[48.7,200]}`)
	if status != 400 {
		t.Errorf("expected 400 for out-of-range longitude, got %d", status)
	}
}

func TestLegacyAddSafePlace(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	status, body, _ := do(t, app, "POST", "/add_safe_place?coordinates="+lonLatQuery(nearbyPlace), "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	places, _ := env.store.ListSafePlaces(context.Background())
	if len(places) != 1 || places[0].Location != nearbyPlace {
		t.Fatalf("unexpected stored places %+v", places)
	}
}

func TestListSafePlaces_Pagination(t *testing.T) {
	env := newEnv(t)
	for i := 0; i < 3; i++ {
		env.addSafePlace(t, domain.Coordinate{Lon: 9.18, Lat: 48.77 + float64(i)/1000}, fmt.Sprintf("place %d", i))
	}
	app := env.app()

	status, body, hdr := do(t, app, "GET", "/v1/safe-places?offset=1&limit=1", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var result struct {
		Data       []handler.SafePlaceView `json:"data"`
		Pagination handler.Pagination      `json:"pagination"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 3 || len(result.Data) != 1 {
		t.Fatalf("expected 1 of 3, got %+v", result)
	}
	if result.Data[0].Name != "place 1" || result.Data[0].ID != 2 {
		t.Errorf("expected place 1 with id 2, got %+v", result.Data[0])
	}
	link := strings.Join(hdr["Link"], ",")
	if !strings.Contains(link, `rel="next"`) || !strings.Contains(link, `rel="prev"`) {
		t.Errorf("expected prev and next links, got %s", link)
	}
}

// ---- Suggestions ----

func TestSuggestions(t *testing.T) {
	env := newEnv(t)
	env.geocoder.geocodeFn = func(ctx context.Context, query string, limit int) ([]domain.Suggestion, error) {
		if query != "Schlossplatz" || limit != 3 {
			t.Errorf("unexpected geocode args %q %d", query, limit)
		}
		return []domain.Suggestion{{Name: "Schlossplatz", City: "Stuttgart", Location: domain.Coordinate{Lon: 9.179, Lat: 48.778}}}, nil
	}
	app := env.app()

	status, body, hdr := do(t, app, "GET", "/v1/suggestions?query=Schlossplatz&limit=3", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var hits []handler.SuggestionView
	if err := json.Unmarshal(body, &hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Coordinates != [2]float64{48.778, 9.179} {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if cc := hdr["Cache-Control"]; len(cc) == 0 || cc[0] != "public, max-age=300" {
		t.Errorf("unexpected Cache-Control %v", cc)
	}
}

func TestSuggestions_ShortAndMissingQuery(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	status, body, _ := do(t, app, "GET", "/suggestions?q=ab", "")
	if status != 200 || string(body) != "[]" {
		t.Errorf("expected empty list, got %d %s", status, body)
	}
	if env.geocoder.calls != 0 {
		t.Errorf("short queries must not reach the geocoder")
	}

	status, _, _ = do(t, app, "GET", "/v1/suggestions", "")
	if status != 400 {
		t.Errorf("expected 400, got %d", status)
	}
}

func TestSuggestions_GeocoderDown(t *testing.T) {
	env := newEnv(t)
	env.geocoder.geocodeFn = func(ctx context.Context, query string, limit int) ([]domain.Suggestion, error) {
		return nil, errors.New("timeout")
	}
	app := env.app()

	status, _, _ := do(t, app, "GET", "/v1/suggestions?query=Stuttgart", "")
	if status != 502 {
		t.Errorf("expected 502, got %d", status)
	}
}

// ---- GraphQL ----

func TestGraphQL_SafeRouteAndMap(t *testing.T) {
	env := newEnv(t)
	env.addSafePlace(t, nearbyPlace, "Late pharmacy")
	app := env.app()

	query := `{"query":"{ safeRoute(origin:{lat:48.77,lon:9.17}, destination:{lat:48.77,lon:9.19}) { detour_applied distance safe_place { name location { lat lon } } } safetyMap { safe_places { id name } } }"}`
	status, body, _ := do(t, app, "POST", "/graphql", query)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	var result struct {
		Data struct {
			SafeRoute struct {
				DetourApplied bool    `json:"detour_applied"`
				Distance      float64 `json:"distance"`
				SafePlace     struct {
					Name     string `json:"name"`
					Location struct {
						Lat float64 `json:"lat"`
						Lon float64 `json:"lon"`
					} `json:"location"`
				} `json:"safe_place"`
			} `json:"safeRoute"`
			SafetyMap struct {
				SafePlaces []struct {
					ID   int    `json:"id"`
					Name string `json:"name"`
				} `json:"safe_places"`
			} `json:"safetyMap"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
	r := result.Data.SafeRoute
	if !r.DetourApplied || r.SafePlace.Name != "Late pharmacy" || r.SafePlace.Location.Lat != 48.771 {
		t.Errorf("unexpected safeRoute %+v", r)
	}
	if len(result.Data.SafetyMap.SafePlaces) != 1 || result.Data.SafetyMap.SafePlaces[0].ID != 1 {
		t.Errorf("unexpected safetyMap %+v", result.Data.SafetyMap)
	}
}

func TestGraphQL_AddPolygon(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	query := `{"query":"mutation { addPolygon(ring:[{lat:48.7,lon:9.1},{lat:48.7,lon:9.2},{lat:48.8,lon:9.2}], safetyScore:3) { kind id } }"}`
	status, body, _ := do(t, app, "POST", "/graphql", query)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(body), `"kind":"preferred_polygon"`) {
		t.Errorf("expected preferred polygon update, got %s", body)
	}
	snap, _ := env.store.Snapshot(context.Background())
	if len(snap.Preferred) != 1 {
		t.Errorf("expected 1 preferred polygon, got %d", len(snap.Preferred))
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	status, body, _ := do(t, app, "GET", "/v1/health", "")
	if status != 200 || !strings.Contains(string(body), `"status":"healthy"`) {
		t.Errorf("unexpected health response %d %s", status, body)
	}
}

func TestReady(t *testing.T) {
	env := newEnv(t)
	app := env.app()

	status, body, _ := do(t, app, "GET", "/v1/ready", "")
	if status != 200 {
		t.Fatalf("expected 200 without NATS or cache, got %d: %s", status, body)
	}

	env.deps.Store = mockPinger{err: errors.New("gone")}
	app = env.app()
	status, _, _ = do(t, app, "GET", "/v1/ready", "")
	if status != 503 {
		t.Errorf("expected 503 when the store is down, got %d", status)
	}
}
