package graphhopper

import (
	"context"
	"net/url"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/pkg/telemetry"
)

type geocodeResponse struct {
	Hits []struct {
		Name    string `json:"name"`
		Country string `json:"country"`
		City    string `json:"city"`
		Street  string `json:"street"`
		Point   struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"point"`
	} `json:"hits"`
}

// Geocode implements ports.Geocoder.
func (c *Client) Geocode(ctx context.Context, query string, limit int) ([]domain.Suggestion, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanGeocode)
	defer span.End()

	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp geocodeResponse
	if err := c.do(ctx, fasthttp.MethodGet, "/geocode", q, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Suggestion, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		out = append(out, domain.Suggestion{
			Name:     h.Name,
			Country:  h.Country,
			City:     h.City,
			Street:   h.Street,
			Location: domain.FromLatLon(h.Point.Lat, h.Point.Lng),
		})
	}
	return out, nil
}
