package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DeprecatedRoute marks a path as deprecated in favour of a successor.
type DeprecatedRoute struct {
	Path       string
	Successor  string
	SunsetDate time.Time
}

// legacySunset is when the unversioned paths stop being served.
var legacySunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// LegacyRoutes lists the unversioned paths still mounted for old clients.
var LegacyRoutes = []DeprecatedRoute{
	{Path: "/route", Successor: "/v1/route", SunsetDate: legacySunset},
	{Path: "/heatmap", Successor: "/v1/safety-map", SunsetDate: legacySunset},
	{Path: "/add_polygon", Successor: "/v1/polygons", SunsetDate: legacySunset},
	{Path: "/add_safe_place", Successor: "/v1/safe-places", SunsetDate: legacySunset},
	{Path: "/suggestions", Successor: "/v1/suggestions", SunsetDate: legacySunset},
}

// DeprecationMiddleware adds Deprecation, Sunset, Link and Warning headers
// to requests for a deprecated path.
func DeprecationMiddleware(deprecated []DeprecatedRoute) fiber.Handler {
	byPath := make(map[string]DeprecatedRoute, len(deprecated))
	for _, d := range deprecated {
		byPath[d.Path] = d
	}

	return func(c *fiber.Ctx) error {
		d, ok := byPath[c.Path()]
		if !ok {
			return c.Next()
		}

		// RFC 8594
		c.Set("Deprecation", "true")
		c.Set("Sunset", d.SunsetDate.UTC().Format(time.RFC1123))
		if d.Successor != "" {
			c.Set(fiber.HeaderLink, fmt.Sprintf(`<%s>; rel="successor-version"`, d.Successor))
		}
		days := time.Until(d.SunsetDate).Hours() / 24
		c.Set("Warning", fmt.Sprintf(`299 - "Deprecated API, will sunset in %.0f days"`, days))

		return c.Next()
	}
}
