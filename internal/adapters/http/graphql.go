package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/safewalk/internal/core/domain"
	"github.com/samirrijal/safewalk/internal/core/usecases"
)

// GraphQL values are built as maps; coordinates are {lat, lon} objects.

func gqlPoint(c domain.Coordinate) map[string]interface{} {
	return map[string]interface{}{"lat": c.Lat, "lon": c.Lon}
}

func gqlPoints(cs []domain.Coordinate) []map[string]interface{} {
	out := make([]map[string]interface{}, len(cs))
	for i, c := range cs {
		out[i] = gqlPoint(c)
	}
	return out
}

func gqlSafePlace(sp domain.SafePlace) map[string]interface{} {
	return map[string]interface{}{
		"id":       sp.ID,
		"name":     sp.Name,
		"location": gqlPoint(sp.Location),
	}
}

// pointArg reads a GeoPointInput argument.
func pointArg(v interface{}) domain.Coordinate {
	m, _ := v.(map[string]interface{})
	lat, _ := m["lat"].(float64)
	lon, _ := m["lon"].(float64)
	return domain.FromLatLon(lat, lon)
}

func withRouteTimeout(p graphql.ResolveParams, deps *Dependencies) (context.Context, context.CancelFunc) {
	return context.WithTimeout(p.Context, deps.routeTimeout())
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	geoPointInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "GeoPointInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"lat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"lon": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	safePlaceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SafePlace",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.Int},
			"name":     &graphql.Field{Type: graphql.String},
			"location": &graphql.Field{Type: geoPointType},
		},
	})

	safeRouteType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SafeRoute",
		Fields: graphql.Fields{
			"id":                   &graphql.Field{Type: graphql.String},
			"points":               &graphql.Field{Type: graphql.NewList(geoPointType)},
			"distance":             &graphql.Field{Type: graphql.Float},
			"duration_ms":          &graphql.Field{Type: graphql.Float},
			"profile":              &graphql.Field{Type: graphql.String},
			"detour_applied":       &graphql.Field{Type: graphql.Boolean},
			"safe_place":           &graphql.Field{Type: safePlaceType},
			"base_distance":        &graphql.Field{Type: graphql.Float},
			"heuristic":            &graphql.Field{Type: graphql.String},
			"candidates_evaluated": &graphql.Field{Type: graphql.Int},
		},
	})

	dangerAreaType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DangerArea",
		Fields: graphql.Fields{
			"id":                &graphql.Field{Type: graphql.Int},
			"safety_multiplier": &graphql.Field{Type: graphql.Float},
			"ring":              &graphql.Field{Type: graphql.NewList(geoPointType)},
		},
	})

	preferredAreaType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PreferredArea",
		Fields: graphql.Fields{
			"id":   &graphql.Field{Type: graphql.Int},
			"ring": &graphql.Field{Type: graphql.NewList(geoPointType)},
		},
	})

	safetyMapType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SafetyMap",
		Fields: graphql.Fields{
			"danger":      &graphql.Field{Type: graphql.NewList(dangerAreaType)},
			"preferred":   &graphql.Field{Type: graphql.NewList(preferredAreaType)},
			"safe_places": &graphql.Field{Type: graphql.NewList(safePlaceType)},
		},
	})

	suggestionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Suggestion",
		Fields: graphql.Fields{
			"name":     &graphql.Field{Type: graphql.String},
			"country":  &graphql.Field{Type: graphql.String},
			"city":     &graphql.Field{Type: graphql.String},
			"street":   &graphql.Field{Type: graphql.String},
			"location": &graphql.Field{Type: geoPointType},
		},
	})

	mapUpdateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MapUpdate",
		Fields: graphql.Fields{
			"kind": &graphql.Field{Type: graphql.String},
			"id":   &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"safeRoute": &graphql.Field{
				Type:        safeRouteType,
				Description: "Compute a route that prefers passing a nearby safe place",
				Args: graphql.FieldConfigArgument{
					"origin":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(geoPointInput)},
					"destination": &graphql.ArgumentConfig{Type: graphql.NewNonNull(geoPointInput)},
					"profile":     &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: usecases.DefaultProfile},
					"heuristic":   &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var opts []usecases.RouteOption
					if h, ok := p.Args["heuristic"].(string); ok && h != "" {
						mode, err := domain.ParseHeuristicMode(h)
						if err != nil {
							return nil, err
						}
						opts = append(opts, usecases.WithHeuristic(mode))
					}
					profile, _ := p.Args["profile"].(string)

					ctx, cancel := withRouteTimeout(p, deps)
					defer cancel()

					res, err := deps.SafeRoutes.GetSafeRoute(ctx,
						pointArg(p.Args["origin"]), pointArg(p.Args["destination"]), profile, opts...)
					if err != nil {
						return nil, err
					}

					out := map[string]interface{}{
						"id":                   res.ID,
						"points":               gqlPoints(res.Route.Points),
						"distance":             res.Route.Distance,
						"duration_ms":          float64(res.Route.DurationMillis),
						"profile":              res.Route.Profile,
						"detour_applied":       res.DetourApplied,
						"base_distance":        res.BaseDistance,
						"heuristic":            string(res.Heuristic),
						"candidates_evaluated": res.CandidatesEvaluated,
					}
					if res.SafePlace != nil {
						out["safe_place"] = gqlSafePlace(*res.SafePlace)
					}
					return out, nil
				},
			},
			"safetyMap": &graphql.Field{
				Type:        safetyMapType,
				Description: "Danger areas, preferred areas and safe places",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					snap, err := deps.SafetyMap.Snapshot(p.Context)
					if err != nil {
						return nil, err
					}
					danger := make([]map[string]interface{}, len(snap.Danger))
					for i, d := range snap.Danger {
						danger[i] = map[string]interface{}{
							"id":                d.ID,
							"safety_multiplier": d.SafetyMultiplier,
							"ring":              gqlPoints(d.Ring),
						}
					}
					preferred := make([]map[string]interface{}, len(snap.Preferred))
					for i, pp := range snap.Preferred {
						preferred[i] = map[string]interface{}{"id": pp.ID, "ring": gqlPoints(pp.Ring)}
					}
					places := make([]map[string]interface{}, len(snap.SafePlaces))
					for i, sp := range snap.SafePlaces {
						places[i] = gqlSafePlace(sp)
					}
					return map[string]interface{}{
						"danger":      danger,
						"preferred":   preferred,
						"safe_places": places,
					}, nil
				},
			},
			"suggestions": &graphql.Field{
				Type:        graphql.NewList(suggestionType),
				Description: "Autocomplete place names",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 5},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := p.Args["query"].(string)
					limit := p.Args["limit"].(int)
					hits, err := deps.Suggestions.Search(p.Context, q, limit)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, len(hits))
					for i, h := range hits {
						out[i] = map[string]interface{}{
							"name":     h.Name,
							"country":  h.Country,
							"city":     h.City,
							"street":   h.Street,
							"location": gqlPoint(h.Location),
						}
					}
					return out, nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"addPolygon": &graphql.Field{
				Type:        mapUpdateType,
				Description: "Add a polygon; scores in (0, 1] mark danger, above 1 preference",
				Args: graphql.FieldConfigArgument{
					"ring":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(geoPointInput)))},
					"safetyScore": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					raw, _ := p.Args["ring"].([]interface{})
					ring := make([]domain.Coordinate, len(raw))
					for i, v := range raw {
						ring[i] = pointArg(v)
					}
					ev, err := deps.SafetyMap.AddPolygon(p.Context, ring, p.Args["safetyScore"].(float64))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"kind": string(ev.Kind), "id": ev.ID}, nil
				},
			},
			"addSafePlace": &graphql.Field{
				Type:        safePlaceType,
				Description: "Add a safe place",
				Args: graphql.FieldConfigArgument{
					"location": &graphql.ArgumentConfig{Type: graphql.NewNonNull(geoPointInput)},
					"name":     &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					name, _ := p.Args["name"].(string)
					sp, err := deps.SafetyMap.AddSafePlace(p.Context, pointArg(p.Args["location"]), name)
					if err != nil {
						return nil, err
					}
					return gqlSafePlace(*sp), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})
		if result.HasErrors() {
			LoggerFromCtx(c.UserContext()).Warn("graphql errors", "errors", result.Errors)
		}

		return c.JSON(result)
	}
}
