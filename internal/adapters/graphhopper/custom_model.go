package graphhopper

import (
	"fmt"
	"strconv"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

type priorityStatement struct {
	If         string `json:"if,omitempty"`
	ElseIf     string `json:"else_if,omitempty"`
	MultiplyBy string `json:"multiply_by"`
}

type customModel struct {
	Priority []priorityStatement       `json:"priority"`
	Areas    *geojson.FeatureCollection `json:"areas"`
}

// toCustomModel serializes a cost model as a GraphHopper custom model. Rules
// become one if/else_if chain so the first matching rule wins. An unbiased
// model yields nil.
func toCustomModel(m domain.CostBiasModel) (*customModel, error) {
	if m.Unbiased() {
		return nil, nil
	}

	cm := &customModel{Areas: geojson.NewFeatureCollection()}
	seen := make(map[string]bool)

	for i, rule := range m.Rules {
		if len(rule.Areas) == 0 {
			return nil, fmt.Errorf("rule %d has no areas", i)
		}

		refs := make([]string, 0, len(rule.Areas))
		for _, a := range rule.Areas {
			if !seen[a.ID] {
				cm.Areas.AddFeature(areaFeature(a))
				seen[a.ID] = true
			}
			refs = append(refs, "in_"+a.ID)
		}

		cond := strings.Join(refs, " || ")
		if rule.Kind == domain.RuleOutside {
			cond = "!(" + cond + ")"
		}

		stmt := priorityStatement{MultiplyBy: strconv.FormatFloat(rule.Multiplier, 'f', -1, 64)}
		if i == 0 {
			stmt.If = cond
		} else {
			stmt.ElseIf = cond
		}
		cm.Priority = append(cm.Priority, stmt)
	}
	return cm, nil
}

func areaFeature(a domain.Area) *geojson.Feature {
	ring := make([][]float64, len(a.Ring))
	for i, c := range a.Ring {
		ring[i] = []float64{c.Lon, c.Lat}
	}
	f := geojson.NewPolygonFeature([][][]float64{ring})
	f.ID = a.ID
	return f
}
