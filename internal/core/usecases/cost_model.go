package usecases

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// DangerAreaID names the cost-model area of a danger polygon.
func DangerAreaID(id int64) string { return fmt.Sprintf("danger_%d", id) }

// PreferredAreaID names the cost-model area of a preferred polygon.
func PreferredAreaID(id int64) string { return fmt.Sprintf("preferred_%d", id) }

// BuildCostModel turns a safety snapshot into a first-match-wins rule list:
// one inside rule per danger polygon in ascending id order, then a single
// outside rule over the union of preferred polygons. Invalid polygons are
// skipped. A nil or empty snapshot yields the unbiased model.
func BuildCostModel(snap *domain.SafetySnapshot, outsidePenalty float64) domain.CostBiasModel {
	var model domain.CostBiasModel
	if snap == nil {
		return model
	}

	danger := make([]domain.DangerPolygon, len(snap.Danger))
	copy(danger, snap.Danger)
	sort.SliceStable(danger, func(i, j int) bool { return danger[i].ID < danger[j].ID })

	for _, p := range danger {
		if err := p.Validate(); err != nil {
			slog.Warn("skipping danger polygon", "id", p.ID, "error", err)
			continue
		}
		model.Rules = append(model.Rules, domain.CostRule{
			Kind:       domain.RuleInside,
			Areas:      []domain.Area{{ID: DangerAreaID(p.ID), Ring: p.Ring}},
			Multiplier: p.SafetyMultiplier,
		})
	}

	preferred := make([]domain.PreferredPolygon, len(snap.Preferred))
	copy(preferred, snap.Preferred)
	sort.SliceStable(preferred, func(i, j int) bool { return preferred[i].ID < preferred[j].ID })

	var areas []domain.Area
	for _, p := range preferred {
		if err := p.Ring.Validate(); err != nil {
			slog.Warn("skipping preferred polygon", "id", p.ID, "error", err)
			continue
		}
		areas = append(areas, domain.Area{ID: PreferredAreaID(p.ID), Ring: p.Ring})
	}
	if len(areas) > 0 {
		model.Rules = append(model.Rules, domain.CostRule{
			Kind:       domain.RuleOutside,
			Areas:      areas,
			Multiplier: outsidePenalty,
		})
	}

	return model
}
