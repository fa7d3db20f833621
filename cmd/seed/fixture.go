package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// fixture is the YAML seed format. Coordinates are [lon, lat].
type fixture struct {
	Danger []struct {
		Name             string       `yaml:"name"`
		SafetyMultiplier float64      `yaml:"safety_multiplier"`
		Ring             [][2]float64 `yaml:"ring"`
	} `yaml:"danger"`
	Preferred []struct {
		Name string       `yaml:"name"`
		Ring [][2]float64 `yaml:"ring"`
	} `yaml:"preferred"`
	SafePlaces []struct {
		Name     string     `yaml:"name"`
		Location [2]float64 `yaml:"location"`
	} `yaml:"safe_places"`
}

func loadFixture(path string) (*domain.MapImport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return parseFixture(data)
}

func parseFixture(data []byte) (*domain.MapImport, error) {
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	batch := &domain.MapImport{}
	for _, d := range f.Danger {
		batch.Danger = append(batch.Danger, domain.DangerPolygon{
			Ring:             toRing(d.Ring),
			SafetyMultiplier: d.SafetyMultiplier,
		})
	}
	for _, p := range f.Preferred {
		batch.Preferred = append(batch.Preferred, domain.PreferredPolygon{Ring: toRing(p.Ring)})
	}
	for _, sp := range f.SafePlaces {
		batch.SafePlaces = append(batch.SafePlaces, domain.SafePlace{
			Name:     sp.Name,
			Location: domain.Coordinate{Lon: sp.Location[0], Lat: sp.Location[1]},
		})
	}
	return batch, nil
}

func toRing(points [][2]float64) domain.Ring {
	ring := make(domain.Ring, len(points))
	for i, p := range points {
		ring[i] = domain.Coordinate{Lon: p[0], Lat: p[1]}
	}
	return ring
}
