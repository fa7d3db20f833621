package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// Files of the single-directory layout used before this store existed.
// Polygons are vertex rows ("lon,lat") separated by empty rows; scores sit
// in a parallel file, one per danger polygon.
const (
	legacyHeatmapFile   = "heatmap_coords.csv"
	legacyScoresFile    = "safety_scores.csv"
	legacySafePlaceFile = "safe_place_coords.csv"
	legacyPreferredFile = "preferred_coords.csv"
)

// LoadLegacy reads a legacy data directory into an import batch. Missing
// files count as empty.
func LoadLegacy(dir string) (*domain.MapImport, error) {
	heatmap, err := readLegacyRows(filepath.Join(dir, legacyHeatmapFile))
	if err != nil {
		return nil, err
	}
	scores, err := readLegacyRows(filepath.Join(dir, legacyScoresFile))
	if err != nil {
		return nil, err
	}
	places, err := readLegacyRows(filepath.Join(dir, legacySafePlaceFile))
	if err != nil {
		return nil, err
	}
	preferred, err := readLegacyRows(filepath.Join(dir, legacyPreferredFile))
	if err != nil {
		return nil, err
	}

	dangerRings, err := splitPolygons(heatmap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", legacyHeatmapFile, err)
	}

	var scoreValues []float64
	for i, row := range scores {
		if len(row) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", legacyScoresFile, i+1, err)
		}
		scoreValues = append(scoreValues, v)
	}
	if len(scoreValues) != len(dangerRings) {
		return nil, fmt.Errorf("%d polygons but %d safety scores", len(dangerRings), len(scoreValues))
	}

	batch := &domain.MapImport{}
	for i, ring := range dangerRings {
		batch.Danger = append(batch.Danger, domain.DangerPolygon{Ring: ring, SafetyMultiplier: scoreValues[i]})
	}

	preferredRings, err := splitPolygons(preferred)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", legacyPreferredFile, err)
	}
	for _, ring := range preferredRings {
		batch.Preferred = append(batch.Preferred, domain.PreferredPolygon{Ring: ring})
	}

	for i, row := range places {
		if len(row) == 0 {
			continue
		}
		c, err := parseLegacyVertex(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", legacySafePlaceFile, i+1, err)
		}
		batch.SafePlaces = append(batch.SafePlaces, domain.SafePlace{Location: c})
	}

	return batch, nil
}

// readLegacyRows splits a file into comma-separated rows. encoding/csv drops
// blank lines, which this layout uses as polygon separators, so lines are
// scanned directly; the files only hold plain numbers.
func readLegacyRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var rows [][]string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			rows = append(rows, nil)
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

// splitPolygons groups vertex rows into rings at empty rows.
func splitPolygons(rows [][]string) ([]domain.Ring, error) {
	var (
		rings   []domain.Ring
		current domain.Ring
	)
	flush := func() {
		if len(current) > 0 {
			rings = append(rings, current)
			current = nil
		}
	}
	for i, row := range rows {
		if isEmptyRow(row) {
			flush()
			continue
		}
		c, err := parseLegacyVertex(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		current = append(current, c)
	}
	flush()
	return rings, nil
}

func isEmptyRow(row []string) bool {
	for _, f := range row {
		if f != "" {
			return false
		}
	}
	return true
}

func parseLegacyVertex(row []string) (domain.Coordinate, error) {
	if len(row) < 2 {
		return domain.Coordinate{}, fmt.Errorf("expected lon,lat, got %v", row)
	}
	lon, err := strconv.ParseFloat(row[0], 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("bad longitude %q: %w", row[0], err)
	}
	lat, err := strconv.ParseFloat(row[1], 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("bad latitude %q: %w", row[1], err)
	}
	return domain.Coordinate{Lon: lon, Lat: lat}, nil
}
