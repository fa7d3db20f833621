// Package filestore is a Safety Store kept in CSV files under one directory.
// The whole map lives in memory; every write rewrites the affected file
// through a temp file and rename. ids.csv holds the next id of each
// collection so that ids stay unique across removals and restarts.
package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

const (
	dangerFile    = "danger_polygons.csv"
	preferredFile = "preferred_polygons.csv"
	safePlaceFile = "safe_places.csv"
	idsFile       = "ids.csv"
)

var (
	dangerHeader    = []string{"id", "safety_multiplier", "created_at", "ring"}
	preferredHeader = []string{"id", "created_at", "ring"}
	safePlaceHeader = []string{"id", "lon", "lat", "name", "created_at"}
	idsHeader       = []string{"collection", "next"}
)

// Store implements ports.SafetyRepository on CSV files.
type Store struct {
	dir string

	mu         sync.RWMutex
	danger     []domain.DangerPolygon
	preferred  []domain.PreferredPolygon
	safePlaces []domain.SafePlace

	// Rows that could not be decoded. They are skipped on read and written
	// back unchanged so a rewrite never drops them.
	rejDanger, rejPreferred, rejSafePlaces [][]string

	// Next ids, persisted in ids.csv before they are handed out.
	nextDanger, nextPreferred, nextSafePlace int64
}

// Open loads the store from dir, creating the directory when missing.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{dir: dir}

	var (
		maxDanger, maxPreferred, maxSafePlace int64
		err                                   error
	)
	if s.danger, s.rejDanger, maxDanger, err = readFile(filepath.Join(dir, dangerFile), parseDanger,
		func(p domain.DangerPolygon) int64 { return p.ID }); err != nil {
		return nil, err
	}
	if s.preferred, s.rejPreferred, maxPreferred, err = readFile(filepath.Join(dir, preferredFile), parsePreferred,
		func(p domain.PreferredPolygon) int64 { return p.ID }); err != nil {
		return nil, err
	}
	if s.safePlaces, s.rejSafePlaces, maxSafePlace, err = readFile(filepath.Join(dir, safePlaceFile), parseSafePlace,
		func(sp domain.SafePlace) int64 { return sp.ID }); err != nil {
		return nil, err
	}

	marks, err := readIDs(filepath.Join(dir, idsFile))
	if err != nil {
		return nil, err
	}
	s.nextDanger = max(marks[dangerFile], maxDanger+1)
	s.nextPreferred = max(marks[preferredFile], maxPreferred+1)
	s.nextSafePlace = max(marks[safePlaceFile], maxSafePlace+1)
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Snapshot returns copies of all three collections taken under one lock.
func (s *Store) Snapshot(ctx context.Context) (*domain.SafetySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &domain.SafetySnapshot{
		Danger:     append([]domain.DangerPolygon{}, s.danger...),
		Preferred:  append([]domain.PreferredPolygon{}, s.preferred...),
		SafePlaces: append([]domain.SafePlace{}, s.safePlaces...),
		TakenAt:    time.Now().UTC(),
	}, nil
}

func (s *Store) ListDangerPolygons(ctx context.Context) ([]domain.DangerPolygon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DangerPolygon{}, s.danger...), nil
}

func (s *Store) ListPreferredPolygons(ctx context.Context) ([]domain.PreferredPolygon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.PreferredPolygon{}, s.preferred...), nil
}

func (s *Store) ListSafePlaces(ctx context.Context) ([]domain.SafePlace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SafePlace{}, s.safePlaces...), nil
}

// AppendDangerPolygon validates p, assigns the next id and persists it.
func (s *Store) AppendDangerPolygon(ctx context.Context, p domain.DangerPolygon) (*domain.DangerPolygon, error) {
	if err := p.Ring.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateMultiplier(p.SafetyMultiplier); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeIDs(s.nextDanger+1, s.nextPreferred, s.nextSafePlace); err != nil {
		return nil, err
	}
	p.ID = s.nextDanger
	s.nextDanger++

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	next := append(append([]domain.DangerPolygon{}, s.danger...), p)
	if err := s.writeDanger(next); err != nil {
		return nil, err
	}
	s.danger = next
	return &p, nil
}

// AppendPreferredPolygon validates p, assigns the next id and persists it.
func (s *Store) AppendPreferredPolygon(ctx context.Context, p domain.PreferredPolygon) (*domain.PreferredPolygon, error) {
	if err := p.Ring.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeIDs(s.nextDanger, s.nextPreferred+1, s.nextSafePlace); err != nil {
		return nil, err
	}
	p.ID = s.nextPreferred
	s.nextPreferred++

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	next := append(append([]domain.PreferredPolygon{}, s.preferred...), p)
	if err := s.writePreferred(next); err != nil {
		return nil, err
	}
	s.preferred = next
	return &p, nil
}

// AppendSafePlace validates sp, assigns the next id and persists it.
func (s *Store) AppendSafePlace(ctx context.Context, sp domain.SafePlace) (*domain.SafePlace, error) {
	if !sp.Location.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCoordinate, sp.Location)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeIDs(s.nextDanger, s.nextPreferred, s.nextSafePlace+1); err != nil {
		return nil, err
	}
	sp.ID = s.nextSafePlace
	s.nextSafePlace++

	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = time.Now().UTC()
	}
	next := append(append([]domain.SafePlace{}, s.safePlaces...), sp)
	if err := s.writeSafePlaces(next); err != nil {
		return nil, err
	}
	s.safePlaces = next
	return &sp, nil
}

func (s *Store) RemoveDangerPolygon(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := without(s.danger, func(p domain.DangerPolygon) bool { return p.ID == id })
	if !ok {
		return fmt.Errorf("danger polygon %d: %w", id, domain.ErrNotFound)
	}
	if err := s.writeDanger(next); err != nil {
		return err
	}
	s.danger = next
	return nil
}

func (s *Store) RemovePreferredPolygon(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := without(s.preferred, func(p domain.PreferredPolygon) bool { return p.ID == id })
	if !ok {
		return fmt.Errorf("preferred polygon %d: %w", id, domain.ErrNotFound)
	}
	if err := s.writePreferred(next); err != nil {
		return err
	}
	s.preferred = next
	return nil
}

func (s *Store) RemoveSafePlace(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := without(s.safePlaces, func(sp domain.SafePlace) bool { return sp.ID == id })
	if !ok {
		return fmt.Errorf("safe place %d: %w", id, domain.ErrNotFound)
	}
	if err := s.writeSafePlaces(next); err != nil {
		return err
	}
	s.safePlaces = next
	return nil
}

func without[T any](items []T, match func(T) bool) ([]T, bool) {
	out := make([]T, 0, len(items))
	found := false
	for _, it := range items {
		if match(it) {
			found = true
			continue
		}
		out = append(out, it)
	}
	return out, found
}

// --- encoding ---

func encodeRing(r domain.Ring) string {
	parts := make([]string, len(r))
	for i, c := range r {
		parts[i] = formatFloat(c.Lon) + " " + formatFloat(c.Lat)
	}
	return strings.Join(parts, ";")
}

func decodeRing(s string) (domain.Ring, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	ring := make(domain.Ring, 0, len(parts))
	for _, p := range parts {
		fields := strings.Fields(p)
		if len(fields) != 2 {
			return nil, fmt.Errorf("bad ring vertex %q", p)
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bad longitude %q: %w", fields[0], err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad latitude %q: %w", fields[1], err)
		}
		ring = append(ring, domain.Coordinate{Lon: lon, Lat: lat})
	}
	return ring, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseDanger(rec []string) (domain.DangerPolygon, error) {
	var p domain.DangerPolygon
	if len(rec) != len(dangerHeader) {
		return p, fmt.Errorf("expected %d fields, got %d", len(dangerHeader), len(rec))
	}
	var err error
	if p.ID, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
		return p, fmt.Errorf("bad id: %w", err)
	}
	if p.SafetyMultiplier, err = strconv.ParseFloat(rec[1], 64); err != nil {
		return p, fmt.Errorf("bad multiplier: %w", err)
	}
	if p.CreatedAt, err = parseTime(rec[2]); err != nil {
		return p, fmt.Errorf("bad created_at: %w", err)
	}
	if p.Ring, err = decodeRing(rec[3]); err != nil {
		return p, err
	}
	return p, nil
}

func parsePreferred(rec []string) (domain.PreferredPolygon, error) {
	var p domain.PreferredPolygon
	if len(rec) != len(preferredHeader) {
		return p, fmt.Errorf("expected %d fields, got %d", len(preferredHeader), len(rec))
	}
	var err error
	if p.ID, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
		return p, fmt.Errorf("bad id: %w", err)
	}
	if p.CreatedAt, err = parseTime(rec[1]); err != nil {
		return p, fmt.Errorf("bad created_at: %w", err)
	}
	if p.Ring, err = decodeRing(rec[2]); err != nil {
		return p, err
	}
	return p, nil
}

func parseSafePlace(rec []string) (domain.SafePlace, error) {
	var sp domain.SafePlace
	if len(rec) != len(safePlaceHeader) {
		return sp, fmt.Errorf("expected %d fields, got %d", len(safePlaceHeader), len(rec))
	}
	var err error
	if sp.ID, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
		return sp, fmt.Errorf("bad id: %w", err)
	}
	if sp.Location.Lon, err = strconv.ParseFloat(rec[1], 64); err != nil {
		return sp, fmt.Errorf("bad lon: %w", err)
	}
	if sp.Location.Lat, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return sp, fmt.Errorf("bad lat: %w", err)
	}
	sp.Name = rec[3]
	if sp.CreatedAt, err = parseTime(rec[4]); err != nil {
		return sp, fmt.Errorf("bad created_at: %w", err)
	}
	return sp, nil
}

// readFile parses every data row of a CSV file. A missing file is an empty
// collection. Rows are returned sorted by id. Rows that do not decode are
// logged and returned separately as rejects; maxID covers them too when
// their id field is readable.
func readFile[T any](path string, parse func([]string) (T, error), id func(T) int64) (out []T, rejects [][]string, maxID int64, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, 0, nil
	}
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, 0, fmt.Errorf("read %s: %w", path, err)
		}
		line++
		if line == 1 && len(rec) > 0 && rec[0] == "id" {
			continue
		}
		item, err := parse(rec)
		if err != nil {
			slog.Warn("skipping undecodable safety map row",
				"file", filepath.Base(path), "line", line, "error", err)
			rejects = append(rejects, rec)
			if len(rec) > 0 {
				if n, perr := strconv.ParseInt(rec[0], 10, 64); perr == nil {
					maxID = max(maxID, n)
				}
			}
			continue
		}
		maxID = max(maxID, id(item))
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out, rejects, maxID, nil
}

// readIDs loads the persisted next id of each collection, keyed by data file.
func readIDs(path string) (map[string]int64, error) {
	marks := map[string]int64{}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return marks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	for i, rec := range rows {
		if i == 0 && len(rec) > 0 && rec[0] == idsHeader[0] {
			continue
		}
		if len(rec) != len(idsHeader) {
			return nil, fmt.Errorf("%s line %d: expected %d fields, got %d", idsFile, i+1, len(idsHeader), len(rec))
		}
		n, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad next id: %w", idsFile, i+1, err)
		}
		marks[rec[0]] = n
	}
	return marks, nil
}

func (s *Store) writeIDs(danger, preferred, safePlaces int64) error {
	return writeAtomic(filepath.Join(s.dir, idsFile), [][]string{
		idsHeader,
		{dangerFile, strconv.FormatInt(danger, 10)},
		{preferredFile, strconv.FormatInt(preferred, 10)},
		{safePlaceFile, strconv.FormatInt(safePlaces, 10)},
	})
}

func (s *Store) writeDanger(items []domain.DangerPolygon) error {
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, dangerHeader)
	for _, p := range items {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10), formatFloat(p.SafetyMultiplier), formatTime(p.CreatedAt), encodeRing(p.Ring),
		})
	}
	return writeAtomic(filepath.Join(s.dir, dangerFile), append(rows, s.rejDanger...))
}

func (s *Store) writePreferred(items []domain.PreferredPolygon) error {
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, preferredHeader)
	for _, p := range items {
		rows = append(rows, []string{strconv.FormatInt(p.ID, 10), formatTime(p.CreatedAt), encodeRing(p.Ring)})
	}
	return writeAtomic(filepath.Join(s.dir, preferredFile), append(rows, s.rejPreferred...))
}

func (s *Store) writeSafePlaces(items []domain.SafePlace) error {
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, safePlaceHeader)
	for _, sp := range items {
		rows = append(rows, []string{
			strconv.FormatInt(sp.ID, 10), formatFloat(sp.Location.Lon), formatFloat(sp.Location.Lat), sp.Name, formatTime(sp.CreatedAt),
		})
	}
	return writeAtomic(filepath.Join(s.dir, safePlaceFile), append(rows, s.rejSafePlaces...))
}

// writeAtomic writes rows to a temp file in the same directory, syncs it and
// renames it over path, so readers see either the old or the new file.
func writeAtomic(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	ok = true
	return nil
}
