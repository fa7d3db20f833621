package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// SafetyRepo implements ports.SafetyRepository with pgx.
type SafetyRepo struct {
	db *DB
}

// NewSafetyRepo creates a new SafetyRepo.
func NewSafetyRepo(db *DB) *SafetyRepo {
	return &SafetyRepo{db: db}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Snapshot reads all three collections inside one read-only repeatable-read
// transaction so concurrent writes never produce a mixed view.
func (r *SafetyRepo) Snapshot(ctx context.Context) (*domain.SafetySnapshot, error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var snap domain.SafetySnapshot
	if snap.Danger, err = listDanger(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Preferred, err = listPreferred(ctx, tx); err != nil {
		return nil, err
	}
	if snap.SafePlaces, err = listSafePlaces(ctx, tx); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return &snap, nil
}

// ListDangerPolygons returns all danger polygons ordered by id.
func (r *SafetyRepo) ListDangerPolygons(ctx context.Context) ([]domain.DangerPolygon, error) {
	return listDanger(ctx, r.db.Pool)
}

// ListPreferredPolygons returns all preferred polygons ordered by id.
func (r *SafetyRepo) ListPreferredPolygons(ctx context.Context) ([]domain.PreferredPolygon, error) {
	return listPreferred(ctx, r.db.Pool)
}

// ListSafePlaces returns all safe places ordered by id.
func (r *SafetyRepo) ListSafePlaces(ctx context.Context) ([]domain.SafePlace, error) {
	return listSafePlaces(ctx, r.db.Pool)
}

func listDanger(ctx context.Context, q querier) ([]domain.DangerPolygon, error) {
	rows, err := q.Query(ctx, `
		SELECT id, ring, safety_multiplier, created_at
		FROM danger_polygons ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query danger polygons: %w", err)
	}
	defer rows.Close()

	var out []domain.DangerPolygon
	for rows.Next() {
		var (
			p   domain.DangerPolygon
			raw []byte
		)
		if err := rows.Scan(&p.ID, &raw, &p.SafetyMultiplier, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &p.Ring); err != nil {
			slog.WarnContext(ctx, "skipping undecodable danger polygon", "id", p.ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func listPreferred(ctx context.Context, q querier) ([]domain.PreferredPolygon, error) {
	rows, err := q.Query(ctx, `
		SELECT id, ring, created_at
		FROM preferred_polygons ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query preferred polygons: %w", err)
	}
	defer rows.Close()

	var out []domain.PreferredPolygon
	for rows.Next() {
		var (
			p   domain.PreferredPolygon
			raw []byte
		)
		if err := rows.Scan(&p.ID, &raw, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &p.Ring); err != nil {
			slog.WarnContext(ctx, "skipping undecodable preferred polygon", "id", p.ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func listSafePlaces(ctx context.Context, q querier) ([]domain.SafePlace, error) {
	rows, err := q.Query(ctx, `
		SELECT id, name, lon, lat, created_at
		FROM safe_places ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query safe places: %w", err)
	}
	defer rows.Close()

	var out []domain.SafePlace
	for rows.Next() {
		var sp domain.SafePlace
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Location.Lon, &sp.Location.Lat, &sp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// AppendDangerPolygon validates and inserts p, returning it with its new id.
func (r *SafetyRepo) AppendDangerPolygon(ctx context.Context, p domain.DangerPolygon) (*domain.DangerPolygon, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ring, err := json.Marshal(p.Ring)
	if err != nil {
		return nil, err
	}
	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO danger_polygons (ring, safety_multiplier, created_at)
		VALUES ($1::jsonb, $2, COALESCE($3::timestamptz, NOW()))
		RETURNING id, created_at
	`, string(ring), p.SafetyMultiplier, nullTime(p.CreatedAt)).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert danger polygon: %w", err)
	}
	return &p, nil
}

// AppendPreferredPolygon validates and inserts p, returning it with its new id.
func (r *SafetyRepo) AppendPreferredPolygon(ctx context.Context, p domain.PreferredPolygon) (*domain.PreferredPolygon, error) {
	if err := p.Ring.Validate(); err != nil {
		return nil, err
	}
	ring, err := json.Marshal(p.Ring)
	if err != nil {
		return nil, err
	}
	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO preferred_polygons (ring, created_at)
		VALUES ($1::jsonb, COALESCE($2::timestamptz, NOW()))
		RETURNING id, created_at
	`, string(ring), nullTime(p.CreatedAt)).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert preferred polygon: %w", err)
	}
	return &p, nil
}

// AppendSafePlace inserts sp, returning it with its new id.
func (r *SafetyRepo) AppendSafePlace(ctx context.Context, sp domain.SafePlace) (*domain.SafePlace, error) {
	if !sp.Location.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCoordinate, sp.Location)
	}
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO safe_places (name, lon, lat, created_at)
		VALUES ($1, $2, $3, COALESCE($4::timestamptz, NOW()))
		RETURNING id, created_at
	`, sp.Name, sp.Location.Lon, sp.Location.Lat, nullTime(sp.CreatedAt)).Scan(&sp.ID, &sp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert safe place: %w", err)
	}
	return &sp, nil
}

// RemoveDangerPolygon deletes a danger polygon by id.
func (r *SafetyRepo) RemoveDangerPolygon(ctx context.Context, id int64) error {
	return r.remove(ctx, "danger_polygons", id)
}

// RemovePreferredPolygon deletes a preferred polygon by id.
func (r *SafetyRepo) RemovePreferredPolygon(ctx context.Context, id int64) error {
	return r.remove(ctx, "preferred_polygons", id)
}

// RemoveSafePlace deletes a safe place by id.
func (r *SafetyRepo) RemoveSafePlace(ctx context.Context, id int64) error {
	return r.remove(ctx, "safe_places", id)
}

// remove deletes one row. table is always one of the constant names above.
func (r *SafetyRepo) remove(ctx context.Context, table string, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", table, id, domain.ErrNotFound)
	}
	return nil
}

// nullTime lets the column default apply to a zero time.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
