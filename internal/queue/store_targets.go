package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// NormalizeTargetName trims whitespace and a leading @ from an account name.
func NormalizeTargetName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "@")
}

// AddTarget registers an acquisition target, reactivating it if it was
// previously removed.
func (s *Store) AddTarget(ctx context.Context, name string) (Target, error) {
	name = NormalizeTargetName(name)
	if name == "" {
		return Target{}, errors.New("target name is required")
	}
	if _, err := s.exec(ctx,
		`INSERT INTO targets (name, active, created_at) VALUES (?, 1, ?)
         ON CONFLICT(name) DO UPDATE SET active = 1`,
		name, formatTime(time.Now()),
	); err != nil {
		return Target{}, fmt.Errorf("insert target: %w", err)
	}
	target, err := s.GetTarget(ctx, name)
	if err != nil {
		return Target{}, err
	}
	if target == nil {
		return Target{}, fmt.Errorf("target %q missing after insert", name)
	}
	return *target, nil
}

// DeactivateTarget stops the acquire step from polling a target. Returns
// false when the target is unknown.
func (s *Store) DeactivateTarget(ctx context.Context, name string) (bool, error) {
	res, err := s.exec(ctx, "UPDATE targets SET active = 0 WHERE name = ?", NormalizeTargetName(name))
	if err != nil {
		return false, fmt.Errorf("deactivate target: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetTarget returns a target by name, or nil when unknown.
func (s *Store) GetTarget(ctx context.Context, name string) (*Target, error) {
	targets, err := s.queryTargets(ctx, sq.Eq{"name": NormalizeTargetName(name)})
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}
	return &targets[0], nil
}

// ListTargets returns targets ordered by name.
func (s *Store) ListTargets(ctx context.Context, activeOnly bool) ([]Target, error) {
	if activeOnly {
		return s.queryTargets(ctx, sq.Eq{"active": boolToInt(true)})
	}
	return s.queryTargets(ctx, nil)
}

// MarkTargetChecked stamps the last time the acquire step fetched a target.
func (s *Store) MarkTargetChecked(ctx context.Context, name string, at time.Time) error {
	if _, err := s.exec(ctx,
		"UPDATE targets SET last_checked_at = ? WHERE name = ?",
		formatTime(at), NormalizeTargetName(name),
	); err != nil {
		return fmt.Errorf("mark target checked: %w", err)
	}
	return nil
}

func (s *Store) queryTargets(ctx context.Context, where sq.Sqlizer) ([]Target, error) {
	builder := sq.Select("id", "name", "active", "last_checked_at", "created_at").
		From("targets").
		OrderBy("name")
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var (
			target      Target
			active      int
			lastChecked sql.NullString
			createdRaw  string
		)
		if err := rows.Scan(&target.ID, &target.Name, &active, &lastChecked, &createdRaw); err != nil {
			return nil, err
		}
		target.Active = active != 0
		target.LastCheckedAt = parseNullableTime(lastChecked)
		if created, err := parseTimeString(createdRaw); err == nil {
			target.CreatedAt = created
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}
