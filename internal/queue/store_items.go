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

// CreateItem inserts a freshly acquired item at the acquired stage.
// Returns ErrDuplicateSourceKey when the source key is already known.
func (s *Store) CreateItem(ctx context.Context, in NewItem) (*Item, error) {
	sourceKey := strings.TrimSpace(in.SourceKey)
	if sourceKey == "" {
		return nil, errors.New("source key is required")
	}
	timestamp := formatTime(time.Now())

	query, args, err := sq.Insert("content_items").
		Columns("source_key", "target", "stage", "payload_ref", "metadata_json", "attempts", "version", "created_at", "updated_at").
		Values(sourceKey, strings.TrimSpace(in.Target), StageAcquired, nullableString(in.PayloadRef), in.Metadata.JSON(), 0, 1, timestamp, timestamp).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err, "source_key") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSourceKey, sourceKey)
		}
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches an item by identifier. Returns nil when missing.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	return s.getOne(ctx, sq.Eq{"id": id})
}

// GetBySourceKey fetches an item by its acquisition source key. Returns nil when missing.
func (s *Store) GetBySourceKey(ctx context.Context, sourceKey string) (*Item, error) {
	return s.getOne(ctx, sq.Eq{"source_key": strings.TrimSpace(sourceKey)})
}

func (s *Store) getOne(ctx context.Context, where sq.Sqlizer) (*Item, error) {
	query, args, err := sq.Select(itemColumns...).From("content_items").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	row := s.db.QueryRowContext(ensureContext(ctx), query, args...)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns items, optionally filtered by stage, ordered by id.
func (s *Store) List(ctx context.Context, stages ...Stage) ([]*Item, error) {
	builder := sq.Select(itemColumns...).From("content_items").OrderBy("id")
	if len(stages) > 0 {
		builder = builder.Where(sq.Eq{"stage": stageValues(stages)})
	}
	return s.queryItems(ctx, builder)
}

// ItemsForStage returns the items at the given stage whose retry delay has
// elapsed, in id order.
func (s *Store) ItemsForStage(ctx context.Context, stage Stage, now time.Time) ([]*Item, error) {
	builder := sq.Select(itemColumns...).
		From("content_items").
		Where(sq.Eq{"stage": string(stage)}).
		Where(sq.Or{
			sq.Eq{"next_attempt_at": nil},
			sq.LtOrEq{"next_attempt_at": formatTime(now)},
		}).
		OrderBy("id")
	return s.queryItems(ctx, builder)
}

func (s *Store) queryItems(ctx context.Context, builder sq.SelectBuilder) ([]*Item, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return scanItems(rows)
}

// Update persists changes to an item using optimistic concurrency. The write
// succeeds only if the stored version still equals item.Version; on success
// the version is incremented in place. Stage changes must follow the
// lifecycle and a stored fingerprint can never be replaced.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("nil item")
	}
	if item.persisted.stage != "" && item.Stage != item.persisted.stage && !CanTransition(item.persisted.stage, item.Stage) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.persisted.stage, item.Stage)
	}
	if item.persisted.fingerprint != "" && item.Fingerprint != item.persisted.fingerprint {
		return fmt.Errorf("%w: item %d", ErrFingerprintImmutable, item.ID)
	}

	now := time.Now()
	query, args, err := sq.Update("content_items").
		SetMap(map[string]any{
			"target":          item.Target,
			"stage":           string(item.Stage),
			"fingerprint":     nullableString(item.Fingerprint),
			"payload_ref":     nullableString(item.PayloadRef),
			"processed_ref":   nullableString(item.ProcessedRef),
			"metadata_json":   nullableString(item.MetadataJSON),
			"attempts":        item.Attempts,
			"last_error":      nullableString(item.LastError),
			"next_attempt_at": nullableTime(item.NextAttemptAt),
			"published_id":    nullableString(item.PublishedID),
			"version":         item.Version + 1,
			"updated_at":      formatTime(now),
		}).
		Where(sq.Eq{"id": item.ID, "version": item.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: item %d version %d", ErrConcurrencyConflict, item.ID, item.Version)
	}
	item.Version++
	item.UpdatedAt = now.UTC()
	item.markPersisted()
	return nil
}

func stageValues(stages []Stage) []string {
	values := make([]string, 0, len(stages))
	for _, stage := range stages {
		values = append(values, string(stage))
	}
	return values
}
