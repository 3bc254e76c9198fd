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

// InsertFingerprint records the fingerprint for an item in the index.
// Re-inserting the same pair is a no-op. A fingerprint already owned by a
// different item yields ErrFingerprintConflict; an item already indexed
// under a different fingerprint yields ErrFingerprintImmutable.
func (s *Store) InsertFingerprint(ctx context.Context, fingerprint string, itemID int64) error {
	fingerprint = strings.ToLower(strings.TrimSpace(fingerprint))
	if fingerprint == "" {
		return errors.New("fingerprint is required")
	}
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var owner int64
		err := tx.QueryRowContext(ctx, "SELECT item_id FROM fingerprint_index WHERE fingerprint = ?", fingerprint).Scan(&owner)
		switch {
		case err == nil:
			if owner == itemID {
				return nil
			}
			return fmt.Errorf("%w: %s owned by item %d", ErrFingerprintConflict, fingerprint, owner)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup fingerprint: %w", err)
		}

		var existing string
		err = tx.QueryRowContext(ctx, "SELECT fingerprint FROM fingerprint_index WHERE item_id = ?", itemID).Scan(&existing)
		switch {
		case err == nil:
			return fmt.Errorf("%w: item %d indexed as %s", ErrFingerprintImmutable, itemID, existing)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup item fingerprint: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fingerprint_index (item_id, fingerprint, created_at) VALUES (?, ?, ?)",
			itemID, fingerprint, formatTime(time.Now()),
		); err != nil {
			if isUniqueViolation(err, "fingerprint") {
				return fmt.Errorf("%w: %s", ErrFingerprintConflict, fingerprint)
			}
			return fmt.Errorf("insert fingerprint: %w", err)
		}
		return nil
	})
}

// ListFingerprints returns every indexed fingerprint ordered by item id.
func (s *Store) ListFingerprints(ctx context.Context) ([]FingerprintRecord, error) {
	query, args, err := sq.Select("item_id", "fingerprint", "created_at").
		From("fingerprint_index").
		OrderBy("item_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var records []FingerprintRecord
	for rows.Next() {
		var (
			record     FingerprintRecord
			createdRaw string
		)
		if err := rows.Scan(&record.ItemID, &record.Fingerprint, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			record.CreatedAt = created
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// FingerprintForItem returns the indexed fingerprint for an item, or "" when
// the item has not been indexed.
func (s *Store) FingerprintForItem(ctx context.Context, itemID int64) (string, error) {
	var fingerprint string
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT fingerprint FROM fingerprint_index WHERE item_id = ?", itemID,
	).Scan(&fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fingerprint for item: %w", err)
	}
	return fingerprint, nil
}

// CountFingerprints returns the number of indexed fingerprints.
func (s *Store) CountFingerprints(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM fingerprint_index").Scan(&count); err != nil {
		return 0, fmt.Errorf("count fingerprints: %w", err)
	}
	return count, nil
}
