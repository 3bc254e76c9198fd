package queue

import (
	"database/sql"
	"errors"
	"time"
)

var itemColumns = []string{
	"id", "source_key", "target", "stage", "fingerprint", "payload_ref",
	"processed_ref", "metadata_json", "attempts", "last_error", "next_attempt_at",
	"published_id", "version", "created_at", "updated_at",
}

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(scanner rowScanner) (*Item, error) {
	var (
		id             int64
		sourceKey      string
		target         sql.NullString
		stage          string
		fingerprint    sql.NullString
		payloadRef     sql.NullString
		processedRef   sql.NullString
		metadata       sql.NullString
		attempts       sql.NullInt64
		lastError      sql.NullString
		nextAttemptRaw sql.NullString
		publishedID    sql.NullString
		version        int64
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceKey,
		&target,
		&stage,
		&fingerprint,
		&payloadRef,
		&processedRef,
		&metadata,
		&attempts,
		&lastError,
		&nextAttemptRaw,
		&publishedID,
		&version,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		SourceKey:    sourceKey,
		Target:       target.String,
		Stage:        Stage(stage),
		Fingerprint:  fingerprint.String,
		PayloadRef:   payloadRef.String,
		ProcessedRef: processedRef.String,
		MetadataJSON: metadata.String,
		Attempts:     int(attempts.Int64),
		LastError:    lastError.String,
		PublishedID:  publishedID.String,
		Version:      version,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if nextAttemptRaw.Valid {
		if next, err := parseTimeString(nextAttemptRaw.String); err == nil {
			item.NextAttemptAt = &next
		}
	}
	item.markPersisted()
	return item, nil
}

func scanItems(rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}
