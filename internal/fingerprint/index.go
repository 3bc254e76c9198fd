package fingerprint

import (
	"context"
	"errors"
	"fmt"

	"reelpipe/internal/queue"
)

// ErrConflict reports that the identical fingerprint is already indexed for
// another item.
var ErrConflict = errors.New("fingerprint already indexed")

// Store is the persistence the index needs.
type Store interface {
	ListFingerprints(ctx context.Context) ([]queue.FingerprintRecord, error)
	InsertFingerprint(ctx context.Context, fingerprint string, itemID int64) error
	FingerprintForItem(ctx context.Context, itemID int64) (string, error)
}

// Match describes the indexed record closest in scan order to a queried fingerprint.
type Match struct {
	ItemID      int64
	Fingerprint Fingerprint
	Distance    int
}

// Index answers near-duplicate queries over the fingerprints of accepted
// items.
type Index struct {
	store     Store
	threshold int
}

// NewIndex constructs an index. Fingerprints within threshold bits of each
// other are near-duplicates.
func NewIndex(store Store, threshold int) *Index {
	if threshold < 0 {
		threshold = 0
	}
	return &Index{store: store, threshold: threshold}
}

// Threshold returns the configured Hamming distance bound.
func (i *Index) Threshold() int {
	return i.threshold
}

// IsNearDuplicate scans the index in ascending item id order and returns the
// first record within the threshold, so ties resolve to the lowest id.
func (i *Index) IsNearDuplicate(ctx context.Context, fp Fingerprint) (Match, bool, error) {
	records, err := i.store.ListFingerprints(ctx)
	if err != nil {
		return Match{}, false, fmt.Errorf("load fingerprint index: %w", err)
	}
	for _, record := range records {
		stored, err := Parse(record.Fingerprint)
		if err != nil {
			return Match{}, false, fmt.Errorf("item %d: %w", record.ItemID, err)
		}
		if d := Distance(fp, stored); d <= i.threshold {
			return Match{ItemID: record.ItemID, Fingerprint: stored, Distance: d}, true, nil
		}
	}
	return Match{}, false, nil
}

// Insert binds a fingerprint to an item. Inserting the same pair again is a
// no-op; an identical fingerprint owned by another item returns ErrConflict.
func (i *Index) Insert(ctx context.Context, fp Fingerprint, itemID int64) error {
	err := i.store.InsertFingerprint(ctx, fp.String(), itemID)
	if errors.Is(err, queue.ErrFingerprintConflict) {
		return fmt.Errorf("%w: %s", ErrConflict, fp)
	}
	return err
}

// Contains reports whether the item already has an indexed fingerprint.
func (i *Index) Contains(ctx context.Context, itemID int64) (bool, error) {
	fp, err := i.store.FingerprintForItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	return fp != "", nil
}
