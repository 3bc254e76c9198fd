package dedupe

import (
	"context"
	"errors"
	"fmt"

	"reelpipe/internal/fingerprint"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
)

// Verdict is the outcome of classifying a transformed item.
type Verdict string

const (
	VerdictUnique    Verdict = "unique"
	VerdictDuplicate Verdict = "duplicate"
)

// Result carries the verdict and, for duplicates, the matched item.
type Result struct {
	Verdict   Verdict
	MatchedID int64
	Distance  int
}

// Index is the subset of fingerprint.Index the gate relies on.
type Index interface {
	IsNearDuplicate(ctx context.Context, fp fingerprint.Fingerprint) (fingerprint.Match, bool, error)
	Insert(ctx context.Context, fp fingerprint.Fingerprint, itemID int64) error
	Contains(ctx context.Context, itemID int64) (bool, error)
}

// Gate classifies items against the fingerprint index and admits unique
// items into it.
type Gate struct {
	index Index
}

// NewGate constructs a deduplication gate over the provided index.
func NewGate(index Index) *Gate {
	return &Gate{index: index}
}

// Classify decides whether an item is unique. Unique items are bound into
// the index permanently; duplicates never enter it.
func (g *Gate) Classify(ctx context.Context, item *queue.Item) (Result, error) {
	if item == nil {
		return Result{}, fmt.Errorf("%w: nil item", services.ErrInvariant)
	}
	fp, err := fingerprint.Parse(item.Fingerprint)
	if err != nil {
		return Result{}, services.Wrap(services.ErrInvariant, "dedupe", "parse fingerprint",
			fmt.Sprintf("Item %d has no usable fingerprint", item.ID), err)
	}

	// A prior run indexed this item but did not commit the stage change.
	indexed, err := g.index.Contains(ctx, item.ID)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "dedupe", "lookup index", "Fingerprint index unavailable", err)
	}
	if indexed {
		return Result{Verdict: VerdictUnique}, nil
	}

	match, found, err := g.index.IsNearDuplicate(ctx, fp)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "dedupe", "scan index", "Fingerprint index unavailable", err)
	}
	if found {
		return Result{Verdict: VerdictDuplicate, MatchedID: match.ItemID, Distance: match.Distance}, nil
	}

	if err := g.index.Insert(ctx, fp, item.ID); err != nil {
		if errors.Is(err, fingerprint.ErrConflict) {
			// Lost the race to a concurrent insert of the same content.
			owner, found, lookupErr := g.index.IsNearDuplicate(ctx, fp)
			if lookupErr != nil {
				return Result{}, services.Wrap(services.ErrTransient, "dedupe", "scan index", "Fingerprint index unavailable", lookupErr)
			}
			if !found {
				return Result{}, services.Wrap(services.ErrTransient, "dedupe", "insert fingerprint", "Conflicting fingerprint not found in index", err)
			}
			return Result{Verdict: VerdictDuplicate, MatchedID: owner.ItemID, Distance: owner.Distance}, nil
		}
		return Result{}, services.Wrap(services.ErrTransient, "dedupe", "insert fingerprint", "Fingerprint index unavailable", err)
	}
	return Result{Verdict: VerdictUnique}, nil
}
