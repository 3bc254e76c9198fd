package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reelpipe/internal/metrics"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
)

var (
	// ErrNotFound reports a decision for an item without an approval request.
	ErrNotFound = queue.ErrApprovalNotFound
	// ErrAlreadyDecided reports a second decision on the same request.
	ErrAlreadyDecided = queue.ErrAlreadyDecided
	// ErrNotPending reports a decision for an item outside pending_approval.
	ErrNotPending = queue.ErrNotPending
	// ErrInvalidDecision reports an unrecognised decision value.
	ErrInvalidDecision = queue.ErrInvalidDecision
)

// Store is the persistence the gate needs.
type Store interface {
	CreateApprovalRequest(ctx context.Context, itemID int64) (queue.ApprovalRequest, error)
	DecideApproval(ctx context.Context, itemID int64, decision queue.Decision, by string) (queue.ApprovalRequest, error)
	GetApprovalRequest(ctx context.Context, itemID int64) (*queue.ApprovalRequest, error)
}

// Gate models the pending, approved and rejected sub-state of an item.
type Gate struct {
	store Store
}

// NewGate constructs an approval gate.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// RequestApproval opens an approval request for the item. Calling it again
// returns the existing request unchanged.
func (g *Gate) RequestApproval(ctx context.Context, item *queue.Item) (queue.ApprovalRequest, error) {
	if item == nil || item.ID == 0 {
		return queue.ApprovalRequest{}, fmt.Errorf("%w: approval requested for unsaved item", services.ErrInvariant)
	}
	req, err := g.store.CreateApprovalRequest(ctx, item.ID)
	if err != nil {
		return queue.ApprovalRequest{}, services.Wrap(services.ErrTransient, "approval", "request approval",
			fmt.Sprintf("Could not record approval request for item %d", item.ID), err)
	}
	return req, nil
}

// Decide records the one-shot decision and moves the item to approved or
// rejected atomically.
func (g *Gate) Decide(ctx context.Context, itemID int64, decision queue.Decision, by string) (queue.ApprovalRequest, error) {
	if strings.TrimSpace(by) == "" {
		return queue.ApprovalRequest{}, services.Wrap(services.ErrValidation, "approval", "decide", "Decider identity is required", nil)
	}
	req, err := g.store.DecideApproval(ctx, itemID, decision, by)
	if err != nil {
		return queue.ApprovalRequest{}, err
	}
	metrics.ApprovalDecisions.WithLabelValues(string(decision)).Inc()
	return req, nil
}

// Get returns the approval request for an item, or nil when none exists.
func (g *Gate) Get(ctx context.Context, itemID int64) (*queue.ApprovalRequest, error) {
	return g.store.GetApprovalRequest(ctx, itemID)
}

// ParseDecision accepts approve, approved, reject and rejected in any case.
func ParseDecision(value string) (queue.Decision, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "approve", "approved":
		return queue.DecisionApproved, nil
	case "reject", "rejected":
		return queue.DecisionRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, value)
	}
}

// IsConflict reports whether err means the decision cannot apply to the
// item's current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyDecided) || errors.Is(err, ErrNotPending)
}
