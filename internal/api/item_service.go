package api

import (
	"context"

	"reelpipe/internal/queue"
)

// ItemReader abstracts the store reads needed for API queries.
type ItemReader interface {
	List(ctx context.Context, stages ...queue.Stage) ([]*queue.Item, error)
	GetByID(ctx context.Context, id int64) (*queue.Item, error)
	GetApprovalRequest(ctx context.Context, itemID int64) (*queue.ApprovalRequest, error)
	Stats(ctx context.Context) (map[queue.Stage]int, error)
	ApprovalStats(ctx context.Context) (map[queue.Decision]int, error)
	ListTargets(ctx context.Context, activeOnly bool) ([]queue.Target, error)
}

// ItemService exposes read-only item operations returning API DTOs.
type ItemService struct {
	store ItemReader
}

// NewItemService constructs an ItemService around the provided reader.
func NewItemService(store ItemReader) *ItemService {
	if store == nil {
		return nil
	}
	return &ItemService{store: store}
}

// List returns items filtered by stage.
func (s *ItemService) List(ctx context.Context, stages ...queue.Stage) ([]Item, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.List(ctx, stages...)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// Describe fetches a single item with its approval request. Returns nil when
// the item does not exist.
func (s *ItemService) Describe(ctx context.Context, id int64) (*ItemResponse, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.GetByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	resp := &ItemResponse{Item: FromItem(item)}
	req, err := s.store.GetApprovalRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req != nil {
		approval := FromApproval(*req)
		resp.Approval = &approval
	}
	return resp, nil
}

// Stats returns counts per stage and per approval decision.
func (s *ItemService) Stats(ctx context.Context) (StatsResponse, error) {
	if s == nil || s.store == nil {
		return StatsResponse{}, nil
	}
	stages, err := s.store.Stats(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	decisions, err := s.store.ApprovalStats(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	approvals := map[string]int{
		string(queue.DecisionPending):  decisions[queue.DecisionPending],
		string(queue.DecisionApproved): decisions[queue.DecisionApproved],
		string(queue.DecisionRejected): decisions[queue.DecisionRejected],
	}
	return StatsResponse{Stages: StageCounts(stages), Approvals: approvals}, nil
}

// Targets lists every acquisition target.
func (s *ItemService) Targets(ctx context.Context) ([]Target, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	targets, err := s.store.ListTargets(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]Target, 0, len(targets))
	for _, target := range targets {
		out = append(out, FromTarget(target))
	}
	return out, nil
}
