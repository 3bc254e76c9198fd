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

// CreateApprovalRequest records a pending approval request for an item.
// Repeat calls leave the stored row untouched and return it.
func (s *Store) CreateApprovalRequest(ctx context.Context, itemID int64) (ApprovalRequest, error) {
	if _, err := s.exec(ctx,
		`INSERT INTO approval_requests (item_id, created_at, decision)
         VALUES (?, ?, ?)
         ON CONFLICT(item_id) DO NOTHING`,
		itemID, formatTime(time.Now()), DecisionPending,
	); err != nil {
		return ApprovalRequest{}, fmt.Errorf("insert approval request: %w", err)
	}
	req, err := s.GetApprovalRequest(ctx, itemID)
	if err != nil {
		return ApprovalRequest{}, err
	}
	if req == nil {
		return ApprovalRequest{}, fmt.Errorf("%w: item %d", ErrApprovalNotFound, itemID)
	}
	return *req, nil
}

// GetApprovalRequest returns the approval request for an item, or nil when
// none exists.
func (s *Store) GetApprovalRequest(ctx context.Context, itemID int64) (*ApprovalRequest, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT item_id, created_at, decision, decided_by, decided_at FROM approval_requests WHERE item_id = ?",
		itemID,
	)
	req, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get approval request: %w", err)
	}
	return req, nil
}

// ListApprovalRequests returns approval requests filtered by decision, or
// all of them when no decision is given, ordered by item id.
func (s *Store) ListApprovalRequests(ctx context.Context, decisions ...Decision) ([]ApprovalRequest, error) {
	builder := sq.Select("item_id", "created_at", "decision", "decided_by", "decided_at").
		From("approval_requests").
		OrderBy("item_id")
	if len(decisions) > 0 {
		values := make([]string, 0, len(decisions))
		for _, d := range decisions {
			values = append(values, string(d))
		}
		builder = builder.Where(sq.Eq{"decision": values})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	defer rows.Close()

	var out []ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// DecideApproval records a one-shot decision and moves the owning item to
// approved or rejected. Both writes share a single transaction.
func (s *Store) DecideApproval(ctx context.Context, itemID int64, decision Decision, by string) (ApprovalRequest, error) {
	var target Stage
	switch decision {
	case DecisionApproved:
		target = StageApproved
	case DecisionRejected:
		target = StageRejected
	default:
		return ApprovalRequest{}, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
	by = strings.TrimSpace(by)
	if by == "" {
		return ApprovalRequest{}, errors.New("decided_by is required")
	}

	ctx = ensureContext(ctx)
	var result ApprovalRequest
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT item_id, created_at, decision, decided_by, decided_at FROM approval_requests WHERE item_id = ?",
			itemID,
		)
		req, err := scanApproval(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: item %d", ErrApprovalNotFound, itemID)
		}
		if err != nil {
			return fmt.Errorf("load approval request: %w", err)
		}
		if req.Decision != DecisionPending {
			return fmt.Errorf("%w: item %d is %s", ErrAlreadyDecided, itemID, req.Decision)
		}

		var (
			stage   string
			version int64
		)
		if err := tx.QueryRowContext(ctx,
			"SELECT stage, version FROM content_items WHERE id = ?", itemID,
		).Scan(&stage, &version); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: item %d", ErrItemNotFound, itemID)
			}
			return fmt.Errorf("load item: %w", err)
		}
		if Stage(stage) != StagePendingApproval {
			return fmt.Errorf("%w: item %d is %s", ErrNotPending, itemID, stage)
		}

		now := time.Now().UTC()
		timestamp := formatTime(now)
		if _, err := tx.ExecContext(ctx,
			"UPDATE approval_requests SET decision = ?, decided_by = ?, decided_at = ? WHERE item_id = ? AND decision = ?",
			decision, by, timestamp, itemID, DecisionPending,
		); err != nil {
			return fmt.Errorf("update approval request: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE content_items
             SET stage = ?, attempts = 0, last_error = NULL, next_attempt_at = NULL, version = version + 1, updated_at = ?
             WHERE id = ? AND version = ?`,
			target, timestamp, itemID, version,
		)
		if err != nil {
			return fmt.Errorf("update item stage: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if affected == 0 {
			return fmt.Errorf("%w: item %d", ErrConcurrencyConflict, itemID)
		}

		req.Decision = decision
		req.DecidedBy = by
		req.DecidedAt = &now
		result = *req
		return nil
	})
	if err != nil {
		return ApprovalRequest{}, err
	}
	return result, nil
}

func scanApproval(scanner rowScanner) (*ApprovalRequest, error) {
	var (
		req        ApprovalRequest
		createdRaw string
		decision   string
		decidedBy  sql.NullString
		decidedAt  sql.NullString
	)
	if err := scanner.Scan(&req.ItemID, &createdRaw, &decision, &decidedBy, &decidedAt); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		req.CreatedAt = created
	}
	req.Decision = Decision(decision)
	req.DecidedBy = decidedBy.String
	req.DecidedAt = parseNullableTime(decidedAt)
	return &req, nil
}
