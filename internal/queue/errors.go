package queue

import (
	"errors"
	"fmt"
	"strings"

	"reelpipe/internal/services"
)

var (
	// ErrConcurrencyConflict reports a stale version on a versioned write.
	// Callers skip the item; a later run picks it up.
	ErrConcurrencyConflict = errors.New("concurrency conflict: item changed since it was read")
	// ErrDuplicateSourceKey reports an attempt to acquire a known source key.
	ErrDuplicateSourceKey = errors.New("duplicate source key")
	// ErrInvalidTransition reports a stage change the lifecycle forbids.
	ErrInvalidTransition = fmt.Errorf("%w: invalid stage transition", services.ErrInvariant)
	// ErrFingerprintImmutable reports an attempt to overwrite a stored fingerprint.
	ErrFingerprintImmutable = fmt.Errorf("%w: fingerprint already set", services.ErrInvariant)
	// ErrFingerprintConflict reports that the fingerprint is already indexed for another item.
	ErrFingerprintConflict = errors.New("fingerprint already indexed")
	// ErrItemNotFound reports a write against an unknown item.
	ErrItemNotFound = errors.New("content item not found")
	// ErrApprovalNotFound reports a decision for an item with no approval request.
	ErrApprovalNotFound = errors.New("approval request not found")
	// ErrAlreadyDecided reports a second decision on a one-shot approval request.
	ErrAlreadyDecided = errors.New("approval decision already recorded")
	// ErrNotPending reports a decision for an item that is not awaiting approval.
	ErrNotPending = errors.New("item is not pending approval")
	// ErrInvalidDecision reports a decision value other than approved or rejected.
	ErrInvalidDecision = errors.New("invalid approval decision")
)

const (
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
)

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		code := coder.Code()
		if code != sqliteConstraintUnique && code != sqliteConstraintPrimaryKey {
			return false
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
