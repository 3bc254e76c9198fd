package queue

import (
	"strings"
	"time"
)

// Stage represents the lifecycle state of a content item.
type Stage string

const (
	StageAcquired        Stage = "acquired"
	StageTransformed     Stage = "transformed"
	StageUnique          Stage = "unique"
	StageDuplicate       Stage = "duplicate"
	StagePendingApproval Stage = "pending_approval"
	StageApproved        Stage = "approved"
	StageRejected        Stage = "rejected"
	StagePublished       Stage = "published"
	StagePublishFailed   Stage = "publish_failed"
	StageTransformFailed Stage = "transform_failed"
	StageFailed          Stage = "failed"
)

var allStages = []Stage{
	StageAcquired,
	StageTransformed,
	StageUnique,
	StageDuplicate,
	StagePendingApproval,
	StageApproved,
	StageRejected,
	StagePublished,
	StagePublishFailed,
	StageTransformFailed,
	StageFailed,
}

// stageRank orders stages along the lifecycle; every allowed transition
// strictly increases rank.
var stageRank = map[Stage]int{
	StageAcquired:        0,
	StageTransformed:     1,
	StageTransformFailed: 1,
	StageUnique:          2,
	StageDuplicate:       2,
	StagePendingApproval: 3,
	StageApproved:        4,
	StageRejected:        4,
	StagePublished:       5,
	StagePublishFailed:   5,
	StageFailed:          6,
}

var transitions = map[Stage][]Stage{
	StageAcquired:        {StageTransformed, StageTransformFailed, StageFailed},
	StageTransformed:     {StageUnique, StageDuplicate, StageFailed},
	StageUnique:          {StagePendingApproval, StageFailed},
	StagePendingApproval: {StageApproved, StageRejected},
	StageApproved:        {StagePublished, StagePublishFailed, StageFailed},
}

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageRank[normalized]
	return normalized, ok
}

// CanTransition reports whether the lifecycle allows moving from one stage to another.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Rank returns the stage's position in the lifecycle partial order, or -1 for
// unknown stages.
func Rank(stage Stage) int {
	if rank, ok := stageRank[stage]; ok {
		return rank
	}
	return -1
}

// IsTerminal reports whether no further automatic transition leaves the stage.
func IsTerminal(stage Stage) bool {
	_, known := stageRank[stage]
	return known && len(transitions[stage]) == 0
}

// Item represents a content item persisted in SQLite.
type Item struct {
	ID            int64
	SourceKey     string
	Target        string
	Stage         Stage
	Fingerprint   string
	PayloadRef    string
	ProcessedRef  string
	MetadataJSON  string
	Attempts      int
	LastError     string
	NextAttemptAt *time.Time
	PublishedID   string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// persisted mirrors the stored row so Update can validate the transition
	// and fingerprint immutability without another read.
	persisted struct {
		stage       Stage
		fingerprint string
	}
}

// IsTerminal reports whether the item has reached a terminal stage.
func (i Item) IsTerminal() bool {
	return IsTerminal(i.Stage)
}

// SetFailed records a failure message and increments the attempt counter.
func (i *Item) SetFailed(message string) {
	i.Attempts++
	i.LastError = strings.TrimSpace(message)
}

// Advance moves the item to the next stage and clears retry bookkeeping.
func (i *Item) Advance(next Stage) {
	i.Stage = next
	i.Attempts = 0
	i.LastError = ""
	i.NextAttemptAt = nil
}

func (i *Item) markPersisted() {
	i.persisted.stage = i.Stage
	i.persisted.fingerprint = i.Fingerprint
}

// NewItem describes a freshly acquired piece of content.
type NewItem struct {
	SourceKey  string
	Target     string
	PayloadRef string
	Metadata   Metadata
}

// FingerprintRecord is an entry in the fingerprint index.
type FingerprintRecord struct {
	Fingerprint string
	ItemID      int64
	CreatedAt   time.Time
}

// Decision is the state of an approval request.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ApprovalRequest is the pending-decision record for an item awaiting review.
type ApprovalRequest struct {
	ItemID    int64
	CreatedAt time.Time
	Decision  Decision
	DecidedBy string
	DecidedAt *time.Time
}

// Target is an acquisition account polled by the acquire step.
type Target struct {
	ID            int64
	Name          string
	Active        bool
	LastCheckedAt *time.Time
	CreatedAt     time.Time
}

// DatabaseHealth captures diagnostic information about the state database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated item counts per lifecycle bucket.
type HealthSummary struct {
	Total    int
	Active   int
	Waiting  int
	Done     int
	Failed   int
	Rejected int
}
