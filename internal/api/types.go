package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Item describes a content item in a transport-friendly format.
type Item struct {
	ID            int64    `json:"id"`
	SourceKey     string   `json:"sourceKey"`
	Target        string   `json:"target"`
	Stage         string   `json:"stage"`
	Terminal      bool     `json:"terminal"`
	Fingerprint   string   `json:"fingerprint,omitempty"`
	PayloadRef    string   `json:"payloadRef,omitempty"`
	ProcessedRef  string   `json:"processedRef,omitempty"`
	Attempts      int      `json:"attempts"`
	LastError     string   `json:"lastError,omitempty"`
	NextAttemptAt string   `json:"nextAttemptAt,omitempty"`
	PublishedID   string   `json:"publishedId,omitempty"`
	Version       int64    `json:"version"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
	Metadata      Metadata `json:"metadata"`
}

// Metadata is the item's acquisition and publish metadata.
type Metadata struct {
	Caption           string   `json:"caption,omitempty"`
	SourceURL         string   `json:"sourceUrl,omitempty"`
	Title             string   `json:"title,omitempty"`
	Description       string   `json:"description,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	DuplicateOf       int64    `json:"duplicateOf,omitempty"`
	DuplicateDistance int      `json:"duplicateDistance,omitempty"`
}

// Approval describes an approval request.
type Approval struct {
	ItemID    int64  `json:"itemId"`
	Decision  string `json:"decision"`
	CreatedAt string `json:"createdAt,omitempty"`
	DecidedBy string `json:"decidedBy,omitempty"`
	DecidedAt string `json:"decidedAt,omitempty"`
}

// DecisionRequest is the body of approve and reject calls.
type DecisionRequest struct {
	By string `json:"by"`
}

// StageRun is one stage's counters within a run.
type StageRun struct {
	Stage      string `json:"stage"`
	Selected   int    `json:"selected"`
	Advanced   int    `json:"advanced"`
	Failed     int    `json:"failed"`
	Retried    int    `json:"retried"`
	Skipped    int    `json:"skipped"`
	DurationMs int64  `json:"durationMs"`
}

// RunReport summarizes a pipeline run.
type RunReport struct {
	RunID      string     `json:"runId"`
	Trigger    string     `json:"trigger"`
	StartedAt  string     `json:"startedAt"`
	FinishedAt string     `json:"finishedAt"`
	Stages     []StageRun `json:"stages"`
	Error      string     `json:"error,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	ActiveRuns  int            `json:"activeRuns"`
	NextRuns    []string       `json:"nextRuns,omitempty"`
	StageCounts map[string]int `json:"stageCounts"`
	LastError   string         `json:"lastError,omitempty"`
	LastRun     *RunReport     `json:"lastRun,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Target describes an acquisition target.
type Target struct {
	Name          string `json:"name"`
	Active        bool   `json:"active"`
	LastCheckedAt string `json:"lastCheckedAt,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// StatsResponse provides item counts per stage and approvals per decision.
type StatsResponse struct {
	Stages    map[string]int `json:"stages"`
	Approvals map[string]int `json:"approvals"`
}

// ItemListResponse wraps a collection of items.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// ItemResponse wraps a single item and its approval request, if any.
type ItemResponse struct {
	Item     Item      `json:"item"`
	Approval *Approval `json:"approval,omitempty"`
}

// DecisionResponse is returned after an approve or reject call.
type DecisionResponse struct {
	Approval Approval `json:"approval"`
}

// RunResponse is returned when a run is triggered.
type RunResponse struct {
	RunID string `json:"runId"`
}

// TargetListResponse wraps the target list.
type TargetListResponse struct {
	Targets []Target `json:"targets"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
