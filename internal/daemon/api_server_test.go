package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reelpipe/internal/api"
	"reelpipe/internal/approval"
	"reelpipe/internal/deps"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
	"reelpipe/internal/workflow"
)

type itemReaderStub struct {
	items     []*queue.Item
	approvals map[int64]*queue.ApprovalRequest
}

func (s *itemReaderStub) List(_ context.Context, stages ...queue.Stage) ([]*queue.Item, error) {
	if len(stages) == 0 {
		return s.items, nil
	}
	var out []*queue.Item
	for _, item := range s.items {
		for _, stage := range stages {
			if item.Stage == stage {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (s *itemReaderStub) GetByID(_ context.Context, id int64) (*queue.Item, error) {
	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, nil
}

func (s *itemReaderStub) GetApprovalRequest(_ context.Context, itemID int64) (*queue.ApprovalRequest, error) {
	return s.approvals[itemID], nil
}

func (s *itemReaderStub) Stats(context.Context) (map[queue.Stage]int, error) {
	counts := make(map[queue.Stage]int)
	for _, item := range s.items {
		counts[item.Stage]++
	}
	return counts, nil
}

func (s *itemReaderStub) ApprovalStats(context.Context) (map[queue.Decision]int, error) {
	counts := make(map[queue.Decision]int)
	for _, req := range s.approvals {
		counts[req.Decision]++
	}
	return counts, nil
}

func (s *itemReaderStub) ListTargets(context.Context, bool) ([]queue.Target, error) {
	return []queue.Target{{Name: "alpha", Active: true}}, nil
}

type controllerStub struct {
	reader   *itemReaderStub
	triggers []string
}

func (c *controllerStub) Status(context.Context) Status {
	return Status{
		Running:      true,
		PID:          42,
		DatabasePath: "/data/reelpipe.db",
		Workflow:     workflow.StatusSummary{Running: true, StageCounts: map[queue.Stage]int{queue.StageAcquired: 2}},
		Dependencies: []deps.Status{{Name: "FFmpeg", Command: "ffmpeg", Available: true}},
	}
}

func (c *controllerStub) Decide(_ context.Context, itemID int64, decision queue.Decision, by string) (queue.ApprovalRequest, error) {
	if strings.TrimSpace(by) == "" {
		return queue.ApprovalRequest{}, services.Wrap(services.ErrValidation, "approval", "decide", "Decider identity is required", nil)
	}
	req, ok := c.reader.approvals[itemID]
	if !ok {
		return queue.ApprovalRequest{}, approval.ErrNotFound
	}
	if req.Decision != queue.DecisionPending {
		return queue.ApprovalRequest{}, approval.ErrAlreadyDecided
	}
	now := time.Now().UTC()
	req.Decision = decision
	req.DecidedBy = by
	req.DecidedAt = &now
	return *req, nil
}

func (c *controllerStub) TriggerRun(trigger string) string {
	c.triggers = append(c.triggers, trigger)
	return "run-1"
}

func newTestServer(t *testing.T, token string) (*apiServer, *controllerStub) {
	t.Helper()
	reader := &itemReaderStub{
		items: []*queue.Item{
			{ID: 1, SourceKey: "alpha:a.mp4", Target: "alpha", Stage: queue.StagePendingApproval},
			{ID: 2, SourceKey: "alpha:b.mp4", Target: "alpha", Stage: queue.StageDuplicate},
		},
		approvals: map[int64]*queue.ApprovalRequest{
			1: {ItemID: 1, Decision: queue.DecisionPending},
		},
	}
	ctrl := &controllerStub{reader: reader}
	return newAPIServer("", token, ctrl, reader, logging.NewNop()), ctrl
}

func serve(srv *apiServer, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)
	return w
}

func TestAPIServerRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	if w := serve(srv, http.MethodGet, "/api/items", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(srv, http.MethodGet, "/api/items", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	w := serve(srv, http.MethodGet, "/api/items", "", "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestAPIServerMetricsIsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	w := serve(srv, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", w.Code)
	}
}

func TestAPIServerListItemsFiltersByStage(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := serve(srv, http.MethodGet, "/api/items?stage=pending_approval", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.ItemListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != 1 {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}

	if w := serve(srv, http.MethodGet, "/api/items?stage=bogus", "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %d", w.Code)
	}
}

func TestAPIServerItemLookup(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := serve(srv, http.MethodGet, "/api/items/1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.ItemResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Approval == nil || resp.Approval.Decision != string(queue.DecisionPending) {
		t.Fatalf("expected pending approval, got %+v", resp.Approval)
	}

	if w := serve(srv, http.MethodGet, "/api/items/99", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing item, got %d", w.Code)
	}
	if w := serve(srv, http.MethodGet, "/api/items/abc", "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", w.Code)
	}
}

func TestAPIServerDecisions(t *testing.T) {
	srv, _ := newTestServer(t, "")

	if w := serve(srv, http.MethodPost, "/api/items/1/approve", `{}`, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without decider, got %d", w.Code)
	}

	w := serve(srv, http.MethodPost, "/api/items/1/approve", `{"by":"alice"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.DecisionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Approval.Decision != string(queue.DecisionApproved) || resp.Approval.DecidedBy != "alice" {
		t.Fatalf("unexpected approval: %+v", resp.Approval)
	}

	if w := serve(srv, http.MethodPost, "/api/items/1/reject", `{"by":"bob"}`, ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second decision, got %d", w.Code)
	}
	if w := serve(srv, http.MethodPost, "/api/items/2/approve", `{"by":"bob"}`, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without approval request, got %d", w.Code)
	}
	if w := serve(srv, http.MethodGet, "/api/items/1/approve", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET approve, got %d", w.Code)
	}
}

func TestAPIServerTriggerRun(t *testing.T) {
	srv, ctrl := newTestServer(t, "")

	w := serve(srv, http.MethodPost, "/api/run", "", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	var resp api.RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", resp.RunID)
	}
	if len(ctrl.triggers) != 1 || ctrl.triggers[0] != workflow.TriggerAPI {
		t.Fatalf("unexpected triggers %v", ctrl.triggers)
	}
}

func TestAPIServerStatusAndStats(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := serve(srv, http.MethodGet, "/api/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.PID != 42 || len(status.Dependencies) != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Workflow.StageCounts[string(queue.StageAcquired)] != 2 {
		t.Fatalf("unexpected stage counts: %v", status.Workflow.StageCounts)
	}

	w = serve(srv, http.MethodGet, "/api/stats", "", "")
	var stats api.StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Stages[string(queue.StageDuplicate)] != 1 || stats.Approvals[string(queue.DecisionPending)] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	w = serve(srv, http.MethodGet, "/api/targets", "", "")
	var targets api.TargetListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &targets); err != nil {
		t.Fatalf("decode targets: %v", err)
	}
	if len(targets.Targets) != 1 || targets.Targets[0].Name != "alpha" {
		t.Fatalf("unexpected targets: %+v", targets.Targets)
	}
}
