package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelpipe/internal/api"
	"reelpipe/internal/approval"
	"reelpipe/internal/logging"
	"reelpipe/internal/metrics"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
	"reelpipe/internal/workflow"
)

// controller is the slice of the daemon the HTTP handlers drive.
type controller interface {
	Status(ctx context.Context) Status
	Decide(ctx context.Context, itemID int64, decision queue.Decision, by string) (queue.ApprovalRequest, error)
	TriggerRun(trigger string) string
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	ctrl   controller
	items  *api.ItemService

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind, token string, ctrl controller, store api.ItemReader, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api"),
		ctrl:   ctrl,
		items:  api.NewItemService(store),
	}

	routes := http.NewServeMux()
	routes.HandleFunc("GET /api/status", srv.handleStatus)
	routes.HandleFunc("GET /api/items", srv.handleItems)
	routes.HandleFunc("GET /api/items/{id}", srv.handleItem)
	routes.HandleFunc("POST /api/items/{id}/approve", srv.handleDecision(queue.DecisionApproved))
	routes.HandleFunc("POST /api/items/{id}/reject", srv.handleDecision(queue.DecisionRejected))
	routes.HandleFunc("POST /api/run", srv.handleRun)
	routes.HandleFunc("GET /api/stats", srv.handleStats)
	routes.HandleFunc("GET /api/targets", srv.handleTargets)

	mux := http.NewServeMux()
	mux.Handle("/api/", srv.withRequestID(authMiddleware(strings.TrimSpace(token), routes)))
	mux.Handle("GET /metrics", metrics.Handler())
	srv.handler = mux

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	_ = s.listener.Close()
	s.listener = nil
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.ctrl.Status(r.Context())
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: deps,
	})
}

func (s *apiServer) handleItems(w http.ResponseWriter, r *http.Request) {
	var stages []queue.Stage
	for _, raw := range r.URL.Query()["stage"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			stage, ok := queue.ParseStage(part)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", part))
				return
			}
			stages = append(stages, stage)
		}
	}
	items, err := s.items.List(r.Context(), stages...)
	if err != nil {
		s.logFailure(r, "list items", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemListResponse{Items: items})
}

func (s *apiServer) handleItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	resp, err := s.items.Describe(r.Context(), id)
	if err != nil {
		s.logFailure(r, "describe item", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	if resp == nil {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDecision(decision queue.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.itemID(w, r)
		if !ok {
			return
		}
		var body api.DecisionRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req, err := s.ctrl.Decide(r.Context(), id, decision, body.By)
		if err != nil {
			status := decisionStatus(err)
			if status == http.StatusInternalServerError {
				s.logFailure(r, "record decision", err)
			}
			s.writeError(w, status, services.Message(err))
			return
		}
		s.writeJSON(w, http.StatusOK, api.DecisionResponse{Approval: api.FromApproval(req)})
	}
}

func decisionStatus(err error) int {
	switch {
	case errors.Is(err, approval.ErrNotFound), errors.Is(err, queue.ErrItemNotFound):
		return http.StatusNotFound
	case approval.IsConflict(err), errors.Is(err, queue.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation), errors.Is(err, approval.ErrInvalidDecision):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	runID := s.ctrl.TriggerRun(workflow.TriggerAPI)
	s.writeJSON(w, http.StatusAccepted, api.RunResponse{RunID: runID})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.items.Stats(r.Context())
	if err != nil {
		s.logFailure(r, "load stats", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) handleTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.items.Targets(r.Context())
	if err != nil {
		s.logFailure(r, "list targets", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}
	s.writeJSON(w, http.StatusOK, api.TargetListResponse{Targets: targets})
}

func (s *apiServer) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) logFailure(r *http.Request, op string, err error) {
	logging.WithContext(r.Context(), s.logger).Error("api request failed",
		logging.String("op", op),
		logging.String("path", r.URL.Path),
		logging.Error(err),
	)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api encode failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
