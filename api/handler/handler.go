package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rewind/api/config"
	"rewind/api/hub"
	"rewind/api/model"
	"rewind/api/rollback"
	"rewind/api/saga"
)

var validNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*$`)

// Rollbacks is the orchestrator surface the API drives.
type Rollbacks interface {
	Prepare(ctx context.Context, req model.RollbackRequest) (*rollback.Plan, error)
	Execute(ctx context.Context, plan *rollback.Plan) (*model.StackOperation, error)
	Deployments(ctx context.Context, req model.RollbackRequest) ([]model.DeploymentRecord, string, error)
}

// EventLister reads back a saga's journal.
type EventLister interface {
	ListBySaga(ctx context.Context, sagaID string) ([]saga.Event, error)
}

// HealthCheck probes one dependency; nil means up.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	rollbacks Rollbacks
	events    EventLister
	ws        *hub.Hub
	cfg       *config.Config
	project   *model.Project
	checks    map[string]HealthCheck
	log       *zap.Logger

	mu       sync.Mutex
	inFlight map[string]string // stack name -> saga id
	wg       sync.WaitGroup
}

func New(rb Rollbacks, events EventLister, ws *hub.Hub, cfg *config.Config, project *model.Project, checks map[string]HealthCheck, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		rollbacks: rb,
		events:    events,
		ws:        ws,
		cfg:       cfg,
		project:   project,
		checks:    checks,
		log:       log,
		inFlight:  make(map[string]string),
	}
}

// Wait blocks until background rollbacks finish or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Routes mounts the API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/saga/{sagaId}", h.GetSagaEvents)
	r.Route("/services/{service}/stages/{stage}", func(r chi.Router) {
		r.Use(ValidateNames)
		r.Get("/deployments", h.ListDeployments)
		r.Post("/rollback", h.Rollback)
	})
}

// ValidateNames is middleware that rejects malformed service or stage names.
func ValidateNames(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, param := range []string{"service", "stage"} {
			if v := chi.URLParam(r, param); v != "" && !validNameRe.MatchString(v) {
				writeError(w, http.StatusBadRequest, "invalid "+param+" name")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// request builds a rollback request for the path's service and stage,
// filling stack settings from the project file when it describes the
// same service.
func (h *Handler) request(r *http.Request, region, timestamp string) model.RollbackRequest {
	service := chi.URLParam(r, "service")
	stage := chi.URLParam(r, "stage")
	if region == "" {
		region = h.cfg.Region
	}

	var req model.RollbackRequest
	if h.project != nil && h.project.Service == service {
		req = h.project.RequestFor(stage, region, timestamp)
	} else {
		req = model.RollbackRequest{Service: service, Stage: stage, Region: region, Timestamp: timestamp}
	}
	if req.StackName == "" {
		req.StackName = service + "-" + stage
	}
	if req.Bucket == "" {
		req.Bucket = h.cfg.Bucket
	}
	req.PollInterval = h.cfg.PollInterval
	req.MonitorTimeout = h.cfg.MonitorTimeout
	return req
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, map[string]string{"error": msg})
}

func since(t time.Time) int64 {
	return time.Since(t).Milliseconds()
}
