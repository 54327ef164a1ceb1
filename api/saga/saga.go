package saga

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID        string            `json:"id"`
	SagaID    string            `json:"sagaId"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"` // cli, api
	Service   string            `json:"service"`
	Stage     string            `json:"stage"`
	Action    string            `json:"action"` // step.start, step.complete, step.failed, stack.status, rollback.*
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Store interface {
	Append(ctx context.Context, evt *Event) error
}

// Saga journals the steps of one rollback invocation.
type Saga struct {
	ID      string
	Service string
	Stage   string
	Source  string
	store   Store
}

func New(store Store, service, stage, source string) *Saga {
	return &Saga{
		ID:      uuid.New().String(),
		Service: service,
		Stage:   stage,
		Source:  source,
		store:   store,
	}
}

func (s *Saga) Log(ctx context.Context, action, message string, metadata map[string]string) error {
	if s == nil || s.store == nil {
		return nil
	}
	evt := &Event{
		ID:        uuid.New().String(),
		SagaID:    s.ID,
		Timestamp: time.Now(),
		Source:    s.Source,
		Service:   s.Service,
		Stage:     s.Stage,
		Action:    action,
		Message:   message,
		Metadata:  metadata,
	}
	return s.store.Append(ctx, evt)
}

func (s *Saga) StepStart(ctx context.Context, step string) error {
	return s.Log(ctx, "step.start", step+" started", map[string]string{"step": step})
}

func (s *Saga) StepComplete(ctx context.Context, step string, duration time.Duration) error {
	return s.Log(ctx, "step.complete", step+" completed", map[string]string{
		"step":       step,
		"durationMs": strconv.FormatInt(duration.Milliseconds(), 10),
	})
}

func (s *Saga) StepFailed(ctx context.Context, step string, err error) error {
	return s.Log(ctx, "step.failed", step+" failed: "+err.Error(), map[string]string{
		"step":  step,
		"error": err.Error(),
	})
}
