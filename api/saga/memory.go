package saga

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore keeps events for the life of the process. Oldest sagas are
// dropped once more than limit are held.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
	order  []string
	limit  int
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 100
	}
	return &MemoryStore{events: make(map[string][]Event), limit: limit}
}

func (s *MemoryStore) Append(ctx context.Context, evt *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[evt.SagaID]; !ok {
		s.order = append(s.order, evt.SagaID)
		if len(s.order) > s.limit {
			delete(s.events, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.events[evt.SagaID] = append(s.events[evt.SagaID], *evt)
	return nil
}

func (s *MemoryStore) ListBySaga(ctx context.Context, sagaID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events[sagaID]))
	copy(out, s.events[sagaID])
	return out, nil
}

// LogStore writes events to a zap logger.
type LogStore struct {
	Log *zap.Logger
}

func (s *LogStore) Append(ctx context.Context, evt *Event) error {
	fields := []zap.Field{
		zap.String("saga", evt.SagaID),
		zap.String("service", evt.Service),
		zap.String("stage", evt.Stage),
		zap.String("action", evt.Action),
	}
	for k, v := range evt.Metadata {
		fields = append(fields, zap.String(k, v))
	}
	if evt.Action == "step.failed" {
		s.Log.Warn(evt.Message, fields...)
		return nil
	}
	s.Log.Info(evt.Message, fields...)
	return nil
}

// Multi fans one event out to several stores. The first error wins but
// every store still sees the event.
type Multi []Store

func (m Multi) Append(ctx context.Context, evt *Event) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}
