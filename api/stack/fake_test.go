package stack

import (
	"context"
	"errors"
	"sync"

	"rewind/api/model"
)

// fakeProvider replays a scripted sequence of status answers. Once the
// script runs out the last answer repeats.
type fakeProvider struct {
	mu        sync.Mutex
	idle      string // status reported before any update is submitted
	statuses  []string
	errs      []error // consumed by status calls after submit; nil entries fall through
	updateErr error

	updates     []model.UpdateRequest
	statusCalls int
	polls       int // status calls after the update was submitted
	served      int
}

func (f *fakeProvider) UpdateStack(ctx context.Context, req model.UpdateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return f.updateErr
}

func (f *fakeProvider) StackStatus(ctx context.Context, name string) (model.StackStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if len(f.updates) == 0 {
		idle := f.idle
		if idle == "" {
			idle = "UPDATE_COMPLETE"
		}
		return model.StackStatus{Status: idle}, nil
	}
	f.polls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return model.StackStatus{}, err
		}
	}
	i := f.served
	f.served++
	if len(f.statuses) == 0 {
		return model.StackStatus{}, errors.New("no script")
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return model.StackStatus{Status: f.statuses[i]}, nil
}
