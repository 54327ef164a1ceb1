package rollback

import (
	"context"
	"sync"

	"rewind/api/model"
)

type fakeObjects struct {
	mu      sync.Mutex
	entries []model.ObjectEntry
	listErr error
	missing bool
	lists   []string
}

func (f *fakeObjects) List(ctx context.Context, bucket, prefix string) ([]model.ObjectEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, bucket+"/"+prefix)
	return f.entries, f.listErr
}

func (f *fakeObjects) ObjectURL(bucket, key string) string {
	return "https://s3.test/" + bucket + "/" + key
}

func (f *fakeObjects) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return !f.missing, nil
}

// fakeStack reports idle until an update is submitted, then walks
// statuses, repeating the last one.
type fakeStack struct {
	mu        sync.Mutex
	idle      string
	statuses  []string
	updateErr error
	updates   []model.UpdateRequest
	polls     int
}

func (f *fakeStack) UpdateStack(ctx context.Context, req model.UpdateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return f.updateErr
}

func (f *fakeStack) StackStatus(ctx context.Context, name string) (model.StackStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		idle := f.idle
		if idle == "" {
			idle = "UPDATE_COMPLETE"
		}
		return model.StackStatus{Status: idle}, nil
	}
	i := f.polls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.polls++
	return model.StackStatus{Status: f.statuses[i]}, nil
}

func files(dir string, names ...string) []model.ObjectEntry {
	out := make([]model.ObjectEntry, 0, len(names))
	for _, n := range names {
		out = append(out, model.ObjectEntry{Key: "serverless/billing/dev/" + dir + "/" + n, Size: 10})
	}
	return out
}
