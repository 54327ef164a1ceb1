package nomad

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"rewind/api/model"
	"rewind/api/stack"
)

type templates map[string][]byte

func (t templates) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	data, ok := t[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no object %s/%s", bucket, key)
	}
	return data, nil
}

// fakeNomad serves the job endpoints used by UpdateStack and StackStatus.
type fakeNomad struct {
	plan           http.HandlerFunc
	jobModifyIndex atomic.Uint64
	registers      atomic.Int32
}

func (f *fakeNomad) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Nomad-Index", "1")
	w.Header().Set("X-Nomad-LastContact", "0")
	w.Header().Set("X-Nomad-KnownLeader", "true")
	switch r.URL.Path {
	case "/v1/job/svc-dev/plan":
		f.plan(w, r)
	case "/v1/jobs":
		f.registers.Add(1)
		fmt.Fprint(w, `{"EvalID": "eval-1", "JobModifyIndex": 42}`)
	case "/v1/job/svc-dev/deployment":
		fmt.Fprint(w, `null`)
	case "/v1/job/svc-dev":
		fmt.Fprintf(w, `{"ID": "svc-dev", "Status": "running", "JobModifyIndex": %d}`, f.jobModifyIndex.Load())
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, f *fakeNomad, log *zap.Logger) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	t.Setenv("NOMAD_NAMESPACE", "")
	t.Setenv("NOMAD_REGION", "")

	store := templates{"deploys/serverless/svc/dev/job.json": []byte(`{"Job": {"ID": "svc-dev", "Type": "service"}}`)}
	c, err := NewClient(srv.URL, "", store, log)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func updateRequest() model.UpdateRequest {
	return model.UpdateRequest{StackName: "svc-dev", Bucket: "deploys", TemplateKey: "serverless/svc/dev/job.json"}
}

func TestUpdateStackLogsFailedPlan(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := &fakeNomad{plan: func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "plan unavailable", http.StatusInternalServerError)
	}}
	c := newTestClient(t, f, zap.New(core))

	if err := c.UpdateStack(context.Background(), updateRequest()); err != nil {
		t.Fatalf("UpdateStack: %v", err)
	}
	if f.registers.Load() != 1 {
		t.Errorf("registers = %d, want 1", f.registers.Load())
	}
	if got := logs.FilterMessage("job plan failed, registering without a diff").Len(); got != 1 {
		t.Errorf("plan warnings = %d, want 1 (logs %+v)", got, logs.All())
	}
	if c.registered["svc-dev"] != 42 {
		t.Errorf("registered index = %d, want 42", c.registered["svc-dev"])
	}
}

func TestUpdateStackNoChanges(t *testing.T) {
	f := &fakeNomad{plan: func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"JobModifyIndex": 40, "Diff": {"Type": "None", "ID": "svc-dev"}}`)
	}}
	c := newTestClient(t, f, nil)

	err := c.UpdateStack(context.Background(), updateRequest())
	if !errors.Is(err, stack.ErrNoChanges) {
		t.Fatalf("err = %v, want ErrNoChanges", err)
	}
	if f.registers.Load() != 0 {
		t.Errorf("registers = %d, want 0", f.registers.Load())
	}
}

func TestStackStatusWaitsForRegisteredJobVersion(t *testing.T) {
	f := &fakeNomad{plan: func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"JobModifyIndex": 40, "Diff": {"Type": "Edited", "ID": "svc-dev"}}`)
	}}
	c := newTestClient(t, f, nil)
	ctx := context.Background()

	f.jobModifyIndex.Store(30)
	st, err := c.StackStatus(ctx, "svc-dev")
	if err != nil {
		t.Fatal(err)
	}
	if Classify(st) != model.StateSucceeded {
		t.Errorf("before any register: %+v classified %s, want SUCCEEDED", st, Classify(st))
	}

	if err := c.UpdateStack(ctx, updateRequest()); err != nil {
		t.Fatalf("UpdateStack: %v", err)
	}

	st, err = c.StackStatus(ctx, "svc-dev")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != "job:pending" || Classify(st) != model.StateInProgress {
		t.Errorf("stale job version: %+v classified %s, want IN_PROGRESS", st, Classify(st))
	}

	f.jobModifyIndex.Store(42)
	st, err = c.StackStatus(ctx, "svc-dev")
	if err != nil {
		t.Fatal(err)
	}
	if Classify(st) != model.StateSucceeded {
		t.Errorf("registered version: %+v classified %s, want SUCCEEDED", st, Classify(st))
	}
}
