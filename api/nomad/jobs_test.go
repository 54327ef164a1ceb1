package nomad

import (
	"testing"

	"rewind/api/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status string
		reason string
		want   model.StackState
	}{
		{"deployment:successful", "Deployment completed successfully", model.StateSucceeded},
		{"deployment:running", "Deployment is running", model.StateInProgress},
		{"deployment:paused", "", model.StateInProgress},
		{"deployment:failed", "Failed due to unhealthy allocations - rolling back to job version 3", model.StateRolledBack},
		{"deployment:failed", "Failed due to progress deadline", model.StateFailed},
		{"deployment:cancelled", "Cancelled because job is stopped", model.StateFailed},
		{"job:running", "", model.StateSucceeded},
		{"job:pending", "", model.StateInProgress},
		{"job:dead", "", model.StateFailed},
		{"deployment:weird", "", model.StateUnknown},
		{"UPDATE_COMPLETE", "", model.StateUnknown},
	}
	for _, tt := range tests {
		got := Classify(model.StackStatus{Status: tt.status, Reason: tt.reason})
		if got != tt.want {
			t.Errorf("Classify(%q, %q) = %s, want %s", tt.status, tt.reason, got, tt.want)
		}
	}
}

func TestDecodeJSONJob(t *testing.T) {
	wrapped := []byte(`{"Job": {"ID": "svc-dev", "Name": "svc-dev", "Type": "service"}}`)
	job, ok := decodeJSONJob(wrapped)
	if !ok || job.ID == nil || *job.ID != "svc-dev" {
		t.Fatalf("wrapped: job = %+v, ok = %v", job, ok)
	}

	bare := []byte(`  {"ID": "svc-dev", "Type": "service"}`)
	job, ok = decodeJSONJob(bare)
	if !ok || job.ID == nil || *job.ID != "svc-dev" {
		t.Fatalf("bare: job = %+v, ok = %v", job, ok)
	}

	if _, ok := decodeJSONJob([]byte(`job "svc-dev" { type = "service" }`)); ok {
		t.Error("HCL must not decode as JSON")
	}
}
