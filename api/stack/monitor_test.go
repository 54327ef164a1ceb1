package stack

import (
	"context"
	"errors"
	"testing"
	"time"

	"rewind/api/model"
	"rewind/api/retry"
)

var quickRetry = retry.Policy{Retries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

// submitted returns a provider that has already accepted an update.
func submitted(statuses ...string) *fakeProvider {
	return &fakeProvider{statuses: statuses, updates: []model.UpdateRequest{{StackName: "svc-dev"}}}
}

func newOp() *model.StackOperation {
	return &model.StackOperation{ID: "op-1", StackName: "svc-dev", State: model.StateInProgress}
}

func newMonitor(p Provider) *Monitor {
	return &Monitor{Provider: p, Interval: time.Millisecond, Timeout: time.Second, Retry: quickRetry}
}

func TestWatchSucceedsAfterThreePolls(t *testing.T) {
	p := submitted("IN_PROGRESS", "IN_PROGRESS", "UPDATE_COMPLETE")
	op := newOp()

	if err := newMonitor(p).Watch(context.Background(), op); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if p.polls != 3 {
		t.Errorf("polls = %d, want 3", p.polls)
	}
	if op.Polls != 3 || op.State != model.StateSucceeded || !op.Terminal {
		t.Errorf("op = %+v", op)
	}
}

func TestWatchTimeout(t *testing.T) {
	p := submitted("UPDATE_IN_PROGRESS")
	m := newMonitor(p)
	m.Timeout = 30 * time.Millisecond

	err := m.Watch(context.Background(), newOp())
	if !errors.Is(err, model.ErrMonitorTimeout) {
		t.Fatalf("err = %v, want MonitorTimeout", err)
	}
	var me *model.Error
	if errors.As(err, &me) && me.Status != "UPDATE_IN_PROGRESS" {
		t.Errorf("Status = %q", me.Status)
	}
}

func TestWatchUnknownIsNotTerminal(t *testing.T) {
	p := submitted("REVIEW_PENDING", "SOMETHING_NEW", "UPDATE_COMPLETE")
	if err := newMonitor(p).Watch(context.Background(), newOp()); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if p.polls != 3 {
		t.Errorf("polls = %d, want 3", p.polls)
	}
}

func TestWatchUnknownForeverTimesOut(t *testing.T) {
	p := submitted("SOMETHING_NEW")
	m := newMonitor(p)
	m.Timeout = 20 * time.Millisecond
	if err := m.Watch(context.Background(), newOp()); !errors.Is(err, model.ErrMonitorTimeout) {
		t.Fatalf("err = %v, want MonitorTimeout", err)
	}
}

func TestWatchAutoRolledBack(t *testing.T) {
	p := submitted("UPDATE_IN_PROGRESS", "UPDATE_ROLLBACK_IN_PROGRESS", "UPDATE_ROLLBACK_COMPLETE")
	err := newMonitor(p).Watch(context.Background(), newOp())
	if !errors.Is(err, model.ErrRemoteAutoRolledBack) {
		t.Fatalf("err = %v, want RemoteAutoRolledBack", err)
	}
	if errors.Is(err, model.ErrRemoteUpdateFailed) {
		t.Error("auto rollback must be distinct from update failure")
	}
}

func TestWatchFailed(t *testing.T) {
	p := submitted("UPDATE_IN_PROGRESS", "UPDATE_ROLLBACK_FAILED")
	err := newMonitor(p).Watch(context.Background(), newOp())
	if !errors.Is(err, model.ErrRemoteUpdateFailed) {
		t.Fatalf("err = %v, want RemoteUpdateFailed", err)
	}
}

func TestWatchRetriesTransientErrors(t *testing.T) {
	p := submitted("UPDATE_COMPLETE")
	p.errs = []error{errors.New("dial tcp: i/o timeout"), errors.New("connection reset")}

	var seen []error
	m := newMonitor(p)
	m.OnPollError = func(err error) { seen = append(seen, err) }

	if err := m.Watch(context.Background(), newOp()); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if p.polls != 3 {
		t.Errorf("status calls = %d, want 3", p.polls)
	}
	if len(seen) != 2 {
		t.Errorf("poll errors reported = %d, want 2", len(seen))
	}
}

func TestWatchUnreachable(t *testing.T) {
	p := submitted("UPDATE_IN_PROGRESS")
	boom := errors.New("dial tcp: connection refused")
	p.errs = []error{boom, boom, boom, boom}

	err := newMonitor(p).Watch(context.Background(), newOp())
	if !errors.Is(err, model.ErrMonitorUnreachable) {
		t.Fatalf("err = %v, want MonitorUnreachable", err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected transport cause to unwrap")
	}
	if p.polls != 3 {
		t.Errorf("status calls = %d, want 3 (1 + 2 retries)", p.polls)
	}
}

func TestWatchCancelled(t *testing.T) {
	p := submitted("UPDATE_IN_PROGRESS")
	m := newMonitor(p)
	m.Interval = 5 * time.Millisecond
	m.Timeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	m.OnPoll = func(op *model.StackOperation) {
		if op.Polls == 2 {
			cancel()
		}
	}
	err := m.Watch(ctx, newOp())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(p.updates) != 1 {
		t.Errorf("cancellation must not touch the provider, updates = %d", len(p.updates))
	}
}

func TestWatchReportsEveryPoll(t *testing.T) {
	p := submitted("UPDATE_IN_PROGRESS", "UPDATE_COMPLETE_CLEANUP_IN_PROGRESS", "UPDATE_COMPLETE")
	m := newMonitor(p)
	var seen []string
	m.OnPoll = func(op *model.StackOperation) { seen = append(seen, op.Status) }

	if err := m.Watch(context.Background(), newOp()); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	want := []string{"UPDATE_IN_PROGRESS", "UPDATE_COMPLETE_CLEANUP_IN_PROGRESS", "UPDATE_COMPLETE"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestWatchTerminalOperationSkipsPolling(t *testing.T) {
	p := submitted("UPDATE_IN_PROGRESS")
	op := newOp()
	op.State = model.StateSucceeded
	op.Terminal = true

	if err := newMonitor(p).Watch(context.Background(), op); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if p.polls != 0 {
		t.Errorf("polls = %d, want 0", p.polls)
	}
}
