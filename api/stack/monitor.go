package stack

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rewind/api/model"
	"rewind/api/retry"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 30 * time.Minute
)

// Monitor polls a stack at a fixed interval until it reaches a terminal
// state or the overall timeout passes. There is no push channel.
type Monitor struct {
	Provider   Provider
	Classifier Classifier
	Interval   time.Duration
	Timeout    time.Duration
	Retry      retry.Policy // per-poll transport retries
	Log        *zap.Logger

	// OnPoll, if set, sees the operation after every classified poll.
	OnPoll func(op *model.StackOperation)
	// OnPollError sees every failed status read, including retried ones.
	OnPollError func(err error)
}

// Watch drives op to completion. SUCCEEDED returns nil; FAILED and
// ROLLED_BACK return distinct errors. Cancelling ctx stops observing
// without touching the provider-side operation.
func (m *Monitor) Watch(ctx context.Context, op *model.StackOperation) error {
	if op.Terminal {
		return m.outcome(op)
	}

	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	classifier := m.Classifier
	if classifier == nil {
		classifier = ClassifierFor(m.Provider)
	}
	log := m.logger().With(zap.String("stack", op.StackName), zap.String("operation", op.ID))

	watchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	wait := time.NewTimer(0)
	defer wait.Stop()

	for {
		select {
		case <-watchCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return m.timedOut(op, timeout)
		case <-wait.C:
		}

		st, err := m.poll(watchCtx, op.StackName, log)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case watchCtx.Err() != nil:
				return m.timedOut(op, timeout)
			}
			return &model.Error{Kind: model.KindMonitorUnreachable, Stack: op.StackName, Status: op.Status, Err: err}
		}

		prev := op.Status
		op.Observe(st, classifier.Classify(st))
		if op.Status != prev {
			log.Info("stack status", zap.String("status", op.Status), zap.String("state", string(op.State)))
		}
		if m.OnPoll != nil {
			m.OnPoll(op)
		}
		if op.Terminal {
			return m.outcome(op)
		}

		wait.Reset(interval)
	}
}

func (m *Monitor) poll(ctx context.Context, stackName string, log *zap.Logger) (model.StackStatus, error) {
	var st model.StackStatus
	err := retry.Do(ctx, m.Retry, func() error {
		var err error
		st, err = m.Provider.StackStatus(ctx, stackName)
		if err != nil && m.OnPollError != nil {
			m.OnPollError(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		log.Warn("status poll failed, retrying", zap.Duration("wait", wait), zap.Error(err))
	})
	return st, err
}

func (m *Monitor) timedOut(op *model.StackOperation, timeout time.Duration) error {
	status := op.Status
	if status == "" {
		status = string(op.State)
	}
	return &model.Error{
		Kind:   model.KindMonitorTimeout,
		Stack:  op.StackName,
		Status: status,
		Reason: "no terminal status after " + timeout.String(),
	}
}

func (m *Monitor) outcome(op *model.StackOperation) error {
	switch op.State {
	case model.StateSucceeded:
		return nil
	case model.StateRolledBack:
		return &model.Error{Kind: model.KindRemoteAutoRolledBack, Stack: op.StackName, Status: op.Status, Reason: op.Reason}
	default:
		return &model.Error{Kind: model.KindRemoteUpdateFailed, Stack: op.StackName, Status: op.Status, Reason: op.Reason}
	}
}

func (m *Monitor) logger() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}
