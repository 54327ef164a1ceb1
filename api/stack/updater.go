package stack

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rewind/api/model"
	"rewind/api/retry"
)

// Updater submits a stack update and returns as soon as the provider
// accepts it.
type Updater struct {
	Provider   Provider
	Classifier Classifier
	Retry      retry.Policy // applies to the busy check only, never to the submit
	Log        *zap.Logger
}

// Update checks that the stack is not mid-operation, then submits req.
// A stack already matching the template yields a terminal SUCCEEDED
// operation that needs no monitoring.
func (u *Updater) Update(ctx context.Context, req model.UpdateRequest, artifactDir string) (*model.StackOperation, error) {
	log := u.logger().With(zap.String("stack", req.StackName))
	classifier := u.Classifier
	if classifier == nil {
		classifier = ClassifierFor(u.Provider)
	}

	if err := u.checkIdle(ctx, req.StackName, classifier); err != nil {
		return nil, err
	}

	op := &model.StackOperation{
		ID:                uuid.New().String(),
		StackName:         req.StackName,
		TemplateURL:       req.TemplateURL,
		ArtifactDirectory: artifactDir,
		StartedAt:         time.Now(),
		State:             model.StateInProgress,
	}

	err := u.Provider.UpdateStack(ctx, req)
	switch {
	case errors.Is(err, ErrNoChanges):
		log.Info("stack already matches target template")
		op.State = model.StateSucceeded
		op.Terminal = true
		op.NoChanges = true
		return op, nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &model.Error{Kind: model.KindUpdateRejected, Stack: req.StackName, Err: err}
	}

	log.Info("update accepted", zap.String("operation", op.ID), zap.String("template", req.TemplateURL))
	return op, nil
}

// checkIdle rejects the update when another operation is still converging.
// Providers differ in whether they serialize overlapping updates, so the
// check is made here.
func (u *Updater) checkIdle(ctx context.Context, stackName string, c Classifier) error {
	var st model.StackStatus
	err := retry.Do(ctx, u.Retry, func() error {
		var err error
		st, err = u.Provider.StackStatus(ctx, stackName)
		return err
	}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &model.Error{Kind: model.KindUpdateRejected, Stack: stackName, Reason: "could not read current stack status", Err: err}
	}
	if state := c.Classify(st); state == model.StateInProgress {
		return &model.Error{Kind: model.KindUpdateRejected, Stack: stackName, Status: st.Status, Reason: "stack busy with another operation (" + st.Status + ")"}
	}
	return nil
}

func (u *Updater) logger() *zap.Logger {
	if u.Log == nil {
		return zap.NewNop()
	}
	return u.Log
}
