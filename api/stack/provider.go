// Package stack submits stack updates and follows them to a terminal state.
package stack

import (
	"context"
	"errors"
	"strings"

	"rewind/api/model"
)

// ErrNoChanges is returned by providers when the stack already matches
// the submitted template.
var ErrNoChanges = errors.New("no updates are to be performed")

// Provider is the stack-management service.
type Provider interface {
	UpdateStack(ctx context.Context, req model.UpdateRequest) error
	StackStatus(ctx context.Context, stackName string) (model.StackStatus, error)
}

// Classifier maps a provider status to a stack state.
type Classifier interface {
	Classify(st model.StackStatus) model.StackState
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(st model.StackStatus) model.StackState

func (f ClassifierFunc) Classify(st model.StackStatus) model.StackState { return f(st) }

// ClassifierFor returns p's own classifier when it has one, else the
// CloudFormation status classifier.
func ClassifierFor(p Provider) Classifier {
	if c, ok := p.(Classifier); ok {
		return c
	}
	return ClassifierFunc(ClassifyCloudFormation)
}

// ClassifyCloudFormation maps CloudFormation stack statuses.
func ClassifyCloudFormation(st model.StackStatus) model.StackState {
	s := strings.ToUpper(strings.TrimSpace(st.Status))
	switch s {
	case "UPDATE_COMPLETE", "CREATE_COMPLETE", "IMPORT_COMPLETE":
		return model.StateSucceeded
	case "UPDATE_ROLLBACK_COMPLETE", "ROLLBACK_COMPLETE", "IMPORT_ROLLBACK_COMPLETE":
		return model.StateRolledBack
	case "DELETE_COMPLETE":
		return model.StateFailed
	case "IN_PROGRESS":
		return model.StateInProgress
	}
	switch {
	case strings.HasSuffix(s, "_IN_PROGRESS"):
		return model.StateInProgress
	case strings.HasSuffix(s, "_FAILED"):
		return model.StateFailed
	}
	return model.StateUnknown
}
