package cmd

import (
	"context"
	"time"

	"rewind/api/model"
	"rewind/api/saga"
	"rewind/api/setup"
	"rewind/cli/api"
)

// runFunc performs one rollback, reporting journal events through emit.
type runFunc func(ctx context.Context, timestamp string, emit func(saga.Event)) (*model.StackOperation, error)

// emitStore is a saga store that hands each event to a callback.
type emitStore func(saga.Event)

func (f emitStore) Append(ctx context.Context, evt *saga.Event) error {
	f(*evt)
	return nil
}

func runnerFor() runFunc {
	if client != nil {
		return runRemote
	}
	return runLocal
}

// runLocal drives the stack provider from this process.
func runLocal(ctx context.Context, timestamp string, emit func(saga.Event)) (*model.StackOperation, error) {
	c, err := setup.Build(ctx, cfg, project, "cli", logger, nil, emitStore(emit))
	if err != nil {
		return nil, err
	}
	req, err := request(timestamp)
	if err != nil {
		return nil, err
	}
	return c.Rollback.Run(ctx, req)
}

// remotePoll is how often the API server's journal is read back.
var remotePoll = time.Second

// runRemote asks an API server to roll back and follows its journal until
// the rollback finishes. Cancelling ctx stops following only.
func runRemote(ctx context.Context, timestamp string, emit func(saga.Event)) (*model.StackOperation, error) {
	svc, err := serviceName()
	if err != nil {
		return nil, err
	}
	accepted, err := client.Rollback(svc, cfg.Stage, cfg.Region, timestamp, intervalFlag, timeoutFlag)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(remotePoll)
	defer ticker.Stop()
	seen := 0
	for {
		events, err := client.SagaEvents(accepted.SagaID)
		if err != nil {
			return nil, err
		}
		for _, e := range events[min(seen, len(events)):] {
			emit(e)
			switch e.Action {
			case "rollback.complete":
				return &model.StackOperation{
					StackName:         accepted.StackName,
					TemplateURL:       accepted.TemplateURL,
					ArtifactDirectory: accepted.Directory,
					State:             model.StateSucceeded,
					Terminal:          true,
				}, nil
			case "rollback.failed":
				return nil, &api.Error{Message: e.Message, Kind: model.ErrorKind(e.Metadata["kind"])}
			}
		}
		seen = len(events)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
