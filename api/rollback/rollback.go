package rollback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rewind/api/deployment"
	"rewind/api/metrics"
	"rewind/api/model"
	"rewind/api/saga"
	"rewind/api/stack"
)

type Validator interface {
	Validate(ctx context.Context, req model.RollbackRequest) *model.ValidationResult
}

// BucketResolver finds the bucket holding a stack's deployment artifacts.
type BucketResolver interface {
	ResolveBucket(ctx context.Context, stackName string) (string, error)
}

// Objects lists artifact keys and turns a key into a URL the stack
// provider can fetch.
type Objects interface {
	List(ctx context.Context, bucket, prefix string) ([]model.ObjectEntry, error)
	ObjectURL(bucket, key string) string
}

// BucketChecker is implemented by Objects stores that can confirm a
// bucket exists before listing it.
type BucketChecker interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// Rollback returns a stage to a recorded deployment. Collaborators are
// fixed at construction; one Rollback serves any number of requests.
type Rollback struct {
	Validator Validator
	Buckets   BucketResolver
	Objects   Objects
	Updater   *stack.Updater
	Monitor   *stack.Monitor
	Sagas     saga.Store
	Source    string // "cli" or "api"
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

// Plan is the outcome of Prepare: everything needed to submit the update.
// Nothing remote has been changed when a Plan exists.
type Plan struct {
	Request           model.RollbackRequest
	At                time.Time
	Saga              *saga.Saga
	Bucket            string
	Deployment        model.DeploymentRecord
	ArtifactDirectory string
	Update            model.UpdateRequest
	started           time.Time
}

// SagaID identifies the event journal of this rollback.
func (p *Plan) SagaID() string {
	if p == nil || p.Saga == nil {
		return ""
	}
	return p.Saga.ID
}

// Run prepares and executes a rollback, blocking until the stack settles.
func (r *Rollback) Run(ctx context.Context, req model.RollbackRequest) (*model.StackOperation, error) {
	plan, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, plan)
}

// Prepare validates the request and locates the deployment to restore.
// Every failure here happens before any mutating call.
func (r *Rollback) Prepare(ctx context.Context, req model.RollbackRequest) (*Plan, error) {
	plan := &Plan{
		Request: req,
		Saga:    saga.New(r.Sagas, req.Service, req.Stage, r.source()),
		started: time.Now(),
	}
	if req.StackName == "" {
		plan.Request.StackName = req.Service + "-" + req.Stage
	}
	log := r.logger().With(zap.String("service", req.Service), zap.String("stage", req.Stage), zap.String("saga", plan.Saga.ID))

	plan.Saga.Log(ctx, "rollback.start", fmt.Sprintf("rolling back %s (%s, %s) to %s", req.Service, req.Stage, req.Region, req.Timestamp), map[string]string{
		"region":    req.Region,
		"timestamp": req.Timestamp,
	})

	steps := []step{
		{name: "validate", fn: r.validate},
		{name: "bucket", fn: r.resolveBucket},
		{name: "select", fn: r.selectDeployment},
	}
	for _, s := range steps {
		if err := r.runStep(ctx, plan, s); err != nil {
			log.Info("rollback aborted before update", zap.String("step", s.name), zap.Error(err))
			r.finish(ctx, plan, err)
			return nil, err
		}
	}

	key := plan.ArtifactDirectory + "/" + model.TemplateFile
	plan.Update = model.UpdateRequest{
		StackName:   plan.Request.StackName,
		TemplateURL: r.Objects.ObjectURL(plan.Bucket, key),
		Bucket:      plan.Bucket,
		TemplateKey: key,
		Parameters:  req.Parameters,
		Tags:        req.Tags,
	}
	log.Info("deployment selected", zap.String("directory", plan.Deployment.Directory), zap.String("template", plan.Update.TemplateURL))
	return plan, nil
}

// Execute submits the update and watches it to a terminal state.
func (r *Rollback) Execute(ctx context.Context, plan *Plan) (*model.StackOperation, error) {
	var op *model.StackOperation

	err := r.runStep(ctx, plan, step{name: "update", fn: func(ctx context.Context, p *Plan) error {
		var err error
		op, err = r.Updater.Update(ctx, p.Update, p.ArtifactDirectory)
		if err != nil {
			return r.enrich(p, err)
		}
		p.Saga.Log(ctx, "stack.submitted", "update accepted for "+op.StackName, map[string]string{
			"step":      "update",
			"operation": op.ID,
			"template":  op.TemplateURL,
		})
		return nil
	}})
	if err != nil {
		r.finish(ctx, plan, err)
		return nil, err
	}

	err = r.runStep(ctx, plan, step{name: "monitor", fn: func(ctx context.Context, p *Plan) error {
		if op.NoChanges {
			p.Saga.Log(ctx, "stack.unchanged", op.StackName+" already matches the deployment", map[string]string{"step": "monitor"})
		}
		return r.enrich(p, r.monitorFor(p).Watch(ctx, op))
	}})
	r.finish(ctx, plan, err)
	return op, err
}

type step struct {
	name string
	fn   func(ctx context.Context, p *Plan) error
}

func (r *Rollback) runStep(ctx context.Context, p *Plan, s step) error {
	p.Saga.StepStart(ctx, s.name)
	start := time.Now()
	if err := s.fn(ctx, p); err != nil {
		p.Saga.StepFailed(ctx, s.name, err)
		return err
	}
	p.Saga.StepComplete(ctx, s.name, time.Since(start))
	return nil
}

func (r *Rollback) validate(ctx context.Context, p *Plan) error {
	req := p.Request
	if r.Validator != nil {
		result := r.Validator.Validate(ctx, req)
		for _, w := range result.Warnings() {
			p.Saga.Log(ctx, "validate.warning", w.Message, map[string]string{"step": "validate", "check": w.Check})
		}
		if err := result.Err(); err != nil {
			return r.enrich(p, err)
		}
	}
	at, err := model.ParseTimestamp(req.Timestamp)
	if err != nil {
		return r.enrich(p, &model.Error{
			Kind:     model.KindValidationFailed,
			Findings: []model.ValidationFinding{{Check: "timestamp.format", Severity: model.SeverityError, Message: err.Error(), Field: "timestamp"}},
		})
	}
	p.At = at
	return nil
}

func (r *Rollback) resolveBucket(ctx context.Context, p *Plan) error {
	bucket := p.Request.Bucket
	if bucket == "" {
		if r.Buckets == nil {
			return r.enrich(p, &model.Error{Kind: model.KindBucketResolutionFailed, Reason: "no bucket configured"})
		}
		var err error
		bucket, err = r.Buckets.ResolveBucket(ctx, p.Request.StackName)
		if err != nil {
			return r.enrich(p, &model.Error{Kind: model.KindBucketResolutionFailed, Err: err})
		}
		if bucket == "" {
			return r.enrich(p, &model.Error{Kind: model.KindBucketResolutionFailed, Reason: "stack has no deployment bucket"})
		}
	}
	p.Bucket = bucket

	if checker, ok := r.Objects.(BucketChecker); ok {
		exists, err := checker.BucketExists(ctx, bucket)
		switch {
		case err != nil:
			return r.enrich(p, &model.Error{Kind: model.KindBucketResolutionFailed, Err: err})
		case !exists:
			return r.enrich(p, &model.Error{Kind: model.KindBucketResolutionFailed, Reason: "bucket does not exist"})
		}
	}
	p.Saga.Log(ctx, "bucket.resolved", "using bucket "+bucket, map[string]string{"step": "bucket", "bucket": bucket})
	return nil
}

func (r *Rollback) selectDeployment(ctx context.Context, p *Plan) error {
	prefix := model.ArtifactPrefix(p.Request.Service, p.Request.Stage)
	entries, err := r.Objects.List(ctx, p.Bucket, prefix+"/")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.enrich(p, &model.Error{Kind: model.KindListingFailed, Err: err})
	}

	records := deployment.Group(entries, p.Request.Service, p.Request.Stage)
	rec, err := deployment.Select(records, p.At)
	if err != nil {
		return r.enrich(p, err)
	}
	p.Deployment = rec
	p.ArtifactDirectory = prefix + "/" + rec.Directory
	p.Saga.Log(ctx, "deployment.selected", "restoring "+rec.Directory, map[string]string{
		"step":      "select",
		"directory": rec.Directory,
		"files":     fmt.Sprint(len(rec.Files)),
	})
	return nil
}

// Deployments lists every recorded deployment for the request's stage,
// incomplete ones included, oldest first.
func (r *Rollback) Deployments(ctx context.Context, req model.RollbackRequest) ([]model.DeploymentRecord, string, error) {
	p := &Plan{Request: req}
	if p.Request.StackName == "" {
		p.Request.StackName = req.Service + "-" + req.Stage
	}
	if err := r.resolveBucket(ctx, p); err != nil {
		return nil, "", err
	}
	prefix := model.ArtifactPrefix(req.Service, req.Stage)
	entries, err := r.Objects.List(ctx, p.Bucket, prefix+"/")
	if err != nil {
		return nil, p.Bucket, r.enrich(p, &model.Error{Kind: model.KindListingFailed, Err: err})
	}
	return deployment.Group(entries, req.Service, req.Stage), p.Bucket, nil
}

func (r *Rollback) monitorFor(p *Plan) *stack.Monitor {
	m := *r.Monitor
	if p.Request.PollInterval > 0 {
		m.Interval = p.Request.PollInterval
	}
	if p.Request.MonitorTimeout > 0 {
		m.Timeout = p.Request.MonitorTimeout
	}
	onPoll := m.OnPoll
	m.OnPoll = func(op *model.StackOperation) {
		r.Metrics.Poll(string(op.State))
		p.Saga.Log(context.Background(), "stack.status", op.Status, map[string]string{
			"step":   "monitor",
			"state":  string(op.State),
			"reason": op.Reason,
			"poll":   fmt.Sprint(op.Polls),
		})
		if onPoll != nil {
			onPoll(op)
		}
	}
	onPollError := m.OnPollError
	m.OnPollError = func(err error) {
		r.Metrics.PollError(p.Request.StackName)
		if onPollError != nil {
			onPollError(err)
		}
	}
	return &m
}

// enrich fills the request context into a taxonomy error.
func (r *Rollback) enrich(p *Plan, err error) error {
	var e *model.Error
	if err == nil || !errors.As(err, &e) {
		return err
	}
	if e.Service == "" {
		e.Service = p.Request.Service
	}
	if e.Stage == "" {
		e.Stage = p.Request.Stage
	}
	if e.Region == "" {
		e.Region = p.Request.Region
	}
	if e.Stack == "" {
		e.Stack = p.Request.StackName
	}
	if e.Bucket == "" {
		e.Bucket = p.Bucket
	}
	if e.Kind == model.KindTimestampNotFound || e.Kind == model.KindValidationFailed {
		if p.Request.Timestamp != "" {
			e.Timestamp = p.Request.Timestamp
		}
	}
	return err
}

func (r *Rollback) finish(ctx context.Context, p *Plan, err error) {
	result := "success"
	if err != nil {
		if kind := model.KindOf(err); kind != "" {
			result = string(kind)
		} else {
			result = "error"
		}
	}
	r.Metrics.Rollback(p.Request.Service, p.Request.Stage, result, time.Since(p.started))
	if err != nil {
		p.Saga.Log(ctx, "rollback.failed", err.Error(), map[string]string{"kind": result})
		return
	}
	p.Saga.Log(ctx, "rollback.complete", fmt.Sprintf("%s restored to %s", p.Request.StackName, p.Deployment.Directory), map[string]string{
		"directory": p.Deployment.Directory,
	})
}

func (r *Rollback) source() string {
	if r.Source == "" {
		return "rewind"
	}
	return r.Source
}

func (r *Rollback) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
