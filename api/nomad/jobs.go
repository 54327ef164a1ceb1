package nomad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	nomadapi "github.com/hashicorp/nomad/api"
	"go.uber.org/zap"

	"rewind/api/model"
	"rewind/api/stack"
)

// UpdateStack registers the job template stored at req.TemplateKey.
// A plan with no differences yields stack.ErrNoChanges.
func (c *Client) UpdateStack(ctx context.Context, req model.UpdateRequest) error {
	data, err := c.templates.Read(ctx, req.Bucket, req.TemplateKey)
	if err != nil {
		return fmt.Errorf("read job template: %w", err)
	}
	job, err := c.decodeJob(ctx, data)
	if err != nil {
		return err
	}
	if job.ID == nil || *job.ID == "" {
		job.ID = &req.StackName
	}
	if *job.ID != req.StackName {
		return fmt.Errorf("job template is for %s, not %s", *job.ID, req.StackName)
	}
	if job.Meta == nil {
		job.Meta = map[string]string{}
	}
	for k, v := range req.Tags {
		job.Meta[k] = v
	}

	wo := (&nomadapi.WriteOptions{}).WithContext(ctx)
	plan, _, err := c.api.Jobs().Plan(job, true, wo)
	switch {
	case err != nil:
		c.log.Warn("job plan failed, registering without a diff", zap.String("job", req.StackName), zap.Error(err))
	case plan.Diff != nil && plan.Diff.Type == "None":
		return stack.ErrNoChanges
	}

	resp, _, err := c.api.Jobs().Register(job, wo)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	c.mu.Lock()
	c.registered[req.StackName] = resp.JobModifyIndex
	c.mu.Unlock()
	return nil
}

// decodeJob accepts the API JSON form, with or without the {"Job": ...}
// envelope, and falls back to server-side HCL parsing.
func (c *Client) decodeJob(ctx context.Context, data []byte) (*nomadapi.Job, error) {
	if job, ok := decodeJSONJob(data); ok {
		return job, nil
	}
	job, err := c.api.Jobs().ParseHCLOpts(&nomadapi.JobsParseRequest{
		JobHCL:       string(data),
		Canonicalize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("parse job template: %w", err)
	}
	return job, nil
}

func decodeJSONJob(data []byte) (*nomadapi.Job, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var envelope struct {
		Job *nomadapi.Job `json:"Job"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Job != nil {
		return envelope.Job, true
	}
	var job nomadapi.Job
	if err := json.Unmarshal(trimmed, &job); err != nil {
		return nil, false
	}
	return &job, true
}

// StackStatus reports the job's latest deployment, or the job status for
// jobs that do not use deployments.
func (c *Client) StackStatus(ctx context.Context, jobID string) (model.StackStatus, error) {
	q := (&nomadapi.QueryOptions{}).WithContext(ctx)
	dep, _, err := c.api.Jobs().LatestDeployment(jobID, q)
	if err != nil {
		return model.StackStatus{}, fmt.Errorf("latest deployment %s: %w", jobID, err)
	}
	c.mu.Lock()
	since := c.registered[jobID]
	c.mu.Unlock()
	if dep != nil {
		// The previous deployment is still reported until the scheduler
		// creates one for the new job version.
		if dep.JobModifyIndex < since {
			return model.StackStatus{Status: "deployment:pending", Reason: "waiting for new deployment", LastUpdatedAt: time.Now()}, nil
		}
		return model.StackStatus{
			Status:        "deployment:" + dep.Status,
			Reason:        dep.StatusDescription,
			LastUpdatedAt: time.Now(),
		}, nil
	}

	job, _, err := c.api.Jobs().Info(jobID, q)
	if err != nil {
		return model.StackStatus{}, fmt.Errorf("job info %s: %w", jobID, err)
	}
	// Without deployments the job status describes whatever version is
	// placed, so it only counts once the job reflects our register.
	if since > 0 && (job.JobModifyIndex == nil || *job.JobModifyIndex < since) {
		return model.StackStatus{Status: "job:pending", Reason: "waiting for job version", LastUpdatedAt: time.Now()}, nil
	}
	status := "unknown"
	if job.Status != nil {
		status = *job.Status
	}
	return model.StackStatus{Status: "job:" + status, LastUpdatedAt: time.Now()}, nil
}

// Classify maps deployment and job statuses. A failed deployment whose
// description announces a revert counts as rolled back.
func (c *Client) Classify(st model.StackStatus) model.StackState {
	return Classify(st)
}

func Classify(st model.StackStatus) model.StackState {
	kind, status, _ := strings.Cut(st.Status, ":")
	switch kind {
	case "deployment":
		switch status {
		case "successful":
			return model.StateSucceeded
		case "failed":
			if strings.Contains(strings.ToLower(st.Reason), "rolling back") {
				return model.StateRolledBack
			}
			return model.StateFailed
		case "cancelled":
			return model.StateFailed
		case "running", "pending", "initializing", "blocked", "unblocking", "paused":
			return model.StateInProgress
		}
	case "job":
		switch status {
		case "running":
			return model.StateSucceeded
		case "dead":
			return model.StateFailed
		case "pending":
			return model.StateInProgress
		}
	}
	return model.StateUnknown
}
