package validate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"rewind/api/model"
)

var (
	validService = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)
	validStage   = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	awsRegion    = regexp.MustCompile(`^[a-z]{2}(-gov|-iso[a-z]*)?-[a-z]+-\d+$`)
)

// Validator checks a rollback request before anything remote is touched.
type Validator struct {
	// AWSRegions warns on regions that do not look like AWS region codes.
	AWSRegions bool
	// Regions, when set, lists the only regions the configured provider serves.
	Regions []string
	Now     func() time.Time
}

func (v *Validator) Validate(ctx context.Context, req model.RollbackRequest) *model.ValidationResult {
	result := &model.ValidationResult{Subject: req.Service}
	checkService(req, result)
	checkStage(req, result)
	v.checkRegion(req, result)
	v.checkTimestamp(req, result)
	checkPolling(req, result)
	return result
}

func checkService(req model.RollbackRequest, r *model.ValidationResult) {
	if req.Service == "" {
		r.Add(model.ValidationFinding{
			Check:    "service.required",
			Severity: model.SeverityError,
			Message:  "service name is required",
			Field:    "service",
		})
	} else if !validService.MatchString(req.Service) {
		r.Add(model.ValidationFinding{
			Check:    "service.format",
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("service name %q must match [a-zA-Z][a-zA-Z0-9-]*", req.Service),
			Field:    "service",
		})
	}
}

func checkStage(req model.RollbackRequest, r *model.ValidationResult) {
	if req.Stage == "" {
		r.Add(model.ValidationFinding{
			Check:    "stage.required",
			Severity: model.SeverityError,
			Message:  "stage is required",
			Field:    "stage",
		})
	} else if !validStage.MatchString(req.Stage) {
		r.Add(model.ValidationFinding{
			Check:    "stage.format",
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("stage %q may only contain letters, digits and dashes", req.Stage),
			Field:    "stage",
		})
	}
}

func (v *Validator) checkRegion(req model.RollbackRequest, r *model.ValidationResult) {
	if req.Region == "" {
		r.Add(model.ValidationFinding{
			Check:    "region.required",
			Severity: model.SeverityError,
			Message:  "region is required",
			Field:    "region",
		})
		return
	}
	if len(v.Regions) > 0 && !contains(v.Regions, req.Region) {
		r.Add(model.ValidationFinding{
			Check:    "region.unsupported",
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("region %q is not served here (configured: %s)", req.Region, strings.Join(v.Regions, ", ")),
			Field:    "region",
		})
		return
	}
	if v.AWSRegions && !awsRegion.MatchString(req.Region) {
		r.Add(model.ValidationFinding{
			Check:    "region.format",
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("region %q does not look like an AWS region", req.Region),
			Field:    "region",
		})
	}
}

func (v *Validator) checkTimestamp(req model.RollbackRequest, r *model.ValidationResult) {
	if req.Timestamp == "" {
		r.Add(model.ValidationFinding{
			Check:    "timestamp.required",
			Severity: model.SeverityError,
			Message:  "timestamp is required",
			Field:    "timestamp",
		})
		return
	}
	ts, err := model.ParseTimestamp(req.Timestamp)
	if err != nil {
		r.Add(model.ValidationFinding{
			Check:    "timestamp.format",
			Severity: model.SeverityError,
			Message:  err.Error(),
			Field:    "timestamp",
		})
		return
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	if ts.After(now()) {
		r.Add(model.ValidationFinding{
			Check:    "timestamp.future",
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("timestamp %s is in the future", ts.Format(time.RFC3339)),
			Field:    "timestamp",
		})
	}
}

func checkPolling(req model.RollbackRequest, r *model.ValidationResult) {
	if req.PollInterval < 0 {
		r.Add(model.ValidationFinding{
			Check:    "poll.interval",
			Severity: model.SeverityError,
			Message:  "poll interval must be positive",
			Field:    "pollInterval",
		})
	}
	if req.MonitorTimeout < 0 {
		r.Add(model.ValidationFinding{
			Check:    "monitor.timeout",
			Severity: model.SeverityError,
			Message:  "monitor timeout must be positive",
			Field:    "monitorTimeout",
		})
	}
	if req.PollInterval > 0 && req.MonitorTimeout > 0 && req.MonitorTimeout < req.PollInterval {
		r.Add(model.ValidationFinding{
			Check:    "monitor.timeout.short",
			Severity: model.SeverityWarning,
			Message:  "monitor timeout is shorter than the poll interval; only one poll will run",
			Field:    "monitorTimeout",
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
