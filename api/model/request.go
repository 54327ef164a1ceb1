package model

import "time"

// RollbackRequest is one caller's ask to return a stage to a deployment.
type RollbackRequest struct {
	Service        string            `json:"service"`
	Stage          string            `json:"stage"`
	Region         string            `json:"region"`
	Timestamp      string            `json:"timestamp"` // epoch millis or ISO-8601, as given
	StackName      string            `json:"stackName,omitempty"`
	Bucket         string            `json:"bucket,omitempty"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	PollInterval   time.Duration     `json:"pollInterval,omitempty"`
	MonitorTimeout time.Duration     `json:"monitorTimeout,omitempty"`
}

// RequestFor builds a request from the project description.
func (p *Project) RequestFor(stage, region, timestamp string) RollbackRequest {
	params := make(map[string]string, len(p.Parameters))
	for k, v := range p.Parameters {
		params[k] = v
	}
	return RollbackRequest{
		Service:    p.Service,
		Stage:      stage,
		Region:     region,
		Timestamp:  timestamp,
		StackName:  p.Stack(stage),
		Bucket:     p.DeploymentBucket,
		Parameters: params,
		Tags:       p.StackTags(stage),
	}
}
