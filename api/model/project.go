package model

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Project is the rewind.yaml description of a deployed service.
type Project struct {
	Service          string            `yaml:"service" json:"service"`
	StackName        string            `yaml:"stackName,omitempty" json:"stackName,omitempty"` // default <service>-<stage>
	DeploymentBucket string            `yaml:"deploymentBucket,omitempty" json:"deploymentBucket,omitempty"`
	Parameters       map[string]string `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Tags             map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Nomad            *NomadSpec        `yaml:"nomad,omitempty" json:"nomad,omitempty"`
}

// NomadSpec configures the nomad stack provider.
type NomadSpec struct {
	Job       string `yaml:"job,omitempty" json:"job,omitempty"` // default: stack name
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// Stack returns the stack name for a stage.
func (p *Project) Stack(stage string) string {
	if p.StackName != "" {
		return p.StackName
	}
	return p.Service + "-" + stage
}

// StackTags returns the project tags plus the STAGE tag.
func (p *Project) StackTags(stage string) map[string]string {
	tags := map[string]string{"STAGE": stage}
	for k, v := range p.Tags {
		tags[k] = v
	}
	return tags
}

func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Parameters == nil {
		p.Parameters = map[string]string{}
	}
	return &p, nil
}
