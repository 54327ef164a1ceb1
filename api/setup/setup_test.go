package setup

import (
	"context"
	"testing"
	"time"

	"rewind/api/config"
	"rewind/api/model"
	"rewind/api/rollback"
	"rewind/api/saga"
)

func baseConfig(provider string) *config.Config {
	return &config.Config{
		Provider:       provider,
		Region:         "us-east-1",
		S3Endpoint:     "localhost:9000",
		S3AccessKey:    "minio",
		S3SecretKey:    "minio123",
		NomadAddr:      "http://127.0.0.1:4646",
		PollInterval:   2 * time.Second,
		MonitorTimeout: time.Minute,
		PollRetries:    1,
	}
}

func TestBuildNomad(t *testing.T) {
	project := &model.Project{Service: "billing", DeploymentBucket: "artifacts", Nomad: &model.NomadSpec{Job: "billing-api"}}
	extra := saga.NewMemoryStore(1)

	c, err := Build(context.Background(), baseConfig(config.ProviderNomad), project, "test", nil, nil, extra)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if project.StackName != "billing-api" {
		t.Errorf("stack name = %q, want nomad job", project.StackName)
	}
	if b, ok := c.Rollback.Buckets.(rollback.StaticBucket); !ok || b != "artifacts" {
		t.Errorf("buckets = %#v", c.Rollback.Buckets)
	}
	if c.Rollback.Monitor.Interval != 2*time.Second || c.Rollback.Monitor.Timeout != time.Minute {
		t.Errorf("monitor = %+v", c.Rollback.Monitor)
	}
	if _, ok := c.Checks["nomad"]; !ok {
		t.Error("nomad health check missing")
	}
	if sagas, ok := c.Rollback.Sagas.(saga.Multi); !ok || len(sagas) != 3 {
		t.Errorf("sagas = %#v", c.Rollback.Sagas)
	}
}

func TestBuildCloudFormation(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/none")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/none")

	c, err := Build(context.Background(), baseConfig(config.ProviderCloudFormation), nil, "test", nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := c.Rollback.Buckets.(rollback.BucketFunc); !ok {
		t.Errorf("buckets = %#v, want stack resource lookup", c.Rollback.Buckets)
	}
}

func TestBuildUnknownProvider(t *testing.T) {
	if _, err := Build(context.Background(), baseConfig("heroku"), nil, "test", nil, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
