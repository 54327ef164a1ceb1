// Package setup wires configuration into a ready rollback orchestrator for
// both the API server and the CLI.
package setup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rewind/api/cloudformation"
	"rewind/api/config"
	"rewind/api/metrics"
	"rewind/api/model"
	"rewind/api/nomad"
	"rewind/api/rollback"
	"rewind/api/saga"
	"rewind/api/stack"
	"rewind/api/storage"
	"rewind/api/validate"
)

type Components struct {
	Rollback *rollback.Rollback
	Storage  *storage.Client
	Events   *saga.MemoryStore
	Checks   map[string]func(ctx context.Context) error
}

// Build constructs the provider named by cfg.Provider and everything the
// orchestrator needs around it. extra stores receive every saga event.
func Build(ctx context.Context, cfg *config.Config, project *model.Project, source string, log *zap.Logger, m *metrics.Metrics, extra ...saga.Store) (*Components, error) {
	if log == nil {
		log = zap.NewNop()
	}
	policy := cfg.Retry()

	store, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.Region,
		UseSSL:    cfg.S3UseSSL,
		Retry:     policy,
	}, log)
	if err != nil {
		return nil, err
	}

	c := &Components{
		Storage: store,
		Events:  saga.NewMemoryStore(200),
		Checks: map[string]func(ctx context.Context) error{
			"storage": store.Healthy,
		},
	}

	var (
		provider stack.Provider
		buckets  rollback.BucketResolver
		v        = &validate.Validator{}
	)
	switch cfg.Provider {
	case config.ProviderCloudFormation:
		cfn, err := cloudformation.NewClient(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		provider = cfn
		buckets = rollback.BucketFunc(cfn.DeploymentBucket)
		v.AWSRegions = true
		v.Regions = []string{cfg.Region}
	case config.ProviderNomad:
		namespace := cfg.NomadNamespace
		if project != nil && project.Nomad != nil {
			if project.Nomad.Namespace != "" {
				namespace = project.Nomad.Namespace
			}
			if project.StackName == "" && project.Nomad.Job != "" {
				project.StackName = project.Nomad.Job
			}
		}
		nc, err := nomad.NewClient(cfg.NomadAddr, namespace, store, log)
		if err != nil {
			return nil, err
		}
		provider = nc
		c.Checks["nomad"] = func(ctx context.Context) error { return nc.Healthy() }
		bucket := cfg.Bucket
		if bucket == "" && project != nil {
			bucket = project.DeploymentBucket
		}
		buckets = rollback.StaticBucket(bucket)
	default:
		return nil, fmt.Errorf("unknown provider %q (want %s or %s)", cfg.Provider, config.ProviderCloudFormation, config.ProviderNomad)
	}

	sagas := saga.Multi{c.Events, &saga.LogStore{Log: log.Named("saga")}}
	sagas = append(sagas, extra...)

	c.Rollback = &rollback.Rollback{
		Validator: v,
		Buckets:   buckets,
		Objects:   store,
		Updater:   &stack.Updater{Provider: provider, Retry: policy, Log: log.Named("updater")},
		Monitor: &stack.Monitor{
			Provider: provider,
			Interval: cfg.PollInterval,
			Timeout:  cfg.MonitorTimeout,
			Retry:    policy,
			Log:      log.Named("monitor"),
		},
		Sagas:   sagas,
		Source:  source,
		Log:     log.Named("rollback"),
		Metrics: m,
	}
	return c, nil
}
