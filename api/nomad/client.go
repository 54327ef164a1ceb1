// Package nomad is the stack provider backed by a Nomad cluster. A stack
// is a Nomad job and a deployment template is its JSON or HCL job spec.
package nomad

import (
	"context"
	"fmt"
	"sync"

	nomadapi "github.com/hashicorp/nomad/api"
	"go.uber.org/zap"
)

// TemplateReader fetches a job template from the artifact store.
type TemplateReader interface {
	Read(ctx context.Context, bucket, key string) ([]byte, error)
}

type Client struct {
	api       *nomadapi.Client
	templates TemplateReader
	namespace string
	log       *zap.Logger

	mu         sync.Mutex
	registered map[string]uint64 // job ID -> modify index of our last register
}

func NewClient(addr, namespace string, templates TemplateReader, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := nomadapi.DefaultConfig()
	cfg.Address = addr
	if namespace != "" {
		cfg.Namespace = namespace
	}

	client, err := nomadapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("nomad client: %w", err)
	}
	return &Client{
		api:        client,
		templates:  templates,
		namespace:  namespace,
		log:        log.Named("nomad"),
		registered: make(map[string]uint64),
	}, nil
}

// Healthy checks connectivity to Nomad.
func (c *Client) Healthy() error {
	_, err := c.api.Agent().NodeName()
	return err
}
