package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"rewind/api/model"
	"rewind/api/retry"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Retry     retry.Policy
}

// Client is the artifact store. Listings it returns are always complete.
type Client struct {
	mc     *minio.Client
	config Config
	log    *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	// One attempt per request; cfg.Retry is the only retry loop.
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:      credentialsFor(cfg),
		Secure:     cfg.UseSSL,
		Region:     cfg.Region,
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &Client{mc: mc, config: cfg, log: log.Named("storage")}, nil
}

// credentialsFor uses static keys when configured and falls back to the
// usual AWS environment, shared file and instance role chain.
func credentialsFor(cfg Config) *credentials.Credentials {
	if cfg.AccessKey != "" {
		return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
	})
}

// List returns every object under prefix, draining all pages. A failed
// listing is restarted from scratch so callers never see a partial one.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]model.ObjectEntry, error) {
	var out []model.ObjectEntry
	err := retry.Do(ctx, c.config.Retry, func() error {
		entries, err := c.listOnce(ctx, bucket, prefix)
		if err != nil {
			if permanent(err) {
				return retry.Permanent(err)
			}
			return err
		}
		out = entries
		return nil
	}, func(err error, wait time.Duration) {
		c.log.Warn("listing failed, retrying",
			zap.String("bucket", bucket),
			zap.String("prefix", prefix),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	c.log.Debug("listed objects", zap.String("bucket", bucket), zap.String("prefix", prefix), zap.Int("count", len(out)))
	return out, nil
}

func (c *Client) listOnce(ctx context.Context, bucket, prefix string) ([]model.ObjectEntry, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var entries []model.ObjectEntry
	for obj := range c.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		entries = append(entries, model.ObjectEntry{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return entries, nil
}

// permanent reports listing errors that no retry will fix.
func permanent(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
		return true
	}
	return false
}

func (c *Client) BucketExists(ctx context.Context, name string) (bool, error) {
	return c.mc.BucketExists(ctx, name)
}

// Read returns the full content of one object.
func (c *Client) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.mc.ListBuckets(ctx)
	return err
}

// ObjectURL returns the path-style URL of an object, the form stack
// providers accept as a template location.
func (c *Client) ObjectURL(bucket, key string) string {
	return ObjectURL(c.config.Endpoint, c.config.UseSSL, bucket, key)
}

func ObjectURL(endpoint string, useSSL bool, bucket, key string) string {
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   strings.TrimRight(endpoint, "/"),
		Path:   "/" + bucket + "/" + strings.TrimLeft(key, "/"),
	}
	return u.String()
}

func (c *Client) Endpoint() string {
	return c.config.Endpoint
}
