package rollback

import (
	"context"
	"errors"
)

// StaticBucket resolves every stack to one configured bucket.
type StaticBucket string

func (b StaticBucket) ResolveBucket(ctx context.Context, stackName string) (string, error) {
	if b == "" {
		return "", errors.New("no deployment bucket configured")
	}
	return string(b), nil
}

// BucketFunc adapts a lookup such as a stack resource query.
type BucketFunc func(ctx context.Context, stackName string) (string, error)

func (f BucketFunc) ResolveBucket(ctx context.Context, stackName string) (string, error) {
	return f(ctx, stackName)
}
