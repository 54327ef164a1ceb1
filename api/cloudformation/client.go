// Package cloudformation is the stack provider backed by AWS CloudFormation.
package cloudformation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cfn "github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"

	"rewind/api/model"
	"rewind/api/retry"
	"rewind/api/stack"
)

// DeploymentBucketResource is the logical id of the artifact bucket the
// deploy tooling creates inside every stack.
const DeploymentBucketResource = "ServerlessDeploymentBucket"

// API is the subset of the CloudFormation client the provider calls.
type API interface {
	UpdateStack(ctx context.Context, in *cfn.UpdateStackInput, optFns ...func(*cfn.Options)) (*cfn.UpdateStackOutput, error)
	DescribeStacks(ctx context.Context, in *cfn.DescribeStacksInput, optFns ...func(*cfn.Options)) (*cfn.DescribeStacksOutput, error)
	DescribeStackResource(ctx context.Context, in *cfn.DescribeStackResourceInput, optFns ...func(*cfn.Options)) (*cfn.DescribeStackResourceOutput, error)
}

type Client struct {
	api API
}

func NewClient(ctx context.Context, region string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return &Client{api: cfn.NewFromConfig(cfg)}, nil
}

// New wraps an existing API implementation.
func New(api API) *Client {
	return &Client{api: api}
}

var capabilities = []types.Capability{
	types.CapabilityCapabilityIam,
	types.CapabilityCapabilityNamedIam,
}

// UpdateStack submits the template at req.TemplateURL. It returns
// stack.ErrNoChanges when the stack already matches.
func (c *Client) UpdateStack(ctx context.Context, req model.UpdateRequest) error {
	in := &cfn.UpdateStackInput{
		StackName:    aws.String(req.StackName),
		TemplateURL:  aws.String(req.TemplateURL),
		Capabilities: capabilities,
		Parameters:   parameters(req.Parameters),
		Tags:         tags(req.Tags),
	}
	if _, err := c.api.UpdateStack(ctx, in); err != nil {
		if noChanges(err) {
			return stack.ErrNoChanges
		}
		return fmt.Errorf("update stack %s: %w", req.StackName, err)
	}
	return nil
}

func (c *Client) StackStatus(ctx context.Context, stackName string) (model.StackStatus, error) {
	out, err := c.api.DescribeStacks(ctx, &cfn.DescribeStacksInput{StackName: aws.String(stackName)})
	if err != nil {
		if missing(err) {
			return model.StackStatus{}, retry.Permanent(fmt.Errorf("describe stack %s: %w", stackName, err))
		}
		return model.StackStatus{}, fmt.Errorf("describe stack %s: %w", stackName, err)
	}
	if len(out.Stacks) == 0 {
		return model.StackStatus{}, retry.Permanent(fmt.Errorf("stack %s not found", stackName))
	}
	s := out.Stacks[0]
	st := model.StackStatus{
		Status: string(s.StackStatus),
		Reason: aws.ToString(s.StackStatusReason),
	}
	switch {
	case s.LastUpdatedTime != nil:
		st.LastUpdatedAt = *s.LastUpdatedTime
	case s.CreationTime != nil:
		st.LastUpdatedAt = *s.CreationTime
	default:
		st.LastUpdatedAt = time.Now()
	}
	return st, nil
}

// Classify maps CloudFormation statuses.
func (c *Client) Classify(st model.StackStatus) model.StackState {
	return stack.ClassifyCloudFormation(st)
}

// DeploymentBucket returns the physical name of the stack's artifact bucket.
func (c *Client) DeploymentBucket(ctx context.Context, stackName string) (string, error) {
	out, err := c.api.DescribeStackResource(ctx, &cfn.DescribeStackResourceInput{
		StackName:         aws.String(stackName),
		LogicalResourceId: aws.String(DeploymentBucketResource),
	})
	if err != nil {
		return "", fmt.Errorf("describe %s of %s: %w", DeploymentBucketResource, stackName, err)
	}
	if out.StackResourceDetail == nil || aws.ToString(out.StackResourceDetail.PhysicalResourceId) == "" {
		return "", fmt.Errorf("stack %s has no %s", stackName, DeploymentBucketResource)
	}
	return aws.ToString(out.StackResourceDetail.PhysicalResourceId), nil
}

func parameters(m map[string]string) []types.Parameter {
	keys := sortedKeys(m)
	out := make([]types.Parameter, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Parameter{ParameterKey: aws.String(k), ParameterValue: aws.String(m[k])})
	}
	return out
}

func tags(m map[string]string) []types.Tag {
	keys := sortedKeys(m)
	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(m[k])})
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func noChanges(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && strings.Contains(ae.ErrorMessage(), "No updates are to be performed")
}

func missing(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ValidationError" && strings.Contains(ae.ErrorMessage(), "does not exist")
}
