package cloudformation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cfn "github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"

	"rewind/api/model"
	"rewind/api/stack"
)

type fakeAPI struct {
	updateIn    *cfn.UpdateStackInput
	updateErr   error
	stacks      []types.Stack
	describeErr error
	resource    *types.StackResourceDetail
}

func (f *fakeAPI) UpdateStack(ctx context.Context, in *cfn.UpdateStackInput, _ ...func(*cfn.Options)) (*cfn.UpdateStackOutput, error) {
	f.updateIn = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &cfn.UpdateStackOutput{StackId: aws.String("arn:stack/" + aws.ToString(in.StackName))}, nil
}

func (f *fakeAPI) DescribeStacks(ctx context.Context, in *cfn.DescribeStacksInput, _ ...func(*cfn.Options)) (*cfn.DescribeStacksOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &cfn.DescribeStacksOutput{Stacks: f.stacks}, nil
}

func (f *fakeAPI) DescribeStackResource(ctx context.Context, in *cfn.DescribeStackResourceInput, _ ...func(*cfn.Options)) (*cfn.DescribeStackResourceOutput, error) {
	return &cfn.DescribeStackResourceOutput{StackResourceDetail: f.resource}, nil
}

func TestUpdateStackInput(t *testing.T) {
	api := &fakeAPI{}
	c := New(api)

	err := c.UpdateStack(context.Background(), model.UpdateRequest{
		StackName:   "svc-dev",
		TemplateURL: "https://s3.amazonaws.com/b/t.json",
		Parameters:  map[string]string{"b": "2", "a": "1"},
		Tags:        map[string]string{"STAGE": "dev"},
	})
	if err != nil {
		t.Fatalf("UpdateStack: %v", err)
	}
	in := api.updateIn
	if aws.ToString(in.TemplateURL) != "https://s3.amazonaws.com/b/t.json" {
		t.Errorf("TemplateURL = %q", aws.ToString(in.TemplateURL))
	}
	if len(in.Capabilities) != 2 {
		t.Errorf("Capabilities = %v", in.Capabilities)
	}
	if len(in.Parameters) != 2 || aws.ToString(in.Parameters[0].ParameterKey) != "a" {
		t.Errorf("Parameters = %+v", in.Parameters)
	}
	if len(in.Tags) != 1 || aws.ToString(in.Tags[0].Value) != "dev" {
		t.Errorf("Tags = %+v", in.Tags)
	}
}

func TestUpdateStackNoChanges(t *testing.T) {
	api := &fakeAPI{updateErr: &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."}}
	err := New(api).UpdateStack(context.Background(), model.UpdateRequest{StackName: "svc-dev"})
	if !errors.Is(err, stack.ErrNoChanges) {
		t.Fatalf("err = %v, want ErrNoChanges", err)
	}
}

func TestUpdateStackRejected(t *testing.T) {
	api := &fakeAPI{updateErr: &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack:svc-dev is in UPDATE_IN_PROGRESS state and can not be updated."}}
	err := New(api).UpdateStack(context.Background(), model.UpdateRequest{StackName: "svc-dev"})
	if err == nil || errors.Is(err, stack.ErrNoChanges) {
		t.Fatalf("err = %v, want rejection", err)
	}
}

func TestStackStatus(t *testing.T) {
	updated := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	api := &fakeAPI{stacks: []types.Stack{{
		StackName:         aws.String("svc-dev"),
		StackStatus:       types.StackStatusUpdateRollbackComplete,
		StackStatusReason: aws.String("Resource creation cancelled"),
		LastUpdatedTime:   &updated,
	}}}
	c := New(api)

	st, err := c.StackStatus(context.Background(), "svc-dev")
	if err != nil {
		t.Fatalf("StackStatus: %v", err)
	}
	if st.Status != "UPDATE_ROLLBACK_COMPLETE" || st.Reason != "Resource creation cancelled" || !st.LastUpdatedAt.Equal(updated) {
		t.Errorf("status = %+v", st)
	}
	if c.Classify(st) != model.StateRolledBack {
		t.Errorf("Classify = %s", c.Classify(st))
	}
}

func TestStackStatusMissingStack(t *testing.T) {
	api := &fakeAPI{describeErr: &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id svc-dev does not exist"}}
	if _, err := New(api).StackStatus(context.Background(), "svc-dev"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeploymentBucket(t *testing.T) {
	api := &fakeAPI{resource: &types.StackResourceDetail{PhysicalResourceId: aws.String("svc-dev-serverlessdeploymentbucket-1a2b")}}
	got, err := New(api).DeploymentBucket(context.Background(), "svc-dev")
	if err != nil {
		t.Fatalf("DeploymentBucket: %v", err)
	}
	if got != "svc-dev-serverlessdeploymentbucket-1a2b" {
		t.Errorf("bucket = %q", got)
	}

	if _, err := New(&fakeAPI{}).DeploymentBucket(context.Background(), "svc-dev"); err == nil {
		t.Error("expected error when resource is missing")
	}
}
