package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/pkrsplitter/internal/models"
)

// WorkflowNotifier starts a Cloud Workflows execution for every split
// history, handing the split directory to downstream parsing.
type WorkflowNotifier struct {
	client *executions.Client
	parent string
}

// NewWorkflowNotifier creates an executions client for the given workflow.
func NewWorkflowNotifier(ctx context.Context, projectID, location, workflowID string) (*WorkflowNotifier, error) {
	if projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("project, location and workflow id must be provided")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowNotifier{
		client: client,
		parent: WorkflowParent(projectID, location, workflowID),
	}, nil
}

// WorkflowParent is the resource name executions are created under.
func WorkflowParent(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

// NotifySplit starts one execution whose argument describes res.
func (n *WorkflowNotifier) NotifySplit(ctx context.Context, res *models.SplitResponse) error {
	argument, err := WorkflowArgument(res)
	if err != nil {
		return err
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: n.parent,
		Execution: &executionspb.Execution{
			Argument: argument,
		},
	}
	if _, err := n.client.CreateExecution(ctx, req); err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return nil
}

// WorkflowArgument is the JSON execution argument for res.
func WorkflowArgument(res *models.SplitResponse) (string, error) {
	payload := map[string]interface{}{
		"bucket":         res.Bucket,
		"sourceLocation": res.SourceLocation,
		"destinationDir": res.DestinationDir,
		"recordCount":    res.RecordCount,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	return string(payloadBytes), nil
}

// Close releases the executions client.
func (n *WorkflowNotifier) Close() error {
	return n.client.Close()
}
