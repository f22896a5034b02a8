package adapter_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/burrow/pkg/adapter"
	"github.com/m-mizutani/burrow/pkg/model"
)

func TestAuditExporter(t *testing.T) {
	projectID := os.Getenv("TEST_BIGQUERY_PROJECT")
	if projectID == "" {
		t.Skip("TEST_BIGQUERY_PROJECT is not set")
	}
	datasetID := os.Getenv("TEST_BIGQUERY_DATASET")
	if datasetID == "" {
		t.Skip("TEST_BIGQUERY_DATASET is not set")
	}

	ctx := context.Background()
	exporter, err := adapter.NewAuditExporter(ctx, projectID, datasetID)
	gt.NoError(t, err)
	defer exporter.Close()

	t.Run("ExportApproval", func(t *testing.T) {
		now := time.Now()
		record := &model.ApprovalRecord{
			ID:          model.NewApprovalID(),
			ActionType:  "tool_call",
			Description: "integration test approval",
			ToolName:    "delete_file",
			Parameters:  model.Metadata{"path": "/tmp/x"},
			Risk:        model.RiskIrreversible,
			Confidence:  0.9,
			State:       model.ApprovalRejected,
			Resolver:    "integration-test",
			RequestedAt: now,
			ResolvedAt:  &now,
		}
		gt.NoError(t, exporter.ExportApproval(ctx, record))
	})

	t.Run("ExportToolCall", func(t *testing.T) {
		record := &model.ToolCallRecord{
			ToolName:   "web_search",
			Parameters: model.Metadata{"query": "integration test"},
			Risk:       model.RiskReversible,
			Status:     model.CallSuccess,
			CalledAt:   time.Now(),
			Duration:   120 * time.Millisecond,
		}
		gt.NoError(t, exporter.ExportToolCall(ctx, record))
	})

	t.Run("RecentApprovals", func(t *testing.T) {
		rows, err := exporter.RecentApprovals(ctx, 5)
		gt.NoError(t, err)
		gt.True(t, len(rows) > 0)
	})
}
