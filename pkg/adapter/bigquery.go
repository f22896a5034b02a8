package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/m-mizutani/burrow/pkg/model"
)

// AuditExporter streams resolved approval records and tool call records
// into BigQuery for long-term audit. The repository row stays the source
// of truth; BigQuery is the analytical copy.
type AuditExporter struct {
	client         *bigquery.Client
	datasetID      string
	approvalsTable string
	toolCallsTable string
}

// AuditExporterOption is a functional option for AuditExporter
type AuditExporterOption func(*AuditExporter)

// WithApprovalsTable overrides the default approvals table name
func WithApprovalsTable(table string) AuditExporterOption {
	return func(x *AuditExporter) {
		x.approvalsTable = table
	}
}

// WithToolCallsTable overrides the default tool calls table name
func WithToolCallsTable(table string) AuditExporterOption {
	return func(x *AuditExporter) {
		x.toolCallsTable = table
	}
}

// NewAuditExporter creates a BigQuery-backed audit exporter
func NewAuditExporter(ctx context.Context, projectID, datasetID string, opts ...AuditExporterOption) (*AuditExporter, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.T(model.TagInfrastructure))
	}

	x := &AuditExporter{
		client:         client,
		datasetID:      datasetID,
		approvalsTable: "approvals",
		toolCallsTable: "tool_calls",
	}

	for _, opt := range opts {
		opt(x)
	}

	return x, nil
}

type approvalRow struct {
	ID          string    `bigquery:"id"`
	ActionType  string    `bigquery:"action_type"`
	Description string    `bigquery:"description"`
	ToolName    string    `bigquery:"tool_name"`
	Parameters  string    `bigquery:"parameters"`
	Risk        string    `bigquery:"risk"`
	Confidence  float64   `bigquery:"confidence"`
	State       string    `bigquery:"state"`
	Resolver    string    `bigquery:"resolver"`
	RequestedAt time.Time `bigquery:"requested_at"`
	ResolvedAt  time.Time `bigquery:"resolved_at"`
}

type toolCallRow struct {
	ToolName   string    `bigquery:"tool_name"`
	Parameters string    `bigquery:"parameters"`
	ResultRef  string    `bigquery:"result_ref"`
	Risk       string    `bigquery:"risk"`
	Status     string    `bigquery:"status"`
	DurationMS int64     `bigquery:"duration_ms"`
	CalledAt   time.Time `bigquery:"called_at"`
}

// ExportApproval appends one resolved approval record to the audit table
func (x *AuditExporter) ExportApproval(ctx context.Context, record *model.ApprovalRecord) error {
	row := &approvalRow{
		ID:          string(record.ID),
		ActionType:  record.ActionType,
		Description: record.Description,
		ToolName:    record.ToolName,
		Parameters:  encodeParams(record.Parameters),
		Risk:        string(record.Risk),
		Confidence:  record.Confidence,
		State:       string(record.State),
		Resolver:    record.Resolver,
		RequestedAt: record.RequestedAt,
	}
	if record.ResolvedAt != nil {
		row.ResolvedAt = *record.ResolvedAt
	}

	inserter := x.client.Dataset(x.datasetID).Table(x.approvalsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return goerr.Wrap(err, "failed to insert approval audit row",
			goerr.V("approval_id", record.ID), goerr.T(model.TagInfrastructure))
	}

	return nil
}

// ExportToolCall appends one tool call record to the audit table
func (x *AuditExporter) ExportToolCall(ctx context.Context, record *model.ToolCallRecord) error {
	row := &toolCallRow{
		ToolName:   record.ToolName,
		Parameters: encodeParams(record.Parameters),
		ResultRef:  record.ResultRef,
		Risk:       string(record.Risk),
		Status:     string(record.Status),
		DurationMS: record.Duration.Milliseconds(),
		CalledAt:   record.CalledAt,
	}

	inserter := x.client.Dataset(x.datasetID).Table(x.toolCallsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return goerr.Wrap(err, "failed to insert tool call audit row",
			goerr.V("tool", record.ToolName), goerr.T(model.TagInfrastructure))
	}

	return nil
}

// RecentApprovals returns the newest audit rows, for operator review
func (x *AuditExporter) RecentApprovals(ctx context.Context, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		return nil, goerr.New("limit must be positive", goerr.V("limit", limit), goerr.T(model.TagInvalidArgument))
	}

	q := x.client.Query(fmt.Sprintf(
		"SELECT * FROM `%s.%s` ORDER BY requested_at DESC LIMIT @limit",
		x.datasetID, x.approvalsTable,
	))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query approval audit rows", goerr.T(model.TagInfrastructure))
	}

	var results []map[string]any
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate approval audit rows")
		}

		rowMap := make(map[string]any, len(row))
		for k, v := range row {
			rowMap[k] = v
		}
		results = append(results, rowMap)
	}

	return results, nil
}

// Close releases the underlying BigQuery client
func (x *AuditExporter) Close() error {
	return x.client.Close()
}

func encodeParams(params model.Metadata) string {
	if len(params) == 0 {
		return ""
	}
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(data)
}
