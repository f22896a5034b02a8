package approval_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/burrow/pkg/approval"
	"github.com/m-mizutani/burrow/pkg/model"
	"github.com/m-mizutani/burrow/pkg/repository"
)

func setupGate(t *testing.T, input approval.NewInput) *approval.Gate {
	t.Helper()

	repo, err := repository.NewSQLite(":memory:", 4)
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	input.Repo = repo
	gate, err := approval.New(input)
	gt.NoError(t, err)
	return gate
}

func TestDecisionTable(t *testing.T) {
	gate := setupGate(t, approval.NewInput{})
	ctx := context.Background()

	gt.Equal(t, gate.Decide(ctx, model.RiskIrreversible, 0.99), model.DecisionAwaitApproval)
	gt.Equal(t, gate.Decide(ctx, model.RiskIrreversible, 0.0), model.DecisionAwaitApproval)
	gt.Equal(t, gate.Decide(ctx, model.RiskReversibleWithDelay, 0.90), model.DecisionProceed)
	gt.Equal(t, gate.Decide(ctx, model.RiskReversibleWithDelay, 0.50), model.DecisionAwaitApproval)
	gt.Equal(t, gate.Decide(ctx, model.RiskReversible, 0.0), model.DecisionProceed)

	// Exactly at the threshold auto-executes
	gt.Equal(t, gate.Decide(ctx, model.RiskReversibleWithDelay, 0.85), model.DecisionProceed)

	// Unknown level denies rather than guessing
	gt.Equal(t, gate.Decide(ctx, model.RiskLevel("SOMEWHAT_RISKY"), 1.0), model.DecisionDeny)
}

func TestDecisionTableCustomThreshold(t *testing.T) {
	gate := setupGate(t, approval.NewInput{Threshold: 0.95})
	ctx := context.Background()

	gt.Equal(t, gate.Decide(ctx, model.RiskReversibleWithDelay, 0.90), model.DecisionAwaitApproval)
	gt.Equal(t, gate.Decide(ctx, model.RiskReversibleWithDelay, 0.96), model.DecisionProceed)
}

func TestRequestAndResolve(t *testing.T) {
	gate := setupGate(t, approval.NewInput{})
	ctx := context.Background()

	record, err := gate.Request(ctx, approval.RequestInput{
		ActionType:  "tool_call",
		Description: "delete quarterly report",
		ToolName:    "delete_file",
		Parameters:  model.Metadata{"path": "/srv/reports/q3.pdf"},
		Risk:        model.RiskIrreversible,
		Confidence:  0.99,
	})
	gt.NoError(t, err)
	gt.Equal(t, record.State, model.ApprovalPending)

	pending, err := gate.Pending(ctx)
	gt.NoError(t, err)
	gt.A(t, pending).Length(1)

	done := make(chan model.ApprovalState, 1)
	go func() {
		state, waitErr := gate.Wait(ctx, record.ID)
		gt.NoError(t, waitErr)
		done <- state
	}()

	// Give Wait a moment to block before resolving
	time.Sleep(20 * time.Millisecond)

	resolved, err := gate.Resolve(ctx, record.ID, model.ApprovalApproved, "alice")
	gt.NoError(t, err)
	gt.Equal(t, resolved.State, model.ApprovalApproved)
	gt.Equal(t, resolved.Resolver, "alice")
	gt.V(t, resolved.ResolvedAt).NotNil()

	select {
	case state := <-done:
		gt.Equal(t, state, model.ApprovalApproved)
		gt.True(t, state.Allows())
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not observe the resolution")
	}

	pending, err = gate.Pending(ctx)
	gt.NoError(t, err)
	gt.A(t, pending).Length(0)
}

func TestResolveInvalidState(t *testing.T) {
	gate := setupGate(t, approval.NewInput{})
	ctx := context.Background()

	record, err := gate.Request(ctx, approval.RequestInput{
		ToolName: "delete_file",
		Risk:     model.RiskIrreversible,
	})
	gt.NoError(t, err)

	_, err = gate.Resolve(ctx, record.ID, model.ApprovalTimedOut, "alice")
	gt.Error(t, err)
	gt.True(t, model.IsInvalidArgument(err))

	_, err = gate.Resolve(ctx, record.ID, model.ApprovalPending, "alice")
	gt.Error(t, err)
	gt.True(t, model.IsInvalidArgument(err))
}

func TestDoubleResolveConflicts(t *testing.T) {
	gate := setupGate(t, approval.NewInput{})
	ctx := context.Background()

	record, err := gate.Request(ctx, approval.RequestInput{
		ToolName: "execute_payment",
		Risk:     model.RiskIrreversible,
	})
	gt.NoError(t, err)

	first, err := gate.Resolve(ctx, record.ID, model.ApprovalRejected, "alice")
	gt.NoError(t, err)
	gt.Equal(t, first.State, model.ApprovalRejected)
	gt.False(t, first.State.Allows())

	_, err = gate.Resolve(ctx, record.ID, model.ApprovalApproved, "bob")
	gt.Error(t, err)
	gt.True(t, model.IsConflict(err))
}

func TestResolveUnknownApproval(t *testing.T) {
	gate := setupGate(t, approval.NewInput{})

	_, err := gate.Resolve(context.Background(), model.NewApprovalID(), model.ApprovalApproved, "alice")
	gt.Error(t, err)
	gt.True(t, model.IsNotFound(err))
}

func TestDelayedActionTimesOutExactlyOnce(t *testing.T) {
	gate := setupGate(t, approval.NewInput{Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	record, err := gate.Request(ctx, approval.RequestInput{
		ToolName:   "send_email",
		Risk:       model.RiskReversibleWithDelay,
		Confidence: 0.50,
	})
	gt.NoError(t, err)

	state, err := gate.Wait(ctx, record.ID)
	gt.NoError(t, err)
	gt.Equal(t, state, model.ApprovalTimedOut)
	gt.False(t, state.Allows())

	// The timeout already resolved the record; a late human decision loses
	_, err = gate.Resolve(ctx, record.ID, model.ApprovalApproved, "alice")
	gt.Error(t, err)
	gt.True(t, model.IsConflict(err))

	// Wait on an already-resolved record falls back to the stored state
	got, err := gate.Wait(ctx, record.ID)
	gt.NoError(t, err)
	gt.Equal(t, got, model.ApprovalTimedOut)
}

func TestIrreversibleNeverTimesOut(t *testing.T) {
	gate := setupGate(t, approval.NewInput{Timeout: 30 * time.Millisecond})
	ctx := context.Background()

	record, err := gate.Request(ctx, approval.RequestInput{
		ToolName: "drop_table",
		Risk:     model.RiskIrreversible,
	})
	gt.NoError(t, err)

	// Well past the delayed-action timeout the record is still pending
	time.Sleep(100 * time.Millisecond)

	pending, err := gate.Pending(ctx)
	gt.NoError(t, err)
	gt.A(t, pending).Length(1)

	resolved, err := gate.Resolve(ctx, record.ID, model.ApprovalApproved, "alice")
	gt.NoError(t, err)
	gt.Equal(t, resolved.State, model.ApprovalApproved)
}

func TestWaitCancellation(t *testing.T) {
	gate := setupGate(t, approval.NewInput{})

	record, err := gate.Request(context.Background(), approval.RequestInput{
		ToolName: "delete_record",
		Risk:     model.RiskIrreversible,
	})
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	state, err := gate.Wait(ctx, record.ID)
	gt.NoError(t, err)
	gt.Equal(t, state, model.ApprovalCancelled)
	gt.False(t, state.Allows())

	// Cancellation is terminal: the record cannot be approved afterwards
	_, err = gate.Resolve(context.Background(), record.ID, model.ApprovalApproved, "alice")
	gt.Error(t, err)
	gt.True(t, model.IsConflict(err))
}

type memoryExporter struct {
	mu      sync.Mutex
	records []*model.ApprovalRecord
}

func (x *memoryExporter) ExportApproval(_ context.Context, record *model.ApprovalRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records = append(x.records, record)
	return nil
}

func TestExporterReceivesResolvedRecords(t *testing.T) {
	exporter := &memoryExporter{}
	gate := setupGate(t, approval.NewInput{Exporter: exporter})
	ctx := context.Background()

	record, err := gate.Request(ctx, approval.RequestInput{
		ToolName: "transfer_funds",
		Risk:     model.RiskIrreversible,
	})
	gt.NoError(t, err)

	_, err = gate.Resolve(ctx, record.ID, model.ApprovalRejected, "alice")
	gt.NoError(t, err)

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	gt.A(t, exporter.records).Length(1)
	gt.Equal(t, exporter.records[0].State, model.ApprovalRejected)
	gt.Equal(t, exporter.records[0].Resolver, "alice")
}
