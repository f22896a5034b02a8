// Package approval decides whether a classified action may execute and
// keeps the append-only audit trail of those decisions.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/burrow/pkg/model"
	"github.com/m-mizutani/burrow/pkg/repository"
	"github.com/m-mizutani/burrow/pkg/telemetry"
	"github.com/m-mizutani/burrow/pkg/utils/logging"
)

const (
	// DefaultConfidenceThreshold is the confidence above which a delayed
	// action auto-executes without a human decision.
	DefaultConfidenceThreshold = 0.85

	// DefaultTimeout bounds how long a delayed-action approval stays
	// pending. Irreversible actions never time out: absence of a human
	// decision is never treated as approval.
	DefaultTimeout = 5 * time.Minute

	timeoutResolver = "system:timeout"
	cancelResolver  = "system:cancel"
)

// Exporter receives every resolved approval record, e.g. to stream the
// audit trail into long-term storage.
type Exporter interface {
	ExportApproval(ctx context.Context, record *model.ApprovalRecord) error
}

// Gate evaluates risk/confidence pairs and manages the approval lifecycle
type Gate struct {
	repo      repository.Repository
	recorder  *telemetry.Recorder
	exporter  Exporter
	threshold float64
	timeout   time.Duration

	mu      sync.Mutex
	waiters map[model.ApprovalID]*waiter
}

type waiter struct {
	ch    chan model.ApprovalState
	timer *time.Timer
}

// NewInput contains dependencies for creating a Gate
type NewInput struct {
	Repo     repository.Repository
	Recorder *telemetry.Recorder
	Exporter Exporter

	// Threshold overrides DefaultConfidenceThreshold when > 0
	Threshold float64
	// Timeout overrides DefaultTimeout when > 0
	Timeout time.Duration
}

// New creates a new approval Gate
func New(input NewInput) (*Gate, error) {
	if input.Repo == nil {
		return nil, goerr.New("repository is required", goerr.T(model.TagInvalidArgument))
	}
	if input.Recorder == nil {
		input.Recorder = telemetry.NewNoop()
	}
	if input.Threshold <= 0 {
		input.Threshold = DefaultConfidenceThreshold
	}
	if input.Timeout <= 0 {
		input.Timeout = DefaultTimeout
	}

	return &Gate{
		repo:      input.Repo,
		recorder:  input.Recorder,
		exporter:  input.Exporter,
		threshold: input.Threshold,
		timeout:   input.Timeout,
		waiters:   make(map[model.ApprovalID]*waiter),
	}, nil
}

// Decide maps a risk level and confidence score to a gate decision. The
// decision table is fixed: irreversible actions always await approval,
// delayed actions auto-execute only above the confidence threshold, and
// reversible actions proceed with post-hoc logging only. An invalid risk
// level denies outright rather than guessing.
func (g *Gate) Decide(ctx context.Context, risk model.RiskLevel, confidence float64) model.Decision {
	_, span := g.recorder.StartSpan(ctx, "approval.decide")
	defer span.End(nil)

	decision := g.decide(risk, confidence)

	span.SetAttr("risk", string(risk))
	span.SetAttr("confidence", confidence)
	span.SetAttr("decision", string(decision))
	return decision
}

func (g *Gate) decide(risk model.RiskLevel, confidence float64) model.Decision {
	switch risk {
	case model.RiskIrreversible:
		return model.DecisionAwaitApproval
	case model.RiskReversibleWithDelay:
		if confidence < g.threshold {
			return model.DecisionAwaitApproval
		}
		return model.DecisionProceed
	case model.RiskReversible:
		return model.DecisionProceed
	default:
		return model.DecisionDeny
	}
}

// RequestInput describes the action awaiting approval
type RequestInput struct {
	ActionType  string
	Description string
	ToolName    string
	Parameters  model.Metadata
	Risk        model.RiskLevel
	Confidence  float64
}

// Request creates a PENDING approval record and registers it for
// resolution. Only delayed actions get a timeout timer.
func (g *Gate) Request(ctx context.Context, input RequestInput) (record *model.ApprovalRecord, err error) {
	ctx, span := g.recorder.StartSpan(ctx, "approval.request")
	defer func() { span.End(err) }()

	if err = input.Risk.Validate(); err != nil {
		return nil, err
	}

	record = &model.ApprovalRecord{
		ID:          model.NewApprovalID(),
		ActionType:  input.ActionType,
		Description: input.Description,
		ToolName:    input.ToolName,
		Parameters:  input.Parameters,
		Risk:        input.Risk,
		Confidence:  input.Confidence,
		State:       model.ApprovalPending,
		RequestedAt: time.Now(),
	}

	if err = g.repo.PutApproval(ctx, record); err != nil {
		return nil, err
	}

	w := &waiter{ch: make(chan model.ApprovalState, 1)}
	if input.Risk == model.RiskReversibleWithDelay {
		id := record.ID
		w.timer = time.AfterFunc(g.timeout, func() { g.expire(id) })
	}

	g.mu.Lock()
	g.waiters[record.ID] = w
	g.mu.Unlock()

	span.SetAttr("approval_id", string(record.ID))
	span.SetAttr("risk", string(record.Risk))
	return record, nil
}

// Wait blocks until the record resolves or ctx is cancelled. Cancellation
// transitions a still-pending record to CANCELLED and releases its timer,
// so a late human decision has nobody to deliver to.
func (g *Gate) Wait(ctx context.Context, id model.ApprovalID) (model.ApprovalState, error) {
	g.mu.Lock()
	w, ok := g.waiters[id]
	g.mu.Unlock()

	if !ok {
		record, err := g.repo.GetApproval(ctx, id)
		if err != nil {
			return "", err
		}
		if !record.State.Resolved() {
			return "", goerr.New("approval is pending but not registered with this gate",
				goerr.V("approval_id", id))
		}
		return record.State, nil
	}

	select {
	case state := <-w.ch:
		return state, nil
	case <-ctx.Done():
		record, err := g.resolve(context.WithoutCancel(ctx), id, model.ApprovalCancelled, cancelResolver)
		if err != nil {
			if model.IsConflict(err) {
				// A human decision won the race; report it instead
				if got, getErr := g.repo.GetApproval(context.WithoutCancel(ctx), id); getErr == nil {
					return got.State, nil
				}
			}
			return "", err
		}
		return record.State, nil
	}
}

// Resolve applies a human decision to a pending record. Only APPROVED and
// REJECTED are valid resolutions; a record that already left PENDING
// yields model.ErrAlreadyResolved.
func (g *Gate) Resolve(ctx context.Context, id model.ApprovalID, state model.ApprovalState, resolver string) (record *model.ApprovalRecord, err error) {
	ctx, span := g.recorder.StartSpan(ctx, "approval.resolve")
	defer func() { span.End(err) }()

	if state != model.ApprovalApproved && state != model.ApprovalRejected {
		err = goerr.New("resolution state must be APPROVED or REJECTED",
			goerr.V("state", state), goerr.T(model.TagInvalidArgument))
		return nil, err
	}

	record, err = g.resolve(ctx, id, state, resolver)
	if err != nil {
		return nil, err
	}

	span.SetAttr("approval_id", string(id))
	span.SetAttr("state", string(state))
	return record, nil
}

// Pending lists approval records still awaiting a decision
func (g *Gate) Pending(ctx context.Context) ([]*model.ApprovalRecord, error) {
	return g.repo.ListPendingApprovals(ctx)
}

// expire transitions a delayed-action record to TIMED_OUT. A record
// resolved in the meantime keeps its resolution; the lost race is normal.
func (g *Gate) expire(id model.ApprovalID) {
	ctx := context.Background()
	if _, err := g.resolve(ctx, id, model.ApprovalTimedOut, timeoutResolver); err != nil {
		if !model.IsConflict(err) {
			logging.Default().Error("failed to expire approval", "approval_id", id, "error", err)
		}
	}
}

func (g *Gate) resolve(ctx context.Context, id model.ApprovalID, state model.ApprovalState, resolver string) (*model.ApprovalRecord, error) {
	record, err := g.repo.ResolveApproval(ctx, id, state, resolver, time.Now())
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	w := g.waiters[id]
	delete(g.waiters, id)
	g.mu.Unlock()

	if w != nil {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.ch <- record.State
	}

	if g.exporter != nil {
		if err := g.exporter.ExportApproval(ctx, record); err != nil {
			// The audit row is already durable in the repository; export
			// is a secondary sink and must not fail the resolution.
			logging.From(ctx).Warn("failed to export approval record",
				"approval_id", id, "error", err)
		}
	}

	return record, nil
}
