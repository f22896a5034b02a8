package model

import (
	"time"

	"github.com/google/uuid"
)

type ApprovalID string

// NewApprovalID generates a new unique ApprovalID
func NewApprovalID() ApprovalID {
	return ApprovalID(uuid.New().String())
}

// ApprovalState is the lifecycle state of an approval record. Transitions
// are one-directional: PENDING may move to any resolved state, and resolved
// states never change again.
type ApprovalState string

const (
	ApprovalPending   ApprovalState = "PENDING"
	ApprovalApproved  ApprovalState = "APPROVED"
	ApprovalRejected  ApprovalState = "REJECTED"
	ApprovalTimedOut  ApprovalState = "TIMED_OUT"
	ApprovalCancelled ApprovalState = "CANCELLED"
)

// Resolved reports whether the state is terminal
func (s ApprovalState) Resolved() bool {
	return s != ApprovalPending
}

// Allows reports whether the resolved state permits execution. TIMED_OUT
// and CANCELLED block execution the same way REJECTED does.
func (s ApprovalState) Allows() bool {
	return s == ApprovalApproved
}

// ApprovalRecord is one row of the append-only audit trail. Once resolved
// it is immutable; the audit table never deletes rows.
type ApprovalRecord struct {
	ID          ApprovalID
	ActionType  string
	Description string
	ToolName    string
	Parameters  Metadata
	Risk        RiskLevel
	Confidence  float64
	State       ApprovalState
	RequestedAt time.Time
	ResolvedAt  *time.Time
	Resolver    string
}
