package model

import "github.com/m-mizutani/goerr/v2"

// RiskLevel classifies an action by how hard it is to undo.
type RiskLevel string

const (
	// RiskReversible actions have no lasting effect (read, search, clock).
	RiskReversible RiskLevel = "REVERSIBLE"
	// RiskReversibleWithDelay actions take effect after a window in which
	// they can still be recalled (send message, schedule).
	RiskReversibleWithDelay RiskLevel = "REVERSIBLE_WITH_DELAY"
	// RiskIrreversible actions cannot be undone (delete, payment, deploy).
	// Unknown tools default here.
	RiskIrreversible RiskLevel = "IRREVERSIBLE"
)

// Severity returns the total ordering of risk levels. It is used only for
// logging and escalation display; decision logic is table-driven.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskReversible:
		return 0
	case RiskReversibleWithDelay:
		return 1
	case RiskIrreversible:
		return 2
	default:
		return 2
	}
}

// Validate checks if the risk level is valid
func (r RiskLevel) Validate() error {
	switch r {
	case RiskReversible, RiskReversibleWithDelay, RiskIrreversible:
		return nil
	default:
		return goerr.New("invalid risk level", goerr.V("level", r), goerr.T(TagInvalidArgument))
	}
}

// Decision is the outcome of the approval gate for a classified action.
type Decision string

const (
	DecisionProceed       Decision = "PROCEED"
	DecisionAwaitApproval Decision = "AWAIT_APPROVAL"
	DecisionDeny          Decision = "DENY"
)
