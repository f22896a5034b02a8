package model

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures so that callers can branch on the kind of
// error without matching messages. Validation errors are rejected before any
// I/O; infrastructure errors may be retried by the caller.
var (
	TagInvalidArgument = goerr.NewTag("invalid_argument")
	TagInfrastructure  = goerr.NewTag("infrastructure")
	TagNotFound        = goerr.NewTag("not_found")
	TagConflict        = goerr.NewTag("conflict")
	TagOracle          = goerr.NewTag("oracle")
)

var (
	ErrInvalidRole       = goerr.New("invalid message role", goerr.T(TagInvalidArgument))
	ErrEmptyContent      = goerr.New("content is empty", goerr.T(TagInvalidArgument))
	ErrEmptyOwner        = goerr.New("owner is empty", goerr.T(TagInvalidArgument))
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch", goerr.T(TagInvalidArgument))
	ErrInvalidLimit      = goerr.New("limit must be positive", goerr.T(TagInvalidArgument))
	ErrInvalidRange      = goerr.New("end must not be before start", goerr.T(TagInvalidArgument))
	ErrInvalidMetadata   = goerr.New("metadata value is not JSON-compatible", goerr.T(TagInvalidArgument))

	ErrSessionNotFound  = goerr.New("session not found", goerr.T(TagNotFound))
	ErrApprovalNotFound = goerr.New("approval not found", goerr.T(TagNotFound))

	// ErrAlreadyResolved signals a race on a single approval record. The
	// first resolution wins; callers must not re-apply a decision.
	ErrAlreadyResolved = goerr.New("approval already resolved", goerr.T(TagConflict))
)

// IsInvalidArgument reports whether err is a validation error.
func IsInvalidArgument(err error) bool {
	return goerr.HasTag(err, TagInvalidArgument)
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return goerr.HasTag(err, TagNotFound)
}

// IsConflict reports whether err indicates a lost race on a record.
func IsConflict(err error) bool {
	return goerr.HasTag(err, TagConflict)
}

// IsInfrastructure reports whether err indicates an unreachable or failing
// backing store, as opposed to a rejected input.
func IsInfrastructure(err error) bool {
	return goerr.HasTag(err, TagInfrastructure)
}
