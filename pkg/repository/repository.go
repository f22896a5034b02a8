package repository

import (
	"context"
	"time"

	"github.com/m-mizutani/burrow/pkg/model"
)

// HealthStatus reports storage reachability and the version of the vector
// search capability. An unreachable store is an infrastructure error from
// Health, not a degraded status; callers can rely on the distinction.
type HealthStatus struct {
	Healthy            bool   `json:"healthy"`
	Backend            string `json:"backend"`
	VectorIndexVersion string `json:"vector_index_version"`
}

// Repository defines the interface for session, message, document and
// approval persistence. It is the only owner of the storage connection
// pool; callers never touch storage directly.
type Repository interface {
	// GetOrCreateSession inserts the session if no session with the same ID
	// exists. The insert is idempotent so concurrent auto-provisioning of
	// the same session cannot create duplicates.
	GetOrCreateSession(ctx context.Context, session *model.Session) error

	// GetSession retrieves a session by ID
	GetSession(ctx context.Context, id model.SessionID) (*model.Session, error)

	// PutMessage appends a message. The caller guarantees the session
	// exists; messages gain a monotonic insertion sequence on write.
	PutMessage(ctx context.Context, msg *model.Message) error

	// ListMessages retrieves up to limit messages of a session, newest
	// first. Unknown sessions yield an empty list.
	ListMessages(ctx context.Context, sessionID model.SessionID, limit int) ([]*model.Message, error)

	// PutDocument saves an immutable document
	PutDocument(ctx context.Context, doc *model.Document) error

	// SearchSimilarDocuments ranks documents by ascending cosine distance
	// from the embedding, ties broken by most recent creation. Filters are
	// applied as a metadata subset predicate before ranking.
	SearchSimilarDocuments(ctx context.Context, embedding []float32, limit int, filters model.Metadata) ([]*model.ScoredDocument, error)

	// ListDocumentsByTime retrieves documents created within [start, end]
	// inclusive, newest first.
	ListDocumentsByTime(ctx context.Context, start, end time.Time, filters model.Metadata) ([]*model.Document, error)

	// PutApproval appends a record to the audit trail
	PutApproval(ctx context.Context, record *model.ApprovalRecord) error

	// GetApproval retrieves an approval record by ID
	GetApproval(ctx context.Context, id model.ApprovalID) (*model.ApprovalRecord, error)

	// ResolveApproval transitions a PENDING record to the given terminal
	// state with compare-and-swap semantics: a record that is already
	// resolved yields model.ErrAlreadyResolved and keeps its first
	// resolution.
	ResolveApproval(ctx context.Context, id model.ApprovalID, state model.ApprovalState, resolver string, resolvedAt time.Time) (*model.ApprovalRecord, error)

	// ListPendingApprovals returns all records still in PENDING state
	ListPendingApprovals(ctx context.Context) ([]*model.ApprovalRecord, error)

	// Health checks storage reachability
	Health(ctx context.Context) (*HealthStatus, error)

	// Close releases the connection pool
	Close() error
}
