// Package memory provides the only API surface agents use for persistence.
// It wraps the storage repository with validation, auto-session-creation and
// trace emission; no caller may bypass it to touch storage directly.
package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/burrow/pkg/model"
	"github.com/m-mizutani/burrow/pkg/repository"
	"github.com/m-mizutani/burrow/pkg/telemetry"
	"github.com/m-mizutani/burrow/pkg/utils/logging"
)

// Manager coordinates session, message and document persistence
type Manager struct {
	repo      repository.Repository
	recorder  *telemetry.Recorder
	dimension int
}

// NewInput contains dependencies for creating a Manager
type NewInput struct {
	Repo     repository.Repository
	Recorder *telemetry.Recorder

	// Dimension is the process-wide embedding dimension. Every embedding
	// written or queried through this manager must have exactly this length.
	Dimension int
}

// New creates a new memory Manager
func New(input NewInput) (*Manager, error) {
	if input.Repo == nil {
		return nil, goerr.New("repository is required", goerr.T(model.TagInvalidArgument))
	}
	if input.Dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive",
			goerr.V("dimension", input.Dimension), goerr.T(model.TagInvalidArgument))
	}
	if input.Recorder == nil {
		input.Recorder = telemetry.NewNoop()
	}

	return &Manager{
		repo:      input.Repo,
		recorder:  input.Recorder,
		dimension: input.Dimension,
	}, nil
}

// Dimension returns the configured embedding dimension
func (m *Manager) Dimension() int {
	return m.dimension
}

// CreateSession creates a new session for the given owner
func (m *Manager) CreateSession(ctx context.Context, owner string, metadata model.Metadata) (id model.SessionID, err error) {
	ctx, span := m.recorder.StartSpan(ctx, "memory.create_session")
	defer func() { span.End(err) }()

	now := time.Now()
	session := &model.Session{
		ID:        model.NewSessionID(),
		Owner:     owner,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = session.Validate(); err != nil {
		return "", err
	}

	if err = m.repo.GetOrCreateSession(ctx, session); err != nil {
		return "", err
	}

	span.SetAttr("session_id", string(session.ID))
	logging.From(ctx).Debug("session created", "session_id", session.ID, "owner", owner)
	return session.ID, nil
}

// StoreMessage appends a message to a session. If the session does not
// exist yet it is provisioned with the auto-created owner; the underlying
// insert-if-absent keeps concurrent auto-provisioning race free.
func (m *Manager) StoreMessage(ctx context.Context, sessionID model.SessionID, role model.Role, content string, metadata model.Metadata) (id model.MessageID, err error) {
	ctx, span := m.recorder.StartSpan(ctx, "memory.store_message")
	defer func() { span.End(err) }()

	now := time.Now()
	msg := &model.Message{
		ID:        model.NewMessageID(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err = msg.Validate(); err != nil {
		return "", err
	}

	if err = m.repo.GetOrCreateSession(ctx, &model.Session{
		ID:        sessionID,
		Owner:     model.AutoCreatedOwner,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return "", err
	}

	if err = m.repo.PutMessage(ctx, msg); err != nil {
		return "", err
	}

	span.SetAttr("session_id", string(sessionID))
	span.SetAttr("role", string(role))
	return msg.ID, nil
}

// GetConversationHistory returns up to limit messages of a session in
// chronological order. The store fetches the most recent N descending,
// which keeps the backing index descending-friendly, and the slice is
// reversed before returning so callers always see oldest first.
func (m *Manager) GetConversationHistory(ctx context.Context, sessionID model.SessionID, limit int) (msgs []*model.Message, err error) {
	ctx, span := m.recorder.StartSpan(ctx, "memory.get_conversation_history")
	defer func() { span.End(err) }()

	if limit <= 0 {
		err = goerr.Wrap(model.ErrInvalidLimit, "invalid history limit", goerr.V("limit", limit))
		return nil, err
	}

	msgs, err = m.repo.ListMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	span.SetAttr("session_id", string(sessionID))
	span.SetAttr("count", len(msgs))
	return msgs, nil
}

// StoreDocument saves an immutable document with an optional embedding
func (m *Manager) StoreDocument(ctx context.Context, content string, metadata model.Metadata, embedding []float32) (id model.DocumentID, err error) {
	ctx, span := m.recorder.StartSpan(ctx, "memory.store_document")
	defer func() { span.End(err) }()

	now := time.Now()
	doc := &model.Document{
		ID:        model.NewDocumentID(),
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = doc.Validate(m.dimension); err != nil {
		return "", err
	}

	if err = m.repo.PutDocument(ctx, doc); err != nil {
		return "", err
	}

	span.SetAttr("document_id", string(doc.ID))
	span.SetAttr("has_embedding", len(embedding) > 0)
	return doc.ID, nil
}

// SemanticSearch ranks documents by ascending cosine distance from the
// query embedding. Metadata filters are applied before ranking; a corpus
// smaller than topK yields fewer results, never an error.
func (m *Manager) SemanticSearch(ctx context.Context, queryEmbedding []float32, topK int, filters model.Metadata) (results []*model.ScoredDocument, err error) {
	ctx, span := m.recorder.StartSpan(ctx, "memory.semantic_search")
	defer func() { span.End(err) }()

	if topK <= 0 {
		err = goerr.Wrap(model.ErrInvalidLimit, "invalid top_k", goerr.V("top_k", topK))
		return nil, err
	}
	if len(queryEmbedding) != m.dimension {
		err = goerr.Wrap(model.ErrDimensionMismatch, "query embedding rejected",
			goerr.V("got", len(queryEmbedding)), goerr.V("want", m.dimension))
		return nil, err
	}
	if err = filters.Validate(); err != nil {
		return nil, err
	}

	results, err = m.repo.SearchSimilarDocuments(ctx, queryEmbedding, topK, filters)
	if err != nil {
		return nil, err
	}

	span.SetAttr("top_k", topK)
	span.SetAttr("count", len(results))
	return results, nil
}

// TemporalQuery returns documents created within [start, end] inclusive,
// newest first.
func (m *Manager) TemporalQuery(ctx context.Context, start, end time.Time, filters model.Metadata) (docs []*model.Document, err error) {
	ctx, span := m.recorder.StartSpan(ctx, "memory.temporal_query")
	defer func() { span.End(err) }()

	if end.Before(start) {
		err = goerr.Wrap(model.ErrInvalidRange, "invalid time range",
			goerr.V("start", start), goerr.V("end", end))
		return nil, err
	}
	if err = filters.Validate(); err != nil {
		return nil, err
	}

	docs, err = m.repo.ListDocumentsByTime(ctx, start, end, filters)
	if err != nil {
		return nil, err
	}

	span.SetAttr("count", len(docs))
	return docs, nil
}

// HealthCheck reports storage reachability and the vector index version.
// An unreachable store surfaces as an infrastructure error so callers can
// distinguish "store says unhealthy" from "store unreachable".
func (m *Manager) HealthCheck(ctx context.Context) (status *repository.HealthStatus, err error) {
	ctx, span := m.recorder.StartSpan(ctx, "memory.health_check")
	defer func() { span.End(err) }()

	status, err = m.repo.Health(ctx)
	if err != nil {
		return nil, err
	}

	span.SetAttr("healthy", status.Healthy)
	span.SetAttr("vector_index_version", status.VectorIndexVersion)
	return status, nil
}

// Remember is a convenience wrapper storing assistant output as both a
// session message and, when an embedding is supplied, a searchable document.
func (m *Manager) Remember(ctx context.Context, sessionID model.SessionID, content string, metadata model.Metadata, embedding []float32) error {
	if _, err := m.StoreMessage(ctx, sessionID, model.RoleAssistant, content, metadata); err != nil {
		return err
	}
	if len(embedding) == 0 {
		return nil
	}
	_, err := m.StoreDocument(ctx, content, metadata, embedding)
	return err
}
