package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/m-mizutani/burrow/pkg/model"
)

const (
	collectionSessions  = "sessions"
	collectionMessages  = "messages"
	collectionDocuments = "documents"
	collectionApprovals = "approvals"
)

// Firestore implements Repository using Cloud Firestore. Document
// embeddings are stored as Vector32 values and ranked with the native
// FindNearest cosine search.
type Firestore struct {
	client    *firestore.Client
	dimension int
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string, dimension int) (*Firestore, error) {
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive",
			goerr.V("dimension", dimension), goerr.T(model.TagInvalidArgument))
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID),
			goerr.T(model.TagInfrastructure))
	}

	return &Firestore{client: client, dimension: dimension}, nil
}

type fsSession struct {
	ID        string         `firestore:"id"`
	Owner     string         `firestore:"owner"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	CreatedAt time.Time      `firestore:"created_at"`
	UpdatedAt time.Time      `firestore:"updated_at"`
}

type fsMessage struct {
	ID        string         `firestore:"id"`
	SessionID string         `firestore:"session_id"`
	Role      string         `firestore:"role"`
	Content   string         `firestore:"content"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	CreatedAt time.Time      `firestore:"created_at"`
}

type fsDocument struct {
	ID        string             `firestore:"id"`
	Content   string             `firestore:"content"`
	Embedding firestore.Vector32 `firestore:"embedding,omitempty"`
	Metadata  map[string]any     `firestore:"metadata,omitempty"`
	CreatedAt time.Time          `firestore:"created_at"`
	UpdatedAt time.Time          `firestore:"updated_at"`
}

type fsApproval struct {
	ID          string         `firestore:"id"`
	ActionType  string         `firestore:"action_type"`
	Description string         `firestore:"description"`
	ToolName    string         `firestore:"tool_name"`
	Parameters  map[string]any `firestore:"parameters,omitempty"`
	Risk        string         `firestore:"risk"`
	Confidence  float64        `firestore:"confidence"`
	State       string         `firestore:"state"`
	RequestedAt time.Time      `firestore:"requested_at"`
	ResolvedAt  *time.Time     `firestore:"resolved_at,omitempty"`
	Resolver    string         `firestore:"resolver,omitempty"`
}

func (r *Firestore) GetOrCreateSession(ctx context.Context, session *model.Session) error {
	ref := r.client.Collection(collectionSessions).Doc(string(session.ID))
	_, err := ref.Create(ctx, fsSession{
		ID:        string(session.ID),
		Owner:     session.Owner,
		Metadata:  session.Metadata,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return goerr.Wrap(err, "failed to create session",
			goerr.V("session_id", session.ID), goerr.T(model.TagInfrastructure))
	}
	return nil
}

func (r *Firestore) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	snap, err := r.client.Collection(collectionSessions).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found", goerr.V("session_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get session", goerr.T(model.TagInfrastructure))
	}

	var data fsSession
	if err := snap.DataTo(&data); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session", goerr.T(model.TagInfrastructure))
	}

	return &model.Session{
		ID:        model.SessionID(data.ID),
		Owner:     data.Owner,
		Metadata:  data.Metadata,
		CreatedAt: data.CreatedAt,
		UpdatedAt: data.UpdatedAt,
	}, nil
}

func (r *Firestore) PutMessage(ctx context.Context, msg *model.Message) error {
	_, err := r.client.Collection(collectionMessages).Doc(string(msg.ID)).Create(ctx, fsMessage{
		ID:        string(msg.ID),
		SessionID: string(msg.SessionID),
		Role:      string(msg.Role),
		Content:   msg.Content,
		Metadata:  msg.Metadata,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to put message",
			goerr.V("message_id", msg.ID), goerr.T(model.TagInfrastructure))
	}
	return nil
}

func (r *Firestore) ListMessages(ctx context.Context, sessionID model.SessionID, limit int) ([]*model.Message, error) {
	// ULID message ids sort by creation time, which breaks created_at ties
	// in insertion order.
	iter := r.client.Collection(collectionMessages).
		Where("session_id", "==", string(sessionID)).
		OrderBy("created_at", firestore.Desc).
		OrderBy("id", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var msgs []*model.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate messages", goerr.T(model.TagInfrastructure))
		}

		var data fsMessage
		if err := snap.DataTo(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to decode message", goerr.T(model.TagInfrastructure))
		}
		msgs = append(msgs, &model.Message{
			ID:        model.MessageID(data.ID),
			SessionID: model.SessionID(data.SessionID),
			Role:      model.Role(data.Role),
			Content:   data.Content,
			Metadata:  data.Metadata,
			CreatedAt: data.CreatedAt,
		})
	}
	return msgs, nil
}

func (r *Firestore) PutDocument(ctx context.Context, doc *model.Document) error {
	if err := doc.Validate(r.dimension); err != nil {
		return err
	}
	_, err := r.client.Collection(collectionDocuments).Doc(string(doc.ID)).Create(ctx, fsDocument{
		ID:        string(doc.ID),
		Content:   doc.Content,
		Embedding: firestore.Vector32(doc.Embedding),
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to put document",
			goerr.V("document_id", doc.ID), goerr.T(model.TagInfrastructure))
	}
	return nil
}

func (r *Firestore) SearchSimilarDocuments(ctx context.Context, embedding []float32, limit int, filters model.Metadata) ([]*model.ScoredDocument, error) {
	query := r.client.Collection(collectionDocuments).Query
	for k, v := range filters {
		query = query.Where("metadata."+k, "==", v)
	}

	vq := query.FindNearest("embedding", firestore.Vector32(embedding), limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: "vector_distance"})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var results []*model.ScoredDocument
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to run vector search", goerr.T(model.TagInfrastructure))
		}

		var data fsDocument
		if err := snap.DataTo(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document", goerr.T(model.TagInfrastructure))
		}

		distance, _ := snap.Data()["vector_distance"].(float64)
		results = append(results, &model.ScoredDocument{
			Document: &model.Document{
				ID:        model.DocumentID(data.ID),
				Content:   data.Content,
				Embedding: []float32(data.Embedding),
				Metadata:  data.Metadata,
				CreatedAt: data.CreatedAt,
				UpdatedAt: data.UpdatedAt,
			},
			Distance: distance,
		})
	}

	// FindNearest does not define an order among equal distances; re-sort
	// the page so ties break most-recent-first like the SQLite store.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Document.CreatedAt.After(results[j].Document.CreatedAt)
	})
	return results, nil
}

func (r *Firestore) ListDocumentsByTime(ctx context.Context, start, end time.Time, filters model.Metadata) ([]*model.Document, error) {
	query := r.client.Collection(collectionDocuments).
		Where("created_at", ">=", start).
		Where("created_at", "<=", end).
		OrderBy("created_at", firestore.Desc)
	for k, v := range filters {
		query = query.Where("metadata."+k, "==", v)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []*model.Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate documents", goerr.T(model.TagInfrastructure))
		}

		var data fsDocument
		if err := snap.DataTo(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document", goerr.T(model.TagInfrastructure))
		}
		docs = append(docs, &model.Document{
			ID:        model.DocumentID(data.ID),
			Content:   data.Content,
			Embedding: []float32(data.Embedding),
			Metadata:  data.Metadata,
			CreatedAt: data.CreatedAt,
			UpdatedAt: data.UpdatedAt,
		})
	}
	return docs, nil
}

func (r *Firestore) PutApproval(ctx context.Context, record *model.ApprovalRecord) error {
	_, err := r.client.Collection(collectionApprovals).Doc(string(record.ID)).Create(ctx, fsApproval{
		ID:          string(record.ID),
		ActionType:  record.ActionType,
		Description: record.Description,
		ToolName:    record.ToolName,
		Parameters:  record.Parameters,
		Risk:        string(record.Risk),
		Confidence:  record.Confidence,
		State:       string(record.State),
		RequestedAt: record.RequestedAt,
		ResolvedAt:  record.ResolvedAt,
		Resolver:    record.Resolver,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to put approval",
			goerr.V("approval_id", record.ID), goerr.T(model.TagInfrastructure))
	}
	return nil
}

func (r *Firestore) GetApproval(ctx context.Context, id model.ApprovalID) (*model.ApprovalRecord, error) {
	snap, err := r.client.Collection(collectionApprovals).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrApprovalNotFound, "approval not found", goerr.V("approval_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get approval", goerr.T(model.TagInfrastructure))
	}

	return decodeApproval(snap)
}

func (r *Firestore) ResolveApproval(ctx context.Context, id model.ApprovalID, state model.ApprovalState, resolver string, resolvedAt time.Time) (*model.ApprovalRecord, error) {
	ref := r.client.Collection(collectionApprovals).Doc(string(id))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrApprovalNotFound, "approval not found", goerr.V("approval_id", id))
			}
			return goerr.Wrap(err, "failed to get approval", goerr.T(model.TagInfrastructure))
		}

		var data fsApproval
		if err := snap.DataTo(&data); err != nil {
			return goerr.Wrap(err, "failed to decode approval", goerr.T(model.TagInfrastructure))
		}
		if model.ApprovalState(data.State) != model.ApprovalPending {
			return goerr.Wrap(model.ErrAlreadyResolved, "resolution rejected",
				goerr.V("approval_id", id), goerr.V("state", data.State))
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "state", Value: string(state)},
			{Path: "resolved_at", Value: resolvedAt},
			{Path: "resolver", Value: resolver},
		})
	})
	if err != nil {
		return nil, err
	}

	return r.GetApproval(ctx, id)
}

func (r *Firestore) ListPendingApprovals(ctx context.Context) ([]*model.ApprovalRecord, error) {
	iter := r.client.Collection(collectionApprovals).
		Where("state", "==", string(model.ApprovalPending)).
		OrderBy("requested_at", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var records []*model.ApprovalRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate approvals", goerr.T(model.TagInfrastructure))
		}

		record, err := decodeApproval(snap)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *Firestore) Health(ctx context.Context) (*HealthStatus, error) {
	iter := r.client.Collection(collectionDocuments).Limit(1).Documents(ctx)
	defer iter.Stop()

	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return nil, goerr.Wrap(err, "storage unreachable", goerr.T(model.TagInfrastructure))
	}

	return &HealthStatus{
		Healthy:            true,
		Backend:            "firestore",
		VectorIndexVersion: "firestore/find-nearest",
	}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func decodeApproval(snap *firestore.DocumentSnapshot) (*model.ApprovalRecord, error) {
	var data fsApproval
	if err := snap.DataTo(&data); err != nil {
		return nil, goerr.Wrap(err, "failed to decode approval", goerr.T(model.TagInfrastructure))
	}

	return &model.ApprovalRecord{
		ID:          model.ApprovalID(data.ID),
		ActionType:  data.ActionType,
		Description: data.Description,
		ToolName:    data.ToolName,
		Parameters:  data.Parameters,
		Risk:        model.RiskLevel(data.Risk),
		Confidence:  data.Confidence,
		State:       model.ApprovalState(data.State),
		RequestedAt: data.RequestedAt,
		ResolvedAt:  data.ResolvedAt,
		Resolver:    data.Resolver,
	}, nil
}
