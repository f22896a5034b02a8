package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/m-mizutani/burrow/pkg/model"
)

// SQLite implements Repository using a local SQLite database. Embeddings
// are stored as little-endian float32 blobs and ranked by an exact cosine
// scan; the dimension is fixed per store and enforced at write time.
type SQLite struct {
	db        *sql.DB
	dimension int
}

// NewSQLite opens or creates a SQLite database at the given path.
// Use ":memory:" for an ephemeral store.
func NewSQLite(path string, dimension int) (*SQLite, error) {
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive",
			goerr.V("dimension", dimension), goerr.T(model.TagInvalidArgument))
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database",
			goerr.V("path", path), goerr.T(model.TagInfrastructure))
	}

	// An in-memory SQLite database exists per connection. Keep a single
	// connection so schema and data survive across goroutines.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &SQLite{db: db, dimension: dimension}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to migrate database", goerr.T(model.TagInfrastructure))
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id  TEXT PRIMARY KEY,
		owner       TEXT NOT NULL,
		metadata    TEXT,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id  TEXT NOT NULL UNIQUE,
		session_id  TEXT NOT NULL REFERENCES sessions(session_id),
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		metadata    TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at DESC, seq DESC);

	CREATE TABLE IF NOT EXISTS documents (
		document_id TEXT PRIMARY KEY,
		content     TEXT NOT NULL,
		embedding   BLOB,
		metadata    TEXT,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at DESC);

	CREATE TABLE IF NOT EXISTS approvals (
		approval_id  TEXT PRIMARY KEY,
		action_type  TEXT NOT NULL,
		description  TEXT NOT NULL,
		tool_name    TEXT NOT NULL,
		parameters   TEXT,
		risk         TEXT NOT NULL,
		confidence   REAL NOT NULL,
		state        TEXT NOT NULL,
		requested_at TEXT NOT NULL,
		resolved_at  TEXT,
		resolver     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_state ON approvals(state, requested_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) GetOrCreateSession(ctx context.Context, session *model.Session) error {
	meta, err := encodeMetadata(session.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, owner, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(session.ID), session.Owner, meta,
		encodeTime(session.CreatedAt), encodeTime(session.UpdatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to insert session",
			goerr.V("session_id", session.ID), goerr.T(model.TagInfrastructure))
	}
	return nil
}

func (s *SQLite) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, owner, metadata, created_at, updated_at FROM sessions WHERE session_id = ?`,
		string(id))

	var sess model.Session
	var meta sql.NullString
	var created, updated string
	if err := row.Scan((*string)(&sess.ID), &sess.Owner, &meta, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found", goerr.V("session_id", id))
		}
		return nil, goerr.Wrap(err, "failed to scan session", goerr.T(model.TagInfrastructure))
	}

	if err := decodeInto(meta, &sess.Metadata); err != nil {
		return nil, err
	}
	var err error
	if sess.CreatedAt, err = decodeTime(created); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = decodeTime(updated); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLite) PutMessage(ctx context.Context, msg *model.Message) error {
	meta, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, role, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(msg.ID), string(msg.SessionID), string(msg.Role), msg.Content, meta,
		encodeTime(msg.CreatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to insert message",
			goerr.V("message_id", msg.ID), goerr.T(model.TagInfrastructure))
	}
	return nil
}

func (s *SQLite) ListMessages(ctx context.Context, sessionID model.SessionID, limit int) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, role, content, metadata, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY created_at DESC, seq DESC LIMIT ?`,
		string(sessionID), limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query messages", goerr.T(model.TagInfrastructure))
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		var msg model.Message
		var meta sql.NullString
		var created string
		if err := rows.Scan((*string)(&msg.ID), (*string)(&msg.SessionID), (*string)(&msg.Role),
			&msg.Content, &meta, &created); err != nil {
			return nil, goerr.Wrap(err, "failed to scan message", goerr.T(model.TagInfrastructure))
		}
		if err := decodeInto(meta, &msg.Metadata); err != nil {
			return nil, err
		}
		if msg.CreatedAt, err = decodeTime(created); err != nil {
			return nil, err
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate messages", goerr.T(model.TagInfrastructure))
	}
	return msgs, nil
}

func (s *SQLite) PutDocument(ctx context.Context, doc *model.Document) error {
	if err := doc.Validate(s.dimension); err != nil {
		return err
	}
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (document_id, content, embedding, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(doc.ID), doc.Content, encodeVector(doc.Embedding), meta,
		encodeTime(doc.CreatedAt), encodeTime(doc.UpdatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to insert document",
			goerr.V("document_id", doc.ID), goerr.T(model.TagInfrastructure))
	}
	return nil
}

func (s *SQLite) SearchSimilarDocuments(ctx context.Context, embedding []float32, limit int, filters model.Metadata) ([]*model.ScoredDocument, error) {
	docs, err := s.scanDocuments(ctx,
		`SELECT document_id, content, embedding, metadata, created_at, updated_at
		 FROM documents WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}

	scored := make([]*model.ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		if !doc.Metadata.Matches(filters) {
			continue
		}
		scored = append(scored, &model.ScoredDocument{
			Document: doc,
			Distance: CosineDistance(embedding, doc.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].Document.CreatedAt.After(scored[j].Document.CreatedAt)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *SQLite) ListDocumentsByTime(ctx context.Context, start, end time.Time, filters model.Metadata) ([]*model.Document, error) {
	docs, err := s.scanDocuments(ctx,
		`SELECT document_id, content, embedding, metadata, created_at, updated_at
		 FROM documents WHERE created_at >= ? AND created_at <= ?
		 ORDER BY created_at DESC`,
		encodeTime(start), encodeTime(end))
	if err != nil {
		return nil, err
	}

	filtered := make([]*model.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Metadata.Matches(filters) {
			filtered = append(filtered, doc)
		}
	}
	return filtered, nil
}

func (s *SQLite) scanDocuments(ctx context.Context, query string, args ...any) ([]*model.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query documents", goerr.T(model.TagInfrastructure))
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		var doc model.Document
		var meta sql.NullString
		var blob []byte
		var created, updated string
		if err := rows.Scan((*string)(&doc.ID), &doc.Content, &blob, &meta, &created, &updated); err != nil {
			return nil, goerr.Wrap(err, "failed to scan document", goerr.T(model.TagInfrastructure))
		}
		if err := decodeInto(meta, &doc.Metadata); err != nil {
			return nil, err
		}
		doc.Embedding = decodeVector(blob)
		if doc.CreatedAt, err = decodeTime(created); err != nil {
			return nil, err
		}
		if doc.UpdatedAt, err = decodeTime(updated); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate documents", goerr.T(model.TagInfrastructure))
	}
	return docs, nil
}

func (s *SQLite) PutApproval(ctx context.Context, record *model.ApprovalRecord) error {
	params, err := encodeMetadata(record.Parameters)
	if err != nil {
		return err
	}

	var resolvedAt any
	if record.ResolvedAt != nil {
		resolvedAt = encodeTime(*record.ResolvedAt)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO approvals (approval_id, action_type, description, tool_name, parameters,
		                        risk, confidence, state, requested_at, resolved_at, resolver)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(record.ID), record.ActionType, record.Description, record.ToolName, params,
		string(record.Risk), record.Confidence, string(record.State),
		encodeTime(record.RequestedAt), resolvedAt, record.Resolver)
	if err != nil {
		return goerr.Wrap(err, "failed to insert approval",
			goerr.V("approval_id", record.ID), goerr.T(model.TagInfrastructure))
	}
	return nil
}

func (s *SQLite) GetApproval(ctx context.Context, id model.ApprovalID) (*model.ApprovalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT approval_id, action_type, description, tool_name, parameters,
		        risk, confidence, state, requested_at, resolved_at, resolver
		 FROM approvals WHERE approval_id = ?`, string(id))

	record, err := scanApproval(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, goerr.Wrap(model.ErrApprovalNotFound, "approval not found", goerr.V("approval_id", id))
		}
		return nil, err
	}
	return record, nil
}

func (s *SQLite) ResolveApproval(ctx context.Context, id model.ApprovalID, state model.ApprovalState, resolver string, resolvedAt time.Time) (*model.ApprovalRecord, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET state = ?, resolved_at = ?, resolver = ?
		 WHERE approval_id = ? AND state = ?`,
		string(state), encodeTime(resolvedAt), resolver, string(id), string(model.ApprovalPending))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve approval",
			goerr.V("approval_id", id), goerr.T(model.TagInfrastructure))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to check resolution", goerr.T(model.TagInfrastructure))
	}
	if affected == 0 {
		// Either the record does not exist or it lost the race to an
		// earlier resolution. Distinguish by fetching.
		record, getErr := s.GetApproval(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, goerr.Wrap(model.ErrAlreadyResolved, "resolution rejected",
			goerr.V("approval_id", id), goerr.V("state", record.State))
	}

	return s.GetApproval(ctx, id)
}

func (s *SQLite) ListPendingApprovals(ctx context.Context) ([]*model.ApprovalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT approval_id, action_type, description, tool_name, parameters,
		        risk, confidence, state, requested_at, resolved_at, resolver
		 FROM approvals WHERE state = ? ORDER BY requested_at`, string(model.ApprovalPending))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query approvals", goerr.T(model.TagInfrastructure))
	}
	defer rows.Close()

	var records []*model.ApprovalRecord
	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate approvals", goerr.T(model.TagInfrastructure))
	}
	return records, nil
}

func (s *SQLite) Health(ctx context.Context) (*HealthStatus, error) {
	var version string
	if err := s.db.QueryRowContext(ctx, `SELECT sqlite_version()`).Scan(&version); err != nil {
		return nil, goerr.Wrap(err, "storage unreachable", goerr.T(model.TagInfrastructure))
	}

	return &HealthStatus{
		Healthy:            true,
		Backend:            "sqlite",
		VectorIndexVersion: "exact-scan/sqlite-" + version,
	}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanApproval(row scannable) (*model.ApprovalRecord, error) {
	var record model.ApprovalRecord
	var params, resolvedAt, resolver sql.NullString
	var requestedAt string

	err := row.Scan((*string)(&record.ID), &record.ActionType, &record.Description,
		&record.ToolName, &params, (*string)(&record.Risk), &record.Confidence,
		(*string)(&record.State), &requestedAt, &resolvedAt, &resolver)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, goerr.Wrap(err, "failed to scan approval", goerr.T(model.TagInfrastructure))
	}

	if err := decodeInto(params, &record.Parameters); err != nil {
		return nil, err
	}
	if record.RequestedAt, err = decodeTime(requestedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		ts, err := decodeTime(resolvedAt.String)
		if err != nil {
			return nil, err
		}
		record.ResolvedAt = &ts
	}
	if resolver.Valid {
		record.Resolver = resolver.String
	}
	return &record, nil
}

func encodeMetadata(meta model.Metadata) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode metadata", goerr.T(model.TagInvalidArgument))
	}
	return string(raw), nil
}

func decodeInto(raw sql.NullString, meta *model.Metadata) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), meta); err != nil {
		return goerr.Wrap(err, "failed to decode metadata", goerr.T(model.TagInfrastructure))
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// timeLayout is fixed-width so that lexicographic ORDER BY and range
// comparisons on the TEXT column agree with chronological order.
// RFC3339Nano would strip trailing fraction zeros and break that.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, goerr.Wrap(err, "failed to decode timestamp",
			goerr.V("raw", s), goerr.T(model.TagInfrastructure))
	}
	return t, nil
}
