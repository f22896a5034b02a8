package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// AutoCreatedOwner is set as the owner of sessions provisioned implicitly
// by a message write to an unknown session.
const AutoCreatedOwner = "auto-created"

// Session represents a conversational container owned by a single agent or
// user. Sessions are never deleted in v1.
type Session struct {
	ID        SessionID
	Owner     string
	Metadata  Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the session is well-formed before it is persisted
func (s *Session) Validate() error {
	if strings.TrimSpace(s.Owner) == "" {
		return ErrEmptyOwner
	}
	return s.Metadata.Validate()
}

type MessageID string

// NewMessageID generates a new time-ordered MessageID. ULIDs sort by
// creation time, which gives messages a monotonic insertion order.
func NewMessageID() MessageID {
	return MessageID(ulid.Make().String())
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Validate checks if the role is in the closed set
func (r Role) Validate() error {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	default:
		return ErrInvalidRole
	}
}

// Message is a single utterance within a session. Messages are immutable
// once written; ordering is by creation time with the ULID id as tiebreak.
type Message struct {
	ID        MessageID
	SessionID SessionID
	Role      Role
	Content   string
	Metadata  Metadata
	CreatedAt time.Time
}

// Validate checks the message is well-formed before it is persisted
func (m *Message) Validate() error {
	if m.SessionID == "" {
		return ErrSessionNotFound
	}
	if err := m.Role.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	return m.Metadata.Validate()
}
