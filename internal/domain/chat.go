package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Conversation is a research session. Messages are append-only; deletion is
// a soft-delete so the audit trail stays intact.
type Conversation struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title  string `gorm:"type:text;not null" json:"title"`
	Status string `gorm:"type:text;not null;default:'active';index" json:"status"`

	Metadata datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	NextSeq       int64      `gorm:"not null;default:0" json:"next_seq"`
	LastMessageAt time.Time  `gorm:"not null;index" json:"last_message_at"`
	DeletedAt     *time.Time `gorm:"index" json:"deleted_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversation" }

const (
	ConversationStatusActive  = "active"
	ConversationStatusDeleted = "deleted"
)

// Message roles. "tool" is reserved for future tool-call turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type ConversationMessage struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_conversation_message_seq" json:"conversation_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Seq     int64  `gorm:"not null;index:idx_conversation_message_seq" json:"seq"`
	Role    string `gorm:"type:text;not null" json:"role"`
	Content string `gorm:"type:text;not null" json:"content"`

	Metadata datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ConversationMessage) TableName() string { return "conversation_message" }

// RetrievalEvent records every retrieval performed for a conversation,
// including the resolved query and the serialized result payload. Written
// before the answer is persisted so failed turns still leave a trail.
type RetrievalEvent struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Query     string `gorm:"type:text;not null" json:"query"`
	QueryType string `gorm:"type:text;not null" json:"query_type"`

	Results       datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"results"`
	LatencyMs     int64          `gorm:"not null;default:0" json:"latency_ms"`
	LowConfidence bool           `gorm:"not null;default:false" json:"low_confidence"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (RetrievalEvent) TableName() string { return "retrieval_event" }

type AuditEvent struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID *uuid.UUID `gorm:"type:uuid;index" json:"conversation_id,omitempty"`
	UserID         *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`

	EventType string         `gorm:"type:text;not null;index" json:"event_type"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (AuditEvent) TableName() string { return "audit_event" }
