package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/amparolegal/amparo-backend/internal/data/repos/audit"
	chatrepo "github.com/amparolegal/amparo-backend/internal/data/repos/chat"
	"github.com/amparolegal/amparo-backend/internal/domain"
	"github.com/amparolegal/amparo-backend/internal/pkg/dbctx"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
	"github.com/amparolegal/amparo-backend/internal/rag"
)

// ChatStore adapts the gorm repositories to the append-only storage
// surface the orchestrator consumes. Message sequence numbers are
// allocated under a conversation row lock so concurrent turns get
// distinct, monotonically increasing seqs.
type ChatStore struct {
	db            *gorm.DB
	log           *logger.Logger
	conversations chatrepo.ConversationRepo
	messages      chatrepo.MessageRepo
	retrievals    chatrepo.RetrievalEventRepo
	audits        audit.Repo
}

func NewChatStore(db *gorm.DB, log *logger.Logger, conversations chatrepo.ConversationRepo, messages chatrepo.MessageRepo, retrievals chatrepo.RetrievalEventRepo, audits audit.Repo) (*ChatStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ChatStore{
		db:            db,
		log:           log.With("service", "ChatStore"),
		conversations: conversations,
		messages:      messages,
		retrievals:    retrievals,
		audits:        audits,
	}, nil
}

func marshalJSONB(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON([]byte("{}"))
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

func (s *ChatStore) AppendMessage(ctx context.Context, conversationID, userID uuid.UUID, role, content string, metadata map[string]any) (uuid.UUID, error) {
	if conversationID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("missing conversation id")
	}
	var messageID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		conv, err := s.conversations.LockByID(dbc, conversationID)
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("conversation %s not found", conversationID)
		}
		now := time.Now().UTC()
		row := &domain.ConversationMessage{
			ID:             uuid.New(),
			ConversationID: conversationID,
			UserID:         userID,
			Seq:            conv.NextSeq,
			Role:           role,
			Content:        content,
			Metadata:       marshalJSONB(metadata),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, err := s.messages.Create(dbc, []*domain.ConversationMessage{row}); err != nil {
			return err
		}
		if err := s.conversations.UpdateFields(dbc, conversationID, map[string]interface{}{
			"next_seq":        conv.NextSeq + 1,
			"last_message_at": now,
		}); err != nil {
			return err
		}
		messageID = row.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return messageID, nil
}

func (s *ChatStore) AppendRetrievalEvent(ctx context.Context, conversationID, userID uuid.UUID, query, queryType string, results *rag.RetrievalResult) error {
	if conversationID == uuid.Nil {
		return fmt.Errorf("missing conversation id")
	}
	row := &domain.RetrievalEvent{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         userID,
		Query:          query,
		QueryType:      queryType,
		Results:        datatypes.JSON([]byte("[]")),
		CreatedAt:      time.Now().UTC(),
	}
	if results != nil {
		row.Results = marshalJSONB(results.Citations)
		row.LatencyMs = results.LatencyMs
		row.LowConfidence = results.LowConfidence
	}
	_, err := s.retrievals.Create(dbctx.Context{Ctx: ctx}, row)
	return err
}

func (s *ChatStore) AppendEvent(ctx context.Context, conversationID, userID *uuid.UUID, eventType string, payload map[string]any) (uuid.UUID, error) {
	row := &domain.AuditEvent{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         userID,
		EventType:      eventType,
		Payload:        marshalJSONB(payload),
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := s.audits.Append(dbctx.Context{Ctx: ctx}, row); err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

var (
	_ rag.ConversationStore = (*ChatStore)(nil)
	_ rag.AuditSink         = (*ChatStore)(nil)
)
