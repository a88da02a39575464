package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	chatrepo "github.com/amparolegal/amparo-backend/internal/data/repos/chat"
	"github.com/amparolegal/amparo-backend/internal/domain"
	"github.com/amparolegal/amparo-backend/internal/pkg/dbctx"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
	"github.com/amparolegal/amparo-backend/internal/platform/apierr"
	"github.com/amparolegal/amparo-backend/internal/rag"
)

// ConversationService owns session lifecycle: create with a derived
// title, list, rename, soft-delete, and history reads for the
// orchestrator. All access is checked against the caller's role and
// ownership of the session.
type ConversationService interface {
	Create(ctx context.Context, userID uuid.UUID, firstMessage string) (*domain.Conversation, error)
	Get(ctx context.Context, userID uuid.UUID, role string, id uuid.UUID) (*domain.Conversation, error)
	List(ctx context.Context, userID uuid.UUID, role string, includeDeleted bool, limit int) ([]*domain.Conversation, error)
	Rename(ctx context.Context, userID uuid.UUID, role string, id uuid.UUID, title string) error
	SoftDelete(ctx context.Context, userID uuid.UUID, role string, id uuid.UUID) error
	Messages(ctx context.Context, userID uuid.UUID, role string, id uuid.UUID, limit int) ([]*domain.ConversationMessage, error)
	// History returns the recent turns as the orchestrator's snapshot.
	History(ctx context.Context, id uuid.UUID, limit int) ([]rag.HistoryMessage, error)
}

type conversationService struct {
	db            *gorm.DB
	log           *logger.Logger
	conversations chatrepo.ConversationRepo
	messages      chatrepo.MessageRepo
}

func NewConversationService(db *gorm.DB, log *logger.Logger, conversations chatrepo.ConversationRepo, messages chatrepo.MessageRepo) (ConversationService, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &conversationService{
		db:            db,
		log:           log.With("service", "ConversationService"),
		conversations: conversations,
		messages:      messages,
	}, nil
}

func (s *conversationService) Create(ctx context.Context, userID uuid.UUID, firstMessage string) (*domain.Conversation, error) {
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing user id"))
	}
	now := time.Now().UTC()
	row := &domain.Conversation{
		ID:            uuid.New(),
		UserID:        userID,
		Title:         rag.TitleFromFirstMessage(firstMessage),
		Status:        domain.ConversationStatusActive,
		Metadata:      datatypes.JSON([]byte("{}")),
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := s.conversations.Create(dbctx.Context{Ctx: ctx}, row)
	if err != nil {
		return nil, err
	}
	s.log.Info("conversation created", "conversation_id", created.ID, "user_id", userID)
	return created, nil
}

// authorize loads the conversation and checks role + ownership for the
// given action. Admins may act on any session.
func (s *conversationService) authorize(ctx context.Context, userID uuid.UUID, role string, id uuid.UUID, action string) (*domain.Conversation, error) {
	if !CanSession(role, action) {
		return nil, apierr.New(http.StatusForbidden, "forbidden", fmt.Errorf("role %q cannot %s sessions", role, action))
	}
	conv, err := s.conversations.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apierr.New(http.StatusNotFound, "not_found", fmt.Errorf("conversation %s not found", id))
	}
	if conv.UserID != userID && role != RoleAdmin {
		return nil, apierr.New(http.StatusNotFound, "not_found", fmt.Errorf("conversation %s not visible to user", id))
	}
	if conv.DeletedAt != nil && !CanSession(role, ActionViewDeleted) {
		return nil, apierr.New(http.StatusNotFound, "not_found", fmt.Errorf("conversation %s is deleted", id))
	}
	return conv, nil
}

func (s *conversationService) Get(ctx context.Context, userID uuid.UUID, role string, id uuid.UUID) (*domain.Conversation, error) {
	return s.authorize(ctx, userID, role, id, ActionRead)
}

func (s *conversationService) List(ctx context.Context, userID uuid.UUID, role string, includeDeleted bool, limit int) ([]*domain.Conversation, error) {
	if includeDeleted && !CanSession(role, ActionViewDeleted) {
		includeDeleted = false
	}
	return s.conversations.ListByUser(dbctx.Context{Ctx: ctx}, userID, includeDeleted, limit)
}

func (s *conversationService) Rename(ctx context.Context, userID uuid.UUID, role string, id uuid.UUID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return apierr.New(http.StatusBadRequest, "invalid_title", fmt.Errorf("title must not be empty"))
	}
	if _, err := s.authorize(ctx, userID, role, id, ActionRename); err != nil {
		return err
	}
	return s.conversations.UpdateFields(dbctx.Context{Ctx: ctx}, id, map[string]interface{}{
		"title": title,
	})
}

func (s *conversationService) SoftDelete(ctx context.Context, userID uuid.UUID, role string, id uuid.UUID) error {
	if _, err := s.authorize(ctx, userID, role, id, ActionDelete); err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.conversations.UpdateFields(dbctx.Context{Ctx: ctx}, id, map[string]interface{}{
		"status":     domain.ConversationStatusDeleted,
		"deleted_at": now,
	})
}

func (s *conversationService) Messages(ctx context.Context, userID uuid.UUID, role string, id uuid.UUID, limit int) ([]*domain.ConversationMessage, error) {
	if _, err := s.authorize(ctx, userID, role, id, ActionRead); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(dbctx.Context{Ctx: ctx}, id, limit)
}

func (s *conversationService) History(ctx context.Context, id uuid.UUID, limit int) ([]rag.HistoryMessage, error) {
	rows, err := s.messages.ListRecent(dbctx.Context{Ctx: ctx}, id, limit)
	if err != nil {
		return nil, err
	}
	out := make([]rag.HistoryMessage, 0, len(rows))
	for _, m := range rows {
		out = append(out, rag.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}
