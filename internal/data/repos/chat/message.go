package chat

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/amparolegal/amparo-backend/internal/domain"
	"github.com/amparolegal/amparo-backend/internal/pkg/dbctx"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, rows []*domain.ConversationMessage) ([]*domain.ConversationMessage, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.ConversationMessage, error)
	ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.ConversationMessage, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *messageRepo) Create(dbc dbctx.Context, rows []*domain.ConversationMessage) ([]*domain.ConversationMessage, error) {
	if len(rows) == 0 {
		return []*domain.ConversationMessage{}, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *messageRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.ConversationMessage, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*domain.ConversationMessage
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.ConversationMessage{}).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecent returns the newest messages in ascending seq order.
func (r *messageRepo) ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.ConversationMessage, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*domain.ConversationMessage
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.ConversationMessage{}).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
