package chat

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/amparolegal/amparo-backend/internal/domain"
	"github.com/amparolegal/amparo-backend/internal/pkg/dbctx"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
)

type RetrievalEventRepo interface {
	Create(dbc dbctx.Context, row *domain.RetrievalEvent) (*domain.RetrievalEvent, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.RetrievalEvent, error)
}

type retrievalEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRetrievalEventRepo(db *gorm.DB, log *logger.Logger) RetrievalEventRepo {
	return &retrievalEventRepo{db: db, log: log.With("repo", "RetrievalEventRepo")}
}

func (r *retrievalEventRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *retrievalEventRepo) Create(dbc dbctx.Context, row *domain.RetrievalEvent) (*domain.RetrievalEvent, error) {
	if row == nil {
		return nil, fmt.Errorf("missing retrieval event")
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *retrievalEventRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.RetrievalEvent, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*domain.RetrievalEvent
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.RetrievalEvent{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
