package audit

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/amparolegal/amparo-backend/internal/domain"
	"github.com/amparolegal/amparo-backend/internal/pkg/dbctx"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
)

type Repo interface {
	Append(dbc dbctx.Context, row *domain.AuditEvent) (*domain.AuditEvent, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.AuditEvent, error)
}

type repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, log *logger.Logger) Repo {
	return &repo{db: db, log: log.With("repo", "AuditRepo")}
}

func (r *repo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *repo) Append(dbc dbctx.Context, row *domain.AuditEvent) (*domain.AuditEvent, error) {
	if row == nil {
		return nil, fmt.Errorf("missing audit event")
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *repo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.AuditEvent, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*domain.AuditEvent
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.AuditEvent{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
