package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amparolegal/amparo-backend/internal/domain"
	"github.com/amparolegal/amparo-backend/internal/pkg/dbctx"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
)

type ConversationRepo interface {
	Create(dbc dbctx.Context, row *domain.Conversation) (*domain.Conversation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error)
	// LockByID takes a row lock so concurrent turns sequence their appends.
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, includeDeleted bool, limit int) ([]*domain.Conversation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: log.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *conversationRepo) Create(dbc dbctx.Context, row *domain.Conversation) (*domain.Conversation, error) {
	if row == nil {
		return nil, fmt.Errorf("missing conversation")
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing conversation id")
	}
	var row domain.Conversation
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *conversationRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing conversation id")
	}
	var row domain.Conversation
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *conversationRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, includeDeleted bool, limit int) ([]*domain.Conversation, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("user_id = ?", userID)
	if !includeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	var out []*domain.Conversation
	if err := q.Order("last_message_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conversationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing conversation id")
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}
