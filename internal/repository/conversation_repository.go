// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"time"

	"bunker-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepository 定义了会话与消息的持久化操作。
// 消息历史只追加；会话的 updated_at 单调不减。
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	// AppendMessage 追加一条消息并把所属会话的 updated_at 抬升到消息时间。
	AppendMessage(ctx context.Context, msg *model.Message) error
	// ListMessages 按创建时间升序返回会话的全部消息。
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// LastMessage 返回会话最近一条消息；没有消息时返回 nil。
	LastMessage(ctx context.Context, conversationID string) (*model.Message, error)
	// UpdateModel 更新会话当前选择的模型标识。
	UpdateModel(ctx context.Context, conversationID, modelID string) error
	// MostRecent 按 updated_at 降序返回最多 limit 个会话。
	MostRecent(ctx context.Context, limit int) ([]model.Conversation, error)
	// MostRecentByProject 返回指定项目下最近活跃的会话；项目没有会话时返回 nil。
	MostRecentByProject(ctx context.Context, projectID string) (*model.Conversation, error)
}

// conversationRepository 是 ConversationRepository 接口的 GORM 实现。
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Create 在数据库中创建一个新的会话记录。
func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	return r.db.WithContext(ctx).Create(conv).Error
}

// FindByID 根据会话 ID 查找一个会话。
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage 追加一条消息。updated_at 只向前抬升，保持单调不减。
func (r *conversationRepository) AppendMessage(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ? AND updated_at <= ?", msg.ConversationID, msg.CreatedAt).
			Update("updated_at", msg.CreatedAt).Error
	})
}

// ListMessages 按创建时间升序返回会话的全部消息。
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// LastMessage 返回会话最近一条消息。
func (r *conversationRepository) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		First(&msg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateModel 更新会话当前选择的模型标识。
func (r *conversationRepository) UpdateModel(ctx context.Context, conversationID, modelID string) error {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("model", modelID).Error
}

// MostRecent 按 updated_at 降序返回最多 limit 个会话。
func (r *conversationRepository) MostRecent(ctx context.Context, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}

// MostRecentByProject 返回指定项目下最近活跃的会话。
func (r *conversationRepository) MostRecentByProject(ctx context.Context, projectID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("updated_at DESC").
		First(&conv).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
