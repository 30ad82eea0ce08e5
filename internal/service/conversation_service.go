package service

import (
	"context"

	"bunker-go/internal/model"
	"bunker-go/internal/repository"

	"gorm.io/gorm"
)

// ConversationService 提供会话的最小管理面：新建会话与读取消息历史。
// 仪表盘完整的 CRUD 界面不在核心范围内。
type ConversationService interface {
	// Create 在指定项目下新建一个会话（"new chat"）。
	Create(ctx context.Context, projectID, title, modelID string) (*model.Conversation, error)
	// Messages 按创建顺序返回会话的消息历史。
	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
}

type conversationService struct {
	conversationRepo repository.ConversationRepository
	projectRepo      repository.ProjectRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(conversationRepo repository.ConversationRepository, projectRepo repository.ProjectRepository) ConversationService {
	return &conversationService{
		conversationRepo: conversationRepo,
		projectRepo:      projectRepo,
	}
}

// Create 在指定项目下新建一个会话。
func (s *conversationService) Create(ctx context.Context, projectID, title, modelID string) (*model.Conversation, error) {
	if _, err := s.projectRepo.FindByID(ctx, projectID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	conv := &model.Conversation{
		ProjectID: projectID,
		Title:     title,
		Model:     modelID,
	}
	if err := s.conversationRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Messages 按创建顺序返回会话的消息历史。
func (s *conversationService) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if _, err := s.conversationRepo.FindByID(ctx, conversationID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return s.conversationRepo.ListMessages(ctx, conversationID)
}
