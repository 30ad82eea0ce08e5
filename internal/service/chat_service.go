package service

import (
	"context"
	"strings"

	"bunker-go/internal/config"
	"bunker-go/internal/model"
	"bunker-go/internal/repository"
	"bunker-go/pkg/llm"
	"bunker-go/pkg/log"

	"gorm.io/gorm"
)

// SendResult 是一次发送的结果。
// 中继路径立即返回 pending 确认，助手回复稍后经回调路径到达；
// 流式路径在流结束后返回已落库的助手消息。
type SendResult struct {
	Pending          bool
	UserMessageID    string
	RelayMessageID   int64
	AssistantMessage *model.Message
}

// ProviderFactory 按变体构造适配器。测试中替换为假实现。
type ProviderFactory func(variant llm.Variant, apiKey, sessionKey string) llm.Provider

// ChatService 是会话编排器：接收用户出站消息，落库，选择
// Provider 路径或中继路径，调用对应传输，并把回复落库。
type ChatService interface {
	// SendMessage 处理一条用户消息。writer 接收流式分块（仅 Provider 路径）。
	SendMessage(ctx context.Context, conversationID, text, modelID, systemContext string, writer llm.ChunkWriter) (*SendResult, error)
}

type chatService struct {
	conversationRepo repository.ConversationRepository
	projectRepo      repository.ProjectRepository
	relayService     RelayService
	creds            CredentialService
	providers        ProviderFactory
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	conversationRepo repository.ConversationRepository,
	projectRepo repository.ProjectRepository,
	relayService RelayService,
	creds CredentialService,
) ChatService {
	return &chatService{
		conversationRepo: conversationRepo,
		projectRepo:      projectRepo,
		relayService:     relayService,
		creds:            creds,
		providers:        defaultProviderFactory,
	}
}

// defaultProviderFactory 按配置构造生产适配器。
func defaultProviderFactory(variant llm.Variant, apiKey, sessionKey string) llm.Provider {
	cfg := config.Conf.Providers
	switch variant {
	case llm.VariantAnthropic:
		return llm.NewAnthropic(cfg.Anthropic.BaseURL, apiKey)
	case llm.VariantOpenAI:
		return llm.NewOpenAI(cfg.OpenAI.BaseURL, apiKey)
	case llm.VariantGateway:
		return llm.NewGateway(cfg.Clawdbot.BaseURL, apiKey, cfg.Clawdbot.AgentID, sessionKey)
	default:
		return llm.NewOllama(cfg.Ollama.BaseURL)
	}
}

// SendMessage 处理一条用户消息。
// 校验与配置检查全部通过之前不产生任何持久化副作用。
func (s *chatService) SendMessage(ctx context.Context, conversationID, text, modelID, systemContext string, writer llm.ChunkWriter) (*SendResult, error) {
	// 1. 校验会话存在。
	conv, err := s.conversationRepo.FindByID(ctx, conversationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	// 2. 路由：模型标识 → 唯一的适配器变体。
	variant, effectiveModel := llm.Resolve(modelID)

	if variant == llm.VariantRelay {
		return s.sendViaRelay(ctx, conv, text)
	}
	return s.sendViaProvider(ctx, conv, variant, effectiveModel, modelID, text, systemContext, writer)
}

// sendViaRelay 是发后即忘的一半：用户消息落库后交给中继通道，
// 助手回复不在本次请求内产生，稍后由回调路径落库并广播。
func (s *chatService) sendViaRelay(ctx context.Context, conv *model.Conversation, text string) (*SendResult, error) {
	// 配置检查先于任何持久化。
	if err := s.relayService.CheckConfigured(ctx); err != nil {
		return nil, err
	}

	project, err := s.projectRepo.FindByID(ctx, conv.ProjectID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	userMsg := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        text,
	}
	if err := s.conversationRepo.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	relayMessageID, err := s.relayService.SendToRelay(ctx, project.ID, project.Name, conv.Title, text)
	if err != nil {
		return nil, err
	}

	return &SendResult{
		Pending:        true,
		UserMessageID:  userMsg.ID,
		RelayMessageID: relayMessageID,
	}, nil
}

// sendViaProvider 走流式生成：凭证检查 → 用户消息落库 → 组装上下文 →
// 流式调用 → 流完整结束后将全文落库为一条 assistant 消息。
func (s *chatService) sendViaProvider(ctx context.Context, conv *model.Conversation, variant llm.Variant, effectiveModel, selectedModel, text, systemContext string, writer llm.ChunkWriter) (*SendResult, error) {
	// 托管后端的凭证缺失在落库之前拦截；本地变体不需要凭证。
	apiKey := s.creds.APIKey(ctx, variant.Tag())
	if apiKey == "" && (variant == llm.VariantAnthropic || variant == llm.VariantOpenAI) {
		return nil, &NoAPIKeyError{Provider: variant.Tag()}
	}

	// 先读历史再落库新消息，组装时把新消息放在最后。
	history, err := s.conversationRepo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	userMsg := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        text,
	}
	if err := s.conversationRepo.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	messages := composeContext(systemContext, history, text)

	sessionKey := llm.SessionKey(conv.ProjectID, conv.ID)
	provider := s.providers(variant, apiKey, sessionKey)

	// 拦截分块：累积全文的同时按生成顺序转发给客户端。
	interceptor := &chunkInterceptor{downstream: writer}
	if err := provider.StreamChat(ctx, effectiveModel, messages, interceptor); err != nil {
		// 流中途失败不落库任何半截回复。
		return nil, err
	}

	fullAnswer := interceptor.builder.String()
	reply := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        fullAnswer,
	}
	// 使用后台上下文：流已经成功结束，即便客户端随后断开也要保存结果。
	saveCtx := context.Background()
	if err := s.conversationRepo.AppendMessage(saveCtx, reply); err != nil {
		log.Errorf("助手回复落库失败: %v", err)
		return nil, err
	}
	if err := s.conversationRepo.UpdateModel(saveCtx, conv.ID, selectedModel); err != nil {
		log.Warnf("更新会话模型失败: %v", err)
	}

	return &SendResult{
		UserMessageID:    userMsg.ID,
		AssistantMessage: reply,
	}, nil
}

// composeContext 组装发给后端的有序上下文：
// 可选的 system 上下文在最前，然后是既有历史中的非 system 消息（按创建顺序），
// 新的用户消息放在最后。system 角色的历史消息不进入上下文窗口。
func composeContext(systemContext string, history []model.Message, userInput string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if systemContext != "" {
		msgs = append(msgs, llm.Message{Role: model.RoleSystem, Content: systemContext})
	}
	for _, m := range history {
		if m.Role == model.RoleSystem {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: model.RoleUser, Content: userInput})
	return msgs
}

// chunkInterceptor 是对 ChunkWriter 的封装，用于在转发的同时捕获完整答案。
type chunkInterceptor struct {
	downstream llm.ChunkWriter
	builder    strings.Builder
}

// WriteChunk 满足 llm.ChunkWriter 接口。
func (w *chunkInterceptor) WriteChunk(data []byte) error {
	w.builder.Write(data)
	if w.downstream != nil {
		return w.downstream.WriteChunk(data)
	}
	return nil
}
