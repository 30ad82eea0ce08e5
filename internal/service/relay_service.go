package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"bunker-go/internal/config"
	"bunker-go/internal/model"
	"bunker-go/internal/repository"
	"bunker-go/pkg/bus"
	"bunker-go/pkg/log"
	"bunker-go/pkg/relay"
)

// OutboundPrefix 是出站中继消息的可解析前缀，同时承担回声抑制：
// 入站文本若以它开头，说明是系统自己发出的消息被回传，必须丢弃。
const OutboundPrefix = "[Bunker:"

// FormatOutbound 生成出站中继文本：项目前缀 + 正文，话题非空时追加上下文块。
func FormatOutbound(projectName, topic, text string) string {
	s := fmt.Sprintf("[Bunker:%s] %s", projectName, text)
	if topic != "" {
		s += fmt.Sprintf("\n\n📋 Context: Topic: %q", topic)
	}
	return s
}

// RelayClient 抽象出中继 Bot API 能力，测试用假实现替换。
// relay.Client 是它的生产实现。
type RelayClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	SetWebhook(ctx context.Context, url, secret string) error
	DeleteWebhook(ctx context.Context) error
	GetWebhookInfo(ctx context.Context) (*relay.WebhookInfo, error)
}

// RelayService 定义了中继桥的两个独立方向：出站发送与入站回调。
type RelayService interface {
	// CheckConfigured 校验出站所需配置，凭证与目标频道缺失是两类错误。
	CheckConfigured(ctx context.Context) error
	// SendToRelay 格式化并发送出站文本，返回中继侧消息 id。
	SendToRelay(ctx context.Context, projectID, projectName, conversationTitle, text string) (int64, error)
	// HandleInboundUpdate 处理一次入站回调。仅密钥不匹配返回 ErrWebhookUnauthorized，
	// 其余内部错误由调用方记录日志——回调边界始终以 200 应答。
	HandleInboundUpdate(ctx context.Context, update *relay.Update, secretHeader string) error
	// SetupWebhook 管理回调注册：action 为 set / delete / info。
	SetupWebhook(ctx context.Context, action, webhookURL string) (interface{}, error)
}

type relayService struct {
	creds            CredentialService
	conversationRepo repository.ConversationRepository
	linkRepo         repository.RelayLinkRepository
	broadcaster      *bus.Broadcaster
	// newClient 按凭证构造 Bot API 客户端，测试中替换为假实现。
	newClient func(token string) RelayClient
}

// NewRelayService 创建一个新的 RelayService 实例。
func NewRelayService(
	creds CredentialService,
	conversationRepo repository.ConversationRepository,
	linkRepo repository.RelayLinkRepository,
	broadcaster *bus.Broadcaster,
) RelayService {
	return &relayService{
		creds:            creds,
		conversationRepo: conversationRepo,
		linkRepo:         linkRepo,
		broadcaster:      broadcaster,
		newClient: func(token string) RelayClient {
			return relay.NewClient(config.Conf.Relay.APIBaseURL, token)
		},
	}
}

// CheckConfigured 校验出站所需配置。
func (s *relayService) CheckConfigured(ctx context.Context) error {
	if s.creds.RelayBotToken(ctx) == "" {
		return ErrRelayTokenMissing
	}
	if s.creds.RelayChatID(ctx) == 0 {
		return ErrRelayChatMissing
	}
	return nil
}

// SendToRelay 发送出站文本。发送成功后记录 频道→项目 关联，
// 供入站回调的会话归属解析使用；关联写入失败只记日志。
func (s *relayService) SendToRelay(ctx context.Context, projectID, projectName, conversationTitle, text string) (int64, error) {
	token := s.creds.RelayBotToken(ctx)
	if token == "" {
		return 0, ErrRelayTokenMissing
	}
	chatID := s.creds.RelayChatID(ctx)
	if chatID == 0 {
		return 0, ErrRelayChatMissing
	}

	outbound := FormatOutbound(projectName, conversationTitle, text)
	messageID, err := s.newClient(token).SendMessage(ctx, chatID, outbound)
	if err != nil {
		return 0, fmt.Errorf("中继发送失败: %w", err)
	}

	if err := s.linkRepo.LinkChannel(ctx, chatID, projectID); err != nil {
		log.Warnf("记录频道项目关联失败: %v", err)
	}
	return messageID, nil
}

// HandleInboundUpdate 处理一次入站回调，按固定顺序过滤与归属。
func (s *relayService) HandleInboundUpdate(ctx context.Context, update *relay.Update, secretHeader string) error {
	// 1. 密钥校验：配置了密钥且不匹配时拒绝，之后不做任何处理。
	if secret := s.creds.RelayWebhookSecret(ctx); secret != "" {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(secretHeader)) != 1 {
			return ErrWebhookUnauthorized
		}
	}

	// 2. 非文本更新直接丢弃，不是错误。
	msg := update.FirstText()
	if msg == nil {
		log.Debugf("中继更新不含文本，忽略: update_id=%d", update.UpdateID)
		return nil
	}

	// 3. 来源频道与配置的目标频道不一致时丢弃。
	chatID := s.creds.RelayChatID(ctx)
	if chatID == 0 || msg.Chat.ID != chatID {
		log.Debugf("中继更新来自未配置的频道 %d，忽略", msg.Chat.ID)
		return nil
	}

	// 4. 回声抑制：以出站前缀开头的消息是系统自己发的，不能当作回复。
	if strings.HasPrefix(msg.Text, OutboundPrefix) {
		log.Debugf("中继更新命中出站前缀，按回声忽略")
		return nil
	}

	// 5. 会话归属解析（尽力而为，没有可靠的关联 id）。
	conv, err := s.resolveConversation(ctx, msg.Chat.ID)
	if err != nil {
		return fmt.Errorf("会话归属解析失败: %w", err)
	}
	if conv == nil {
		// 系统里没有任何会话：确认并丢弃。
		log.Warnf("中继回复找不到归属会话，丢弃: %q", msg.Text)
		return nil
	}

	// 6. 落库为 assistant 消息并广播给该会话的订阅者。
	reply := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        msg.Text,
	}
	if err := s.conversationRepo.AppendMessage(ctx, reply); err != nil {
		return fmt.Errorf("中继回复落库失败: %w", err)
	}
	s.broadcaster.Publish(bus.Event{ConversationID: conv.ID, Message: reply})
	log.Infow("中继回复已归属", "conversationId", conv.ID, "messageId", reply.ID)
	return nil
}

// resolveConversation 按固定回退顺序选择归属会话：
// 关联项目 → 最近 5 个会话中最后一条是 user 的 → 全局最近 → 放弃。
func (s *relayService) resolveConversation(ctx context.Context, chatID int64) (*model.Conversation, error) {
	// a. 频道有项目关联时，取该项目下最近活跃的会话。
	projectID, err := s.linkRepo.LinkedProject(ctx, chatID)
	if err != nil {
		log.Warnf("查询频道项目关联失败: %v", err)
	} else if projectID != "" {
		conv, err := s.conversationRepo.MostRecentByProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
	}

	// b. 在最近 5 个会话里找第一个"最后一条消息是 user"的——近似"正在等回复"。
	recent, err := s.conversationRepo.MostRecent(ctx, 5)
	if err != nil {
		return nil, err
	}
	for i := range recent {
		last, err := s.conversationRepo.LastMessage(ctx, recent[i].ID)
		if err != nil {
			return nil, err
		}
		if last != nil && last.Role == model.RoleUser {
			return &recent[i], nil
		}
	}

	// c. 退而求其次：全局最近活跃的会话。
	if len(recent) > 0 {
		return &recent[0], nil
	}

	// d. 一个会话都没有。
	return nil, nil
}

// SetupWebhook 管理回调注册。
func (s *relayService) SetupWebhook(ctx context.Context, action, webhookURL string) (interface{}, error) {
	token := s.creds.RelayBotToken(ctx)
	if token == "" {
		return nil, ErrRelayTokenMissing
	}
	client := s.newClient(token)

	switch action {
	case "set":
		if webhookURL == "" {
			return nil, ErrWebhookURLMissing
		}
		if err := client.SetWebhook(ctx, webhookURL, s.creds.RelayWebhookSecret(ctx)); err != nil {
			return nil, err
		}
		return map[string]string{"status": "set", "url": webhookURL}, nil
	case "delete":
		if err := client.DeleteWebhook(ctx); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted"}, nil
	case "info":
		return client.GetWebhookInfo(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSetupAction, action)
	}
}
