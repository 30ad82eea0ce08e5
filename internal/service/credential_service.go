package service

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"bunker-go/internal/config"
	"bunker-go/internal/repository"
	"bunker-go/pkg/log"
)

// CredentialService 解析各后端与中继通道需要的凭证/配置。
// 解析优先级固定为：环境变量 > settings 表 > integrations 表 > 配置文件。
// 对核心而言这些都是只读的进程级配置。
type CredentialService interface {
	// APIKey 返回某个后端的 API Key；未配置时返回空串（由调用方决定是否算错误）。
	APIKey(ctx context.Context, provider string) string
	// RelayBotToken 返回中继 Bot 凭证；未配置时返回空串。
	RelayBotToken(ctx context.Context) string
	// RelayChatID 返回中继目标频道 id；未配置时返回 0。
	RelayChatID(ctx context.Context) int64
	// RelayWebhookSecret 返回回调密钥；未配置时返回空串（表示不校验）。
	RelayWebhookSecret(ctx context.Context) string
}

type credentialService struct {
	settingRepo repository.SettingRepository
}

// NewCredentialService 创建一个新的 CredentialService 实例。
func NewCredentialService(settingRepo repository.SettingRepository) CredentialService {
	return &credentialService{settingRepo: settingRepo}
}

// 各后端的环境变量名。
var providerEnvNames = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"clawdbot":  "CLAWDBOT_API_KEY",
}

// integrationConfig 是 integrations 表中 Config 字段的通用结构。
type integrationConfig struct {
	APIKey   string `json:"apiKey"`
	BotToken string `json:"botToken"`
	ChatID   string `json:"chatId"`
}

// resolve 依次尝试 环境变量 → settings 表 → integrations 表，返回第一个非空值。
func (s *credentialService) resolve(ctx context.Context, envName, settingKey, provider string, fromIntegration func(integrationConfig) string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	if v, err := s.settingRepo.GetValue(ctx, settingKey); err != nil {
		log.Warnf("读取设置 %s 失败: %v", settingKey, err)
	} else if v != "" {
		return v
	}
	raw, err := s.settingRepo.IntegrationConfig(ctx, provider)
	if err != nil {
		log.Warnf("读取 %s 接入配置失败: %v", provider, err)
		return ""
	}
	if raw == "" {
		return ""
	}
	var cfg integrationConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		log.Warnf("解析 %s 接入配置失败: %v", provider, err)
		return ""
	}
	return fromIntegration(cfg)
}

// APIKey 返回某个后端的 API Key。
func (s *credentialService) APIKey(ctx context.Context, provider string) string {
	envName := providerEnvNames[provider]
	key := s.resolve(ctx, envName, provider+"_api_key", provider,
		func(c integrationConfig) string { return c.APIKey })
	if key != "" {
		return key
	}
	// 最后回退到配置文件
	switch provider {
	case "anthropic":
		return config.Conf.Providers.Anthropic.APIKey
	case "openai":
		return config.Conf.Providers.OpenAI.APIKey
	case "clawdbot":
		return config.Conf.Providers.Clawdbot.APIKey
	}
	return ""
}

// RelayBotToken 返回中继 Bot 凭证。
func (s *credentialService) RelayBotToken(ctx context.Context) string {
	token := s.resolve(ctx, "TELEGRAM_BOT_TOKEN", "telegram_bot_token", "telegram",
		func(c integrationConfig) string { return c.BotToken })
	if token != "" {
		return token
	}
	return config.Conf.Relay.BotToken
}

// RelayChatID 返回中继目标频道 id。
func (s *credentialService) RelayChatID(ctx context.Context) int64 {
	raw := s.resolve(ctx, "TELEGRAM_CHAT_ID", "telegram_chat_id", "telegram",
		func(c integrationConfig) string { return c.ChatID })
	if raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Warnf("中继频道 id 不是合法整数: %q", raw)
			return 0
		}
		return id
	}
	return config.Conf.Relay.ChatID
}

// RelayWebhookSecret 返回回调密钥。
func (s *credentialService) RelayWebhookSecret(ctx context.Context) string {
	if v := os.Getenv("TELEGRAM_WEBHOOK_SECRET"); v != "" {
		return v
	}
	if v, err := s.settingRepo.GetValue(ctx, "telegram_webhook_secret"); err == nil && v != "" {
		return v
	}
	return config.Conf.Relay.WebhookSecret
}
