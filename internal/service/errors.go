// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"
)

// 会话路由核心的错误分类。
// 校验错误与配置错误必须在任何持久化副作用之前被拦截。
var (
	// ErrConversationNotFound 目标会话不存在。
	ErrConversationNotFound = errors.New("会话不存在")
	// ErrProjectNotFound 目标项目不存在。
	ErrProjectNotFound = errors.New("项目不存在")
	// ErrRelayTokenMissing 中继 Bot 凭证未配置。与目标频道缺失是两类配置错误，必须分开报告。
	ErrRelayTokenMissing = errors.New("中继 Bot 凭证未配置，请设置 TELEGRAM_BOT_TOKEN")
	// ErrRelayChatMissing 中继目标频道未配置。
	ErrRelayChatMissing = errors.New("中继目标频道未配置，请设置 TELEGRAM_CHAT_ID")
	// ErrWebhookUnauthorized 回调密钥不匹配。
	ErrWebhookUnauthorized = errors.New("webhook 密钥不匹配")
	// ErrWebhookURLMissing set 动作缺少 webhookUrl，属于请求校验错误。
	ErrWebhookURLMissing = errors.New("webhookUrl 不能为空")
	// ErrUnknownSetupAction 未知的回调管理动作。
	ErrUnknownSetupAction = errors.New("未知的 action")
)

// NoAPIKeyError 表示某个托管后端缺少 API Key。
// 属于配置错误而不是运行时故障，必须在发起生成调用之前拦截。
type NoAPIKeyError struct {
	Provider string
}

func (e *NoAPIKeyError) Error() string {
	return fmt.Sprintf("缺少 %s 的 API Key，请在环境变量或设置中配置", e.Provider)
}
