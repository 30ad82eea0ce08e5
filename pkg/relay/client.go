// Package relay provides a client for the Telegram Bot API,
// used as the bot-mediated reply channel of the dashboard.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SecretTokenHeader 是 Telegram 回调携带 webhook 密钥的请求头。
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Client 是 Telegram Bot API 的最小客户端。
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient 创建一个 Bot API 客户端。baseURL 为空时使用官方地址。
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// apiResponse 是 Bot API 的统一响应信封。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// sentMessage 只解析发送结果中需要的 message_id。
type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

// WebhookInfo 描述当前注册的 webhook 状态。
type WebhookInfo struct {
	URL                  string `json:"url"`
	PendingUpdateCount   int    `json:"pending_update_count"`
	LastErrorDate        int64  `json:"last_error_date"`
	LastErrorMessage     string `json:"last_error_message"`
	MaxConnections       int    `json:"max_connections"`
	IPAddress            string `json:"ip_address"`
	HasCustomCertificate bool   `json:"has_custom_certificate"`
}

// call 调用一个 Bot API 方法并解析统一信封。
func (c *Client) call(ctx context.Context, method string, payload interface{}) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", method, err)
		}
		body = bytes.NewReader(b)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("telegram %s failed: %s", method, envelope.Description)
	}
	return envelope.Result, nil
}

// SendMessage 向目标频道发送一条文本消息，返回中继侧的消息 id。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	result, err := c.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return 0, err
	}
	var sent sentMessage
	if err := json.Unmarshal(result, &sent); err != nil {
		return 0, fmt.Errorf("failed to decode sent message: %w", err)
	}
	return sent.MessageID, nil
}

// SetWebhook 注册回调地址。secret 非空时 Telegram 会在每次回调中携带
// SecretTokenHeader 请求头。
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]interface{}{"url": url}
	if secret != "" {
		payload["secret_token"] = secret
	}
	_, err := c.call(ctx, "setWebhook", payload)
	return err
}

// DeleteWebhook 注销回调地址。
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.call(ctx, "deleteWebhook", nil)
	return err
}

// GetWebhookInfo 查询当前 webhook 注册状态。
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	result, err := c.call(ctx, "getWebhookInfo", nil)
	if err != nil {
		return nil, err
	}
	var info WebhookInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("failed to decode webhook info: %w", err)
	}
	return &info, nil
}
