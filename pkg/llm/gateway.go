package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SentinelGatewayKey 是网关凭证缺省时使用的哨兵值，允许匿名访问本地网关。
const SentinelGatewayKey = "clawdbot-local"

// gatewayClient 对接网关型 Agent 后端（OpenAI 兼容协议）。
// 与托管后端不同，它额外携带 agent 标识与会话键：同一会话键的多轮调用
// 在网关侧复用同一份上游记忆。
type gatewayClient struct {
	baseURL    string
	apiKey     string
	agentID    string
	sessionKey string
	client     *http.Client
}

// NewGateway 创建一个网关适配器。sessionKey 用 SessionKey 推导，可为空。
func NewGateway(baseURL, apiKey, agentID, sessionKey string) Provider {
	if apiKey == "" {
		apiKey = SentinelGatewayKey
	}
	if agentID == "" {
		agentID = "main"
	}
	return &gatewayClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		agentID:    agentID,
		sessionKey: sessionKey,
		client:     &http.Client{},
	}
}

// SessionKey 推导网关侧多轮记忆的会话键。
// 同一会话内的每条消息都必须得到同一个键，才能复用同一个上游 session。
func SessionKey(projectID, conversationID string) string {
	if conversationID == "" {
		return "bunker:" + projectID
	}
	return "bunker:" + projectID + ":" + conversationID
}

func (c *gatewayClient) Tag() string {
	return "clawdbot"
}

type gatewayChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	// User 字段承载会话键，网关按它隔离多轮记忆。
	User string `json:"user,omitempty"`
}

// Probe 探测网关是否可达（哨兵凭证也允许探测）。
func (c *gatewayClient) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeoutSeconds*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Models 网关对外只暴露 agent 入口，不枚举底层模型。
func (c *gatewayClient) Models(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{
		{ID: DefaultGatewayModel, Name: "Clawdbot Agent", Description: "带上游会话记忆的 Agent 网关"},
	}, nil
}

// StreamChat 以 OpenAI 兼容协议调用网关。model 形如 "clawdbot:<agent>"，
// 冒号后的部分覆盖配置的 agent 标识。
func (c *gatewayClient) StreamChat(ctx context.Context, model string, messages []Message, writer ChunkWriter) error {
	agent := c.agentID
	if _, rest, ok := strings.Cut(model, ":"); ok && rest != "" {
		agent = rest
	}

	reqBody := gatewayChatRequest{
		Model:    agent,
		Messages: messages,
		Stream:   true,
		User:     c.sessionKey,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: gateway returned %s, body: %s", ErrUnavailable, resp.Status, string(bodyBytes))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				break
			}

			var chunk openaiChatChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if werr := writer.WriteChunk([]byte(chunk.Choices[0].Delta.Content)); werr != nil {
					return fmt.Errorf("failed to write chunk: %w", werr)
				}
			}
		}
	}
	return nil
}
