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
)

// anthropicClient 对接 Anthropic 托管 API（Messages 接口的 SSE 流）。
// 凭证缺失属于配置错误，应在进入适配器之前被拦截。
type anthropicClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewAnthropic 创建一个 Anthropic 托管适配器。
func NewAnthropic(baseURL, apiKey string) Provider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &anthropicClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

func (c *anthropicClient) Tag() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
}

// anthropicEvent 只解析 content_block_delta 事件中需要的字段。
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// Probe 托管后端不做网络探测，可用性取决于凭证是否就位。
func (c *anthropicClient) Probe(ctx context.Context) bool {
	return c.apiKey != ""
}

// Models 返回静态模型清单。
func (c *anthropicClient) Models(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", Description: "平衡质量与速度的主力模型"},
		{ID: "claude-3-7-sonnet-20250219", Name: "Claude 3.7 Sonnet", Description: "上一代 Sonnet"},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", Description: "低延迟轻量模型"},
	}, nil
}

// StreamChat 调用 /v1/messages 并将 SSE 流中的文本增量写入 writer。
// Anthropic 协议要求 system 提示走独立字段，这里将首条 system 消息剥离出来。
func (c *anthropicClient) StreamChat(ctx context.Context, model string, messages []Message, writer ChunkWriter) error {
	reqBody := anthropicRequest{
		Model:     model,
		MaxTokens: 4096,
		Stream:    true,
	}
	for _, m := range messages {
		if m.Role == "system" && reqBody.System == "" {
			reqBody.System = m.Content
			continue
		}
		reqBody.Messages = append(reqBody.Messages, m)
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: anthropic returned %s, body: %s", ErrUnavailable, resp.Status, string(bodyBytes))
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

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text != "" {
				if werr := writer.WriteChunk([]byte(ev.Delta.Text)); werr != nil {
					return fmt.Errorf("failed to write chunk: %w", werr)
				}
			}
		case "message_stop":
			return nil
		}
	}
	return nil
}
