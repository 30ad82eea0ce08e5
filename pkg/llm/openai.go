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

// openaiClient 对接 OpenAI 托管 API（chat/completions 接口的 SSE 流）。
type openaiClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAI 创建一个 OpenAI 托管适配器。
func NewOpenAI(baseURL, apiKey string) Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &openaiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

func (c *openaiClient) Tag() string {
	return "openai"
}

type openaiChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type openaiChatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Probe 托管后端不做网络探测，可用性取决于凭证是否就位。
func (c *openaiClient) Probe(ctx context.Context) bool {
	return c.apiKey != ""
}

// Models 返回静态模型清单。
func (c *openaiClient) Models(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{
		{ID: "gpt-4o", Name: "GPT-4o", Description: "多模态旗舰模型"},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", Description: "低成本日常模型"},
		{ID: "o3-mini", Name: "o3-mini", Description: "推理强化模型"},
	}, nil
}

// StreamChat 调用 /v1/chat/completions 并将 SSE 流中的增量内容写入 writer。
func (c *openaiClient) StreamChat(ctx context.Context, model string, messages []Message, writer ChunkWriter) error {
	reqBody := openaiChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
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
		return fmt.Errorf("%w: openai returned %s, body: %s", ErrUnavailable, resp.Status, string(bodyBytes))
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
