package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ollamaClient 对接本地 Ollama 推理服务。不需要任何凭证，
// 是否可用只取决于服务是否可达（探测超时约 3 秒）。
type ollamaClient struct {
	baseURL string
	client  *http.Client
}

// NewOllama 创建一个本地推理适配器。
func NewOllama(baseURL string) Provider {
	return &ollamaClient{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (c *ollamaClient) Tag() string {
	return "ollama"
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ollamaChatChunk 是 /api/chat 流式响应中的一行 NDJSON。
type ollamaChatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Probe 探测本地服务是否可达。不可达不是错误，只是不可用。
func (c *ollamaClient) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeoutSeconds*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Models 向 /api/tags 查询本地已拉取的模型列表。
func (c *ollamaClient) Models(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeoutSeconds*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tags request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ollama tags returned %s", ErrUnavailable, resp.Status)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, ModelInfo{
			ID:          m.Name,
			Name:        m.Name,
			Description: "本地 Ollama 模型",
		})
	}
	return models, nil
}

// StreamChat 调用 /api/chat 并将 NDJSON 流中的每个分块写入 writer。
func (c *ollamaClient) StreamChat(ctx context.Context, model string, messages []Message, writer ChunkWriter) error {
	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: ollama returned %s, body: %s", ErrUnavailable, resp.Status, string(bodyBytes))
	}

	// Ollama 的流是逐行 NDJSON，done=true 表示生成结束
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var chunk ollamaChatChunk
			if jsonErr := json.Unmarshal(line, &chunk); jsonErr == nil {
				if chunk.Message.Content != "" {
					if werr := writer.WriteChunk([]byte(chunk.Message.Content)); werr != nil {
						return fmt.Errorf("failed to write chunk: %w", werr)
					}
				}
				if chunk.Done {
					return nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}
	}
}
