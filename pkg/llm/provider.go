// Package llm provides clients for the interchangeable AI backends.
package llm

import (
	"context"
	"errors"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChunkWriter 定义了流式分块的写出接口。
// 既可以是 HTTP 响应的包装，也可以是测试中的内存缓冲。
type ChunkWriter interface {
	WriteChunk(data []byte) error
}

// ModelInfo 描述一个可选模型。可用性由上层 catalog 计算，不在这里。
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Provider 定义了 AI 后端适配器的统一接口。
// StreamChat 每次调用都会打开一次新的生成，分块有限且不可重放。
type Provider interface {
	// Tag 返回后端标识（如 "ollama"、"anthropic"）。
	Tag() string
	// Models 返回该后端的可选模型列表。本地后端是动态查询，托管后端是静态清单。
	Models(ctx context.Context) ([]ModelInfo, error)
	// Probe 探测后端是否可达；用于 catalog 的可用性标注，失败不是错误。
	Probe(ctx context.Context) bool
	// StreamChat 以 role-based 消息调用聊天接口，并将流式分块按生成顺序写入 writer。
	StreamChat(ctx context.Context, model string, messages []Message, writer ChunkWriter) error
}

// ErrUnavailable 表示后端不可达或返回了异常响应。
// 适配器绝不允许静默返回空回复，连接失败必须以此错误区分。
var ErrUnavailable = errors.New("provider unavailable")

// probeTimeout 是可达性探测的超时。
const probeTimeoutSeconds = 3
