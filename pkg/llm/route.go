package llm

import "strings"

// Variant 标识一个后端适配器变体。集合是封闭的，路由时穷尽匹配。
type Variant int

const (
	// VariantLocal 本地推理服务（Ollama），兜底变体。
	VariantLocal Variant = iota
	// VariantAnthropic 托管 API 后端 A。
	VariantAnthropic
	// VariantOpenAI 托管 API 后端 B。
	VariantOpenAI
	// VariantGateway 网关型 Agent 后端。
	VariantGateway
	// VariantRelay 中继通道，完全绕过 Provider 适配层。
	VariantRelay
)

// DefaultGatewayModel 是网关命名空间的缺省模型标识。
const DefaultGatewayModel = "clawdbot:main"

// Tag 返回变体的后端标识。
func (v Variant) Tag() string {
	switch v {
	case VariantAnthropic:
		return "anthropic"
	case VariantOpenAI:
		return "openai"
	case VariantGateway:
		return "clawdbot"
	case VariantRelay:
		return "telegram"
	default:
		return "ollama"
	}
}

// Resolve 将客户端选择的模型标识映射到唯一的适配器变体，并返回生效的模型标识。
// 这是一个纯函数且全域有定义：任何字符串都会路由到某个变体，
// 未识别的标识一律落到本地推理变体，路由永不失败。
func Resolve(modelID string) (Variant, string) {
	switch {
	case strings.HasPrefix(modelID, "telegram"):
		return VariantRelay, modelID
	case strings.HasPrefix(modelID, "clawdbot"):
		// 网关命名空间内的标识原样放行，仅有前缀而不在命名空间内时替换为缺省模型。
		if !strings.HasPrefix(modelID, "clawdbot:") {
			return VariantGateway, DefaultGatewayModel
		}
		return VariantGateway, modelID
	case strings.HasPrefix(modelID, "claude"):
		return VariantAnthropic, modelID
	case strings.HasPrefix(modelID, "gpt-"),
		strings.HasPrefix(modelID, "chatgpt-"),
		strings.HasPrefix(modelID, "o1"),
		strings.HasPrefix(modelID, "o3"),
		strings.HasPrefix(modelID, "o4"):
		return VariantOpenAI, modelID
	default:
		return VariantLocal, modelID
	}
}
