package service

import (
	"context"

	"bunker-go/internal/config"
	"bunker-go/pkg/llm"
	"bunker-go/pkg/log"
)

// ModelDescriptor 描述一个可选模型及其可用性。不落库，每次查询即时计算。
type ModelDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Provider    string `json:"provider"`
	Available   bool   `json:"available"`
}

// ProviderStatus 汇总一个后端的配置与可用状态。
type ProviderStatus struct {
	Available  bool `json:"available"`
	Configured bool `json:"configured"`
}

// ModelCatalog 是 /models 的聚合结果。
type ModelCatalog struct {
	Models    []ModelDescriptor         `json:"models"`
	Providers map[string]ProviderStatus `json:"providers"`
}

// CatalogService 聚合所有后端的可选模型。
// 单个后端探测失败只会让它贡献零条或不可用的条目，聚合本身永远成功。
type CatalogService interface {
	ListModels(ctx context.Context) *ModelCatalog
}

type catalogService struct {
	creds CredentialService
	// buildProviders 构造参与聚合的适配器集合，测试中替换为假实现。
	buildProviders func(ctx context.Context) []llm.Provider
}

// NewCatalogService 创建一个新的 CatalogService 实例。
func NewCatalogService(creds CredentialService) CatalogService {
	s := &catalogService{creds: creds}
	s.buildProviders = func(ctx context.Context) []llm.Provider {
		cfg := config.Conf.Providers
		return []llm.Provider{
			llm.NewOllama(cfg.Ollama.BaseURL),
			llm.NewAnthropic(cfg.Anthropic.BaseURL, s.creds.APIKey(ctx, "anthropic")),
			llm.NewOpenAI(cfg.OpenAI.BaseURL, s.creds.APIKey(ctx, "openai")),
			llm.NewGateway(cfg.Clawdbot.BaseURL, s.creds.APIKey(ctx, "clawdbot"), cfg.Clawdbot.AgentID, ""),
		}
	}
	return s
}

// ListModels 聚合各后端的模型清单并标注可用性。
// 可用性 = 凭证就位 且（对依赖网络的后端）探活成功。
func (s *catalogService) ListModels(ctx context.Context) *ModelCatalog {
	catalog := &ModelCatalog{
		Models:    make([]ModelDescriptor, 0, 16),
		Providers: make(map[string]ProviderStatus),
	}

	for _, p := range s.buildProviders(ctx) {
		tag := p.Tag()
		configured := s.providerConfigured(ctx, tag)
		available := configured && p.Probe(ctx)

		models, err := p.Models(ctx)
		if err != nil {
			// 单个后端失败不拖垮整个聚合，它只是贡献零条目。
			log.Warnf("后端 %s 模型清单查询失败: %v", tag, err)
			models = nil
		}
		for _, m := range models {
			catalog.Models = append(catalog.Models, ModelDescriptor{
				ID:          m.ID,
				Name:        m.Name,
				Description: m.Description,
				Provider:    tag,
				Available:   available,
			})
		}
		catalog.Providers[tag] = ProviderStatus{Available: available, Configured: configured}
	}

	// 中继通道作为伪后端加入目录：配置齐全即可选。
	relayConfigured := s.creds.RelayBotToken(ctx) != "" && s.creds.RelayChatID(ctx) != 0
	catalog.Providers["telegram"] = ProviderStatus{Available: relayConfigured, Configured: relayConfigured}
	if relayConfigured {
		catalog.Models = append(catalog.Models, ModelDescriptor{
			ID:          "telegram-operator",
			Name:        "人工操作员",
			Description: "经中继通道转交人工回复",
			Provider:    "telegram",
			Available:   true,
		})
	}

	return catalog
}

// providerConfigured 判断某个后端的凭证是否就位。
// 本地推理与网关（有哨兵凭证）视为始终已配置。
func (s *catalogService) providerConfigured(ctx context.Context, tag string) bool {
	switch tag {
	case "ollama", "clawdbot":
		return true
	default:
		return s.creds.APIKey(ctx, tag) != ""
	}
}
