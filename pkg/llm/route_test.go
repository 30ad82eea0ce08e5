package llm

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		modelID   string
		variant   Variant
		effective string
	}{
		{"网关命名空间内原样放行", "clawdbot:main", VariantGateway, "clawdbot:main"},
		{"网关自定义 Agent 原样放行", "clawdbot:research", VariantGateway, "clawdbot:research"},
		{"仅前缀不带命名空间时替换缺省模型", "clawdbot", VariantGateway, DefaultGatewayModel},
		{"前缀变体同样替换", "clawdbot-legacy", VariantGateway, DefaultGatewayModel},
		{"claude 前缀走托管后端 A", "claude-3-5-haiku-20241022", VariantAnthropic, "claude-3-5-haiku-20241022"},
		{"gpt 前缀走托管后端 B", "gpt-4o", VariantOpenAI, "gpt-4o"},
		{"chatgpt 前缀走托管后端 B", "chatgpt-4o-latest", VariantOpenAI, "chatgpt-4o-latest"},
		{"o1 系列走托管后端 B", "o1-preview", VariantOpenAI, "o1-preview"},
		{"o3 系列走托管后端 B", "o3-mini", VariantOpenAI, "o3-mini"},
		{"telegram 前缀走中继通道", "telegram-operator", VariantRelay, "telegram-operator"},
		{"未识别标识兜底到本地推理", "unknown-xyz", VariantLocal, "unknown-xyz"},
		{"空标识同样兜底", "", VariantLocal, ""},
		{"ollama 本地模型", "llama3.2", VariantLocal, "llama3.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variant, effective := Resolve(tt.modelID)
			if variant != tt.variant || effective != tt.effective {
				t.Errorf("Resolve(%q) = (%v, %q), want (%v, %q)",
					tt.modelID, variant, effective, tt.variant, tt.effective)
			}
			// 路由是纯函数：同一输入重复求值结果一致。
			v2, e2 := Resolve(tt.modelID)
			if v2 != variant || e2 != effective {
				t.Errorf("Resolve(%q) is not deterministic", tt.modelID)
			}
		})
	}
}

func TestVariantTag(t *testing.T) {
	tags := map[Variant]string{
		VariantLocal:     "ollama",
		VariantAnthropic: "anthropic",
		VariantOpenAI:    "openai",
		VariantGateway:   "clawdbot",
		VariantRelay:     "telegram",
	}
	seen := make(map[string]bool)
	for v, want := range tags {
		if got := v.Tag(); got != want {
			t.Errorf("Variant(%d).Tag() = %q, want %q", v, got, want)
		}
		if seen[want] {
			t.Errorf("duplicate tag %q", want)
		}
		seen[want] = true
	}
}

func TestSessionKey(t *testing.T) {
	if got := SessionKey("p1", "c1"); got != "bunker:p1:c1" {
		t.Errorf("SessionKey(p1, c1) = %q", got)
	}
	if got := SessionKey("p1", ""); got != "bunker:p1" {
		t.Errorf("SessionKey(p1, \"\") = %q", got)
	}
}
