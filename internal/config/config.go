// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RelayConfig 存储中继通道（Telegram Bot）相关的配置。
// BotToken/ChatID/WebhookSecret 允许被环境变量覆盖
// （TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID / TELEGRAM_WEBHOOK_SECRET），
// 解析优先级见 service.CredentialService。
type RelayConfig struct {
	APIBaseURL    string `mapstructure:"api_base_url"`
	BotToken      string `mapstructure:"bot_token"`
	ChatID        int64  `mapstructure:"chat_id"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// ProvidersConfig 存储所有 AI 后端的配置。
type ProvidersConfig struct {
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Clawdbot  ClawdbotConfig  `mapstructure:"clawdbot"`
}

// OllamaConfig 存储本地推理服务的配置。本地服务不需要凭证。
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig 存储 Anthropic 托管 API 的配置。
type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// OpenAIConfig 存储 OpenAI 托管 API 的配置。
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ClawdbotConfig 存储网关型 Agent 后端的配置。
// APIKey 缺省时网关适配器会使用哨兵值，允许匿名访问本地网关。
type ClawdbotConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	AgentID string `mapstructure:"agent_id"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
