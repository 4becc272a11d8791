// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
// 服务端与客户端共用同一份结构，各自只读取自己关心的部分。
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	MinIO   MinIOConfig   `mapstructure:"minio"`
	Client  ClientConfig  `mapstructure:"client"`
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LLMConfig 存储上游大语言模型相关的配置。
type LLMConfig struct {
	APIKey         string          `mapstructure:"api_key"`
	BaseURL        string          `mapstructure:"base_url"`
	SearchModel    string          `mapstructure:"search_model"`
	ReasoningModel string          `mapstructure:"reasoning_model"`
	ThinkingBudget int             `mapstructure:"thinking_budget"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	Prompt         LLMPromptConfig `mapstructure:"prompt"`
}

// LLMPromptConfig 配置系统提示词与身份问答的固定回答。
type LLMPromptConfig struct {
	Persona        string `mapstructure:"persona"`
	IdentityAnswer string `mapstructure:"identity_answer"`
	Rules          string `mapstructure:"rules"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空表示不启用。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空表示不启用用量事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

// ClientConfig 存储聊天客户端的配置。
type ClientConfig struct {
	Endpoint       string       `mapstructure:"endpoint"`
	StreamEndpoint string       `mapstructure:"stream_endpoint"`
	Transport      string       `mapstructure:"transport"` // "http" 或 "websocket"
	AccessToken    string       `mapstructure:"access_token"`
	Reveal         RevealConfig `mapstructure:"reveal"`
}

// RevealConfig 控制回答在界面上的逐段展示节奏。
type RevealConfig struct {
	ChunkSize  int `mapstructure:"chunk_size"`
	IntervalMS int `mapstructure:"interval_ms"`
}

// Interval 返回分段展示的间隔。
func (r RevealConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMS) * time.Millisecond
}

// StorageConfig 选择客户端本地持久化的后端。
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "bolt"、"redis" 或 "minio"
	Path   string `mapstructure:"path"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	if err := Load(configPath, &Conf); err != nil {
		panic(err)
	}
}

// Load 读取配置文件并叠加环境变量，结果写入 out。
func Load(configPath string, out *Config) error {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 密钥类配置优先从环境变量读取，避免写入配置文件
	_ = v.BindEnv("llm.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("jwt.secret", "MU_JWT_SECRET")
	_ = v.BindEnv("client.access_token", "MU_ACCESS_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24*30)
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.search_model", "gemini-2.5-flash")
	v.SetDefault("llm.reasoning_model", "gemini-2.0-pro")
	v.SetDefault("llm.thinking_budget", 8192)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("kafka.topic", "mu-assistant-usage")
	v.SetDefault("kafka.group_id", "mu-assistant-usage-consumer")
	v.SetDefault("minio.prefix", "mu-assistant/")
	v.SetDefault("client.endpoint", "http://localhost:8080/api/v1/completion")
	v.SetDefault("client.stream_endpoint", "ws://localhost:8080/api/v1/completion/stream")
	v.SetDefault("client.transport", "http")
	v.SetDefault("client.reveal.chunk_size", 50)
	v.SetDefault("client.reveal.interval_ms", 15)
	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.path", "mu-assistant.db")
}
