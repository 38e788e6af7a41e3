// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	RAG       RAGConfig       `mapstructure:"rag"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Tools     ToolsConfig     `mapstructure:"tools"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig 存储 Postgres 数据库的配置。
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 存储认证相关的配置。
// 访问令牌由托管认证服务签发，本服务只负责校验签名和有效期。
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Audience  string `mapstructure:"audience"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// ExtractorConfig 存储文本抽取服务相关的配置。
type ExtractorConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RAGConfig 配置检索与提示词拼装策略。
type RAGConfig struct {
	DefaultTopK         int    `mapstructure:"default_top_k"`
	GroundingCharBudget int    `mapstructure:"grounding_char_budget"`
	SnippetLength       int    `mapstructure:"snippet_length"`
	GroundingRules      string `mapstructure:"grounding_rules"`
}

// MemoryConfig 配置长期记忆的检索与沉淀策略。
type MemoryConfig struct {
	TopK            int     `mapstructure:"top_k"`
	DedupThreshold  float64 `mapstructure:"dedup_threshold"`
	AutosaveDefault bool    `mapstructure:"autosave_default"`
}

// ToolsConfig 存储内置工具（天气、新闻）相关的配置。
type ToolsConfig struct {
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	Weather        WeatherConfig `mapstructure:"weather"`
	News           NewsConfig    `mapstructure:"news"`
}

// WeatherConfig 存储天气工具的配置。
type WeatherConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// NewsConfig 存储新闻工具的配置。
type NewsConfig struct {
	APIKey             string `mapstructure:"api_key"`
	Endpoint           string `mapstructure:"endpoint"`
	CacheTTLSeconds    int    `mapstructure:"cache_ttl_seconds"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
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

	applyEnvOverrides()
	applyDefaults()
}

// applyEnvOverrides 允许通过环境变量覆盖敏感配置项，
// 避免把密钥写进配置文件。
func applyEnvOverrides() {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		Conf.Database.Postgres.DSN = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		Conf.Auth.JWTSecret = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		Conf.Embedding.APIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		Conf.LLM.APIKey = v
	}
	if v := os.Getenv("OPENWEATHER_API_KEY"); v != "" {
		Conf.Tools.Weather.APIKey = v
	}
	if v := os.Getenv("NEWSAPI_KEY"); v != "" {
		Conf.Tools.News.APIKey = v
	}
}

// applyDefaults 为缺省配置项填充默认值。
func applyDefaults() {
	if Conf.Auth.Audience == "" {
		Conf.Auth.Audience = "authenticated"
	}
	if Conf.Embedding.Dimensions <= 0 {
		Conf.Embedding.Dimensions = 384
	}
	if Conf.RAG.DefaultTopK <= 0 {
		Conf.RAG.DefaultTopK = 5
	}
	if Conf.RAG.GroundingCharBudget <= 0 {
		Conf.RAG.GroundingCharBudget = 4000
	}
	if Conf.RAG.SnippetLength <= 0 {
		Conf.RAG.SnippetLength = 200
	}
	if Conf.Memory.TopK <= 0 {
		Conf.Memory.TopK = 6
	}
	if Conf.Memory.DedupThreshold <= 0 {
		Conf.Memory.DedupThreshold = 0.9
	}
	if Conf.Tools.TimeoutSeconds <= 0 {
		Conf.Tools.TimeoutSeconds = 10
	}
	if Conf.Tools.Weather.BaseURL == "" {
		Conf.Tools.Weather.BaseURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	if Conf.Tools.News.Endpoint == "" {
		Conf.Tools.News.Endpoint = "https://newsapi.org/v2/everything"
	}
	if Conf.Tools.News.CacheTTLSeconds <= 0 {
		Conf.Tools.News.CacheTTLSeconds = 600
	}
	if Conf.Tools.News.RateLimitPerMinute <= 0 {
		Conf.Tools.News.RateLimitPerMinute = 5
	}
}
