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
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	WebSearch     WebSearchConfig     `mapstructure:"websearch"`
	Corpus        CorpusConfig        `mapstructure:"corpus"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Scoring       ScoringConfig       `mapstructure:"scoring"`
	Auth          AuthConfig          `mapstructure:"auth"`
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

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
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
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置两种对话策略的系统规则与引用包裹符（可选，缺省时使用内置规则）。
type LLMPromptConfig struct {
	GuidelineRules  string `mapstructure:"guideline_rules"`
	SpecialistRules string `mapstructure:"specialist_rules"`
	RefStart        string `mapstructure:"ref_start"`
	RefEnd          string `mapstructure:"ref_end"`
	NoResultText    string `mapstructure:"no_result_text"`
}

// WebSearchConfig 存储在线检索服务的配置。
type WebSearchConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	MaxResults int    `mapstructure:"max_results"`
}

// CorpusConfig 声明参考语料库的可用作用域与启动导入目录。
type CorpusConfig struct {
	Scopes  []string `mapstructure:"scopes"`
	SeedDir string   `mapstructure:"seed_dir"`
}

// RetrievalConfig 存储检索相关参数。
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

// ScoringConfig 存储各评分模块的阈值与单位。
type ScoringConfig struct {
	PlagiarismThreshold float64 `mapstructure:"plagiarism_threshold"`
	CostCurrency        string  `mapstructure:"cost_currency"`
	CostMaxAmount       float64 `mapstructure:"cost_max_amount"`
}

// AuthConfig 存储服务令牌认证的配置。
type AuthConfig struct {
	JWTSecret        string         `mapstructure:"jwt_secret"`
	TokenExpireHours int            `mapstructure:"token_expire_hours"`
	Clients          []ClientConfig `mapstructure:"clients"`
}

// ClientConfig 是允许换取服务令牌的机器客户端。
type ClientConfig struct {
	ID  string `mapstructure:"id"`
	Key string `mapstructure:"key"`
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
