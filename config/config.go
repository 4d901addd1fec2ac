package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Database  DatabaseConfig        `mapstructure:"database"`
	Redis     RedisConfig           `mapstructure:"redis"`
	JWT       JWTConfig             `mapstructure:"jwt"`
	Auth0     Auth0Config           `mapstructure:"auth0"`
	OSS       OSSConfig             `mapstructure:"oss"`
	CORS      CORSConfig            `mapstructure:"cors"`
	Stripe    StripeConfig          `mapstructure:"stripe"`
	AI        AIConfig              `mapstructure:"ai"`
	Analysis  AnalysisConfig        `mapstructure:"analysis"`
	RateLimit RateLimitConfig       `mapstructure:"rate_limit"`
	Plans     map[string]PlanConfig `mapstructure:"plans"`
	Log       LogConfig             `mapstructure:"log"`
	Metrics   MetricsConfig         `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// Auth0Config 外部身份提供方
type Auth0Config struct {
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
	JWKSURL  string `mapstructure:"jwks_url"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type StripeConfig struct {
	SecretKey     string            `mapstructure:"secret_key"`
	WebhookSecret string            `mapstructure:"webhook_secret"`
	FrontendURL   string            `mapstructure:"frontend_url"`
	Prices        map[string]string `mapstructure:"prices"` // tier -> price id
}

type AIConfig struct {
	GeminiAPIKey         string                   `mapstructure:"gemini_api_key"`
	OpenAIAPIKey         string                   `mapstructure:"openai_api_key"`
	GeminiModel          string                   `mapstructure:"gemini_model"`
	GeminiBaseURL        string                   `mapstructure:"gemini_base_url"`
	OpenAIBaseURL        string                   `mapstructure:"openai_base_url"`
	GeminiTimeoutSeconds int                      `mapstructure:"gemini_timeout_seconds"`
	OpenAITimeoutSeconds int                      `mapstructure:"openai_timeout_seconds"`
	MinBudgetThreshold   float64                  `mapstructure:"min_budget_threshold"`
	Models               map[string]AIModelConfig `mapstructure:"models"`
}

type AIModelConfig struct {
	CostPer1K   float64 `mapstructure:"cost_per_1k"`
	DisplayName string  `mapstructure:"display_name"`
	Description string  `mapstructure:"description"`
}

type AnalysisConfig struct {
	MaxChars int `mapstructure:"max_chars"`
}

type RateLimitConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
	RedisPrefix       string `mapstructure:"redis_prefix"`
}

// PlanConfig 覆盖内置套餐的部分字段，零值表示沿用默认
type PlanConfig struct {
	DisplayName          string   `mapstructure:"display_name"`
	MonthlyAnalysisLimit *int     `mapstructure:"monthly_analysis_limit"`
	MonthlyAIBudget      *float64 `mapstructure:"monthly_ai_budget"`
	Price                *float64 `mapstructure:"price"`
	RateLimitPerMinute   int      `mapstructure:"rate_limit_per_minute"`
	Features             []string `mapstructure:"features"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load(configPath string) (*Config, error) {
	// 优先读取同目录下的 config.local.yaml（包含真实密钥，不提交到 git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	// 环境变量覆盖，例如 AI_OPENAI_API_KEY
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("jwt.expire_hours", 24)

	// 空字符串默认值让 AutomaticEnv 能识别这些键
	v.SetDefault("ai.gemini_api_key", "")
	v.SetDefault("ai.openai_api_key", "")
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")

	v.SetDefault("ai.gemini_model", "gemini-1.5-flash")
	v.SetDefault("ai.gemini_timeout_seconds", 30)
	v.SetDefault("ai.openai_timeout_seconds", 60)
	v.SetDefault("ai.min_budget_threshold", 0.01)
	v.SetDefault("analysis.max_chars", 100000)
	v.SetDefault("rate_limit.requests_per_minute", 10)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("rate_limit.redis_prefix", "tos:ratelimit")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
