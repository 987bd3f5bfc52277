package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	StaticDir string `mapstructure:"static_dir"`
	PublicURL string `mapstructure:"public_url"`

	// 管理面板使用的共享密钥
	AdminKey string `mapstructure:"admin_key"`

	OpenAIAPIKey        string `mapstructure:"openai_api_key"`
	OpenAIBaseURL       string `mapstructure:"openai_base_url"`
	OpenAIModel         string `mapstructure:"openai_model"`
	GenerationTimeoutMs int    `mapstructure:"generation_timeout_ms"`

	RateLimitMs           int     `mapstructure:"rate_limit_ms"`
	MinDelayMs            int     `mapstructure:"min_delay_ms"`
	MaxDelayMs            int     `mapstructure:"max_delay_ms"`
	ThinkMinMs            int     `mapstructure:"think_min_ms"`
	ThinkMaxMs            int     `mapstructure:"think_max_ms"`
	AIResponseProbability float64 `mapstructure:"ai_response_probability"`

	// 单个连接每秒允许的入站帧数
	InboundRate  float64 `mapstructure:"inbound_rate"`
	InboundBurst int     `mapstructure:"inbound_burst"`
}

var cfg *AppConfig

func GetConfig() *AppConfig {
	if cfg == nil {
		cfg = InitConfig()
	}

	return cfg
}

func InitConfig() *AppConfig {
	// .env 不存在时忽略，环境变量仍然生效
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("app_config")
	v.SetConfigType("json")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("failed to load config: %w", err))
		}
	}

	var config AppConfig

	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("failed to parse config: %w", err))
	}

	cfg = &config

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 3001)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_dir", "")
	v.SetDefault("public_url", "")
	v.SetDefault("admin_key", "admin123")

	v.SetDefault("openai_api_key", "mock-key")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("generation_timeout_ms", 30000)

	v.SetDefault("rate_limit_ms", 10000)
	v.SetDefault("min_delay_ms", 2000)
	v.SetDefault("max_delay_ms", 5000)
	v.SetDefault("think_min_ms", 1000)
	v.SetDefault("think_max_ms", 3000)
	v.SetDefault("ai_response_probability", 0.5)

	v.SetDefault("inbound_rate", 5.0)
	v.SetDefault("inbound_burst", 10)
}

func (c *AppConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutMs) * time.Millisecond
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (c *AppConfig) RateLimit() time.Duration { return ms(c.RateLimitMs) }
func (c *AppConfig) MinDelay() time.Duration  { return ms(c.MinDelayMs) }
func (c *AppConfig) MaxDelay() time.Duration  { return ms(c.MaxDelayMs) }
func (c *AppConfig) ThinkMin() time.Duration  { return ms(c.ThinkMinMs) }
func (c *AppConfig) ThinkMax() time.Duration  { return ms(c.ThinkMaxMs) }
