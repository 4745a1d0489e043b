package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is read once at startup from the environment and, optionally, a
// YAML file. Environment variables win over the file.
type Config struct {
	Port         int             `mapstructure:"port"`
	FrontendURL  string          `mapstructure:"frontend_url"`
	GinMode      string          `mapstructure:"gin_mode"`
	OwnerName    string          `mapstructure:"owner_name"`
	RateLimit    RateLimitConfig `mapstructure:",squash"`
	OpenAI       OpenAIConfig    `mapstructure:",squash"`
	Knowledge    KnowledgeConfig `mapstructure:",squash"`
	Admin        AdminConfig     `mapstructure:",squash"`
	RedisAddress string          `mapstructure:"redis_addr"`

	// TrustedProxies are CIDRs or addresses allowed to set X-Forwarded-For.
	// Empty keys the rate governor on the socket address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
}

type RateLimitConfig struct {
	WindowMS    int    `mapstructure:"rate_limit_window_ms"`
	MaxRequests int    `mapstructure:"rate_limit_max_requests"`
	Backend     string `mapstructure:"rate_limit_backend"`
}

// Window returns the configured window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

type OpenAIConfig struct {
	APIKey          string        `mapstructure:"openai_api_key"`
	Model           string        `mapstructure:"openai_model"`
	BaseURL         string        `mapstructure:"openai_base_url"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
}

type KnowledgeConfig struct {
	Backend          string `mapstructure:"knowledge_backend"`
	Path             string `mapstructure:"knowledge_path"`
	DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
	DynamoDBTable    string `mapstructure:"dynamodb_table"`
	AWSRegion        string `mapstructure:"aws_region"`
	PostgresURI      string `mapstructure:"postgres_uri"`
}

type AdminConfig struct {
	Password     string `mapstructure:"admin_password"`
	PasswordHash string `mapstructure:"admin_password_hash"`
}

var keys = map[string]any{
	"port":                    8000,
	"frontend_url":            "http://localhost:5174",
	"gin_mode":                "release",
	"owner_name":              "Vishal Pandey",
	"rate_limit_window_ms":    15 * 60 * 1000,
	"rate_limit_max_requests": 100,
	"rate_limit_backend":      "memory",
	"redis_addr":              "localhost:6379",
	"trusted_proxies":         "",
	"max_body_bytes":          10 << 20,
	"openai_api_key":          "",
	"openai_model":            "gpt-4",
	"openai_base_url":         "",
	"upstream_timeout":        "30s",
	"knowledge_backend":       "file",
	"knowledge_path":          "knowledge.json",
	"dynamodb_endpoint":       "",
	"dynamodb_table":          "Knowledge",
	"aws_region":              "us-east-1",
	"postgres_uri":            "",
	"admin_password":          "",
	"admin_password_hash":     "",
}

// Load reads the configuration. configFile may be empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, def := range keys {
		v.SetDefault(key, def)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}
	switch c.Knowledge.Backend {
	case "file", "memory", "dynamodb", "postgres":
	default:
		return fmt.Errorf("unknown knowledge backend %q", c.Knowledge.Backend)
	}
	if c.Knowledge.Backend == "postgres" && c.Knowledge.PostgresURI == "" {
		return fmt.Errorf("POSTGRES_URI is required for the postgres knowledge backend")
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown gin mode %q", c.GinMode)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid max body size %d", c.MaxBodyBytes)
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Addr is the listen address for the gateway.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
