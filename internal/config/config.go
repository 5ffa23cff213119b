package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Payments   PaymentsConfig   `mapstructure:"payments"`
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	Timeout        time.Duration `mapstructure:"timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// ModerationConfig controls whether freshly posted ads skip the review queue.
type ModerationConfig struct {
	AutoApprove bool `mapstructure:"auto_approve"`
}

type PaymentsConfig struct {
	StripeKey     string `mapstructure:"stripe_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
	FeaturePrice  int64  `mapstructure:"feature_price"`
	Currency      string `mapstructure:"currency"`
	FeatureDays   int    `mapstructure:"feature_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "3306")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("tracing.service_name", "classifieds")
	v.SetDefault("logger.level", "info")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "classifieds")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("moderation.auto_approve", false)
	v.SetDefault("payments.stripe_key", "")
	v.SetDefault("payments.webhook_secret", "")
	v.SetDefault("payments.success_url", "http://localhost:5173/payments/success")
	v.SetDefault("payments.cancel_url", "http://localhost:5173/payments/cancel")
	v.SetDefault("payments.feature_price", 499)
	v.SetDefault("payments.currency", "usd")
	v.SetDefault("payments.feature_days", 7)
}

// LoadConfig reads config.yaml from path (a file or a directory) and overlays
// environment variables, e.g. AUTH_JWT_SECRET for auth.jwt_secret.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(path)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Payments.FeaturePrice <= 0 {
		return errors.New("payments.feature_price must be positive")
	}
	if c.Payments.FeatureDays <= 0 {
		return errors.New("payments.feature_days must be positive")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return errors.New("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

func MustLoadConfig() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "."
	}

	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}
	return config
}
