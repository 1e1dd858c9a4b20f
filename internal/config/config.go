package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogFormat      string        `mapstructure:"LOG_FORMAT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultCompany string        `mapstructure:"DEFAULT_COMPANY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	InsightBaseURL string        `mapstructure:"INSIGHT_BASE_URL"`
	InsightAPIKey  string        `mapstructure:"INSIGHT_API_KEY"`
	InsightTimeout time.Duration `mapstructure:"INSIGHT_TIMEOUT"`
	EDISenderID    string        `mapstructure:"EDI_SENDER_ID"`
	EDIReceiverID  string        `mapstructure:"EDI_RECEIVER_ID"`
	ReportMaxRows  int           `mapstructure:"REPORT_MAX_ROWS"`
	MetricsEnabled bool          `mapstructure:"METRICS_ENABLED"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_FORMAT",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"DEFAULT_COMPANY", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"INSIGHT_BASE_URL", "INSIGHT_API_KEY", "INSIGHT_TIMEOUT",
	"EDI_SENDER_ID", "EDI_RECEIVER_ID",
	"REPORT_MAX_ROWS", "METRICS_ENABLED",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_COMPANY", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("INSIGHT_TIMEOUT", "60s")
	v.SetDefault("EDI_SENDER_ID", "RCMSENDER")
	v.SetDefault("EDI_RECEIVER_ID", "CLEARINGHOUSE")
	v.SetDefault("REPORT_MAX_ROWS", 10000)
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedLogFormat returns "text" or "json". An explicit LOG_FORMAT wins;
// otherwise development logs to the console writer.
func (c *Config) ResolvedLogFormat() string {
	if c.LogFormat != "" {
		return c.LogFormat
	}
	if c.IsDev() {
		return "text"
	}
	return "json"
}

// Validate checks that the configuration is safe to run. Outside development
// a token issuer or a signing key must be configured so requests carry a
// real actor.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if f := c.ResolvedLogFormat(); f != "text" && f != "json" {
		return fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", f)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.ReportMaxRows <= 0 {
		return fmt.Errorf("REPORT_MAX_ROWS must be positive, got %d", c.ReportMaxRows)
	}
	if c.RequestTimeout < 0 || c.InsightTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.IsProduction() && c.InsightBaseURL == "" {
		return fmt.Errorf("INSIGHT_BASE_URL is required in production")
	}
	return nil
}
