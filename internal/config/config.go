package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	PhoneCountryCode string `mapstructure:"PHONE_COUNTRY_CODE"`

	MatchAutoThreshold   float64 `mapstructure:"MATCH_AUTO_THRESHOLD"`
	MatchReviewThreshold float64 `mapstructure:"MATCH_REVIEW_THRESHOLD"`
	MatchFloorThreshold  float64 `mapstructure:"MATCH_FLOOR_THRESHOLD"`

	ExtractionURL        string        `mapstructure:"EXTRACTION_URL"`
	ExtractionTimeout    time.Duration `mapstructure:"EXTRACTION_TIMEOUT"`
	ExtractionMaxRetries int           `mapstructure:"EXTRACTION_MAX_RETRIES"`

	ReconcileCron  string   `mapstructure:"RECONCILE_CRON"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("PHONE_COUNTRY_CODE", "1")
	v.SetDefault("MATCH_AUTO_THRESHOLD", 0.9)
	v.SetDefault("MATCH_REVIEW_THRESHOLD", 0.3)
	v.SetDefault("MATCH_FLOOR_THRESHOLD", 0.3)
	v.SetDefault("EXTRACTION_TIMEOUT", "30s")
	v.SetDefault("EXTRACTION_MAX_RETRIES", 3)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("PHONE_COUNTRY_CODE")
	v.BindEnv("MATCH_AUTO_THRESHOLD")
	v.BindEnv("MATCH_REVIEW_THRESHOLD")
	v.BindEnv("MATCH_FLOOR_THRESHOLD")
	v.BindEnv("EXTRACTION_URL")
	v.BindEnv("EXTRACTION_TIMEOUT")
	v.BindEnv("EXTRACTION_MAX_RETRIES")
	v.BindEnv("RECONCILE_CRON")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SIGNING_KEY.")
		log.Println("WARNING: ============================================================")
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

// Validate checks that the configuration is safe to run. Outside development,
// AUTH_SIGNING_KEY must be set so real JWT authentication is enforced, and the
// match thresholds must form a sane ordering.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q. "+
			"Refusing to start without authentication configuration", c.Env)
	}
	if len(c.AuthSigningKey) > 0 && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}

	if c.MatchAutoThreshold <= c.MatchReviewThreshold {
		return fmt.Errorf("MATCH_AUTO_THRESHOLD (%v) must exceed MATCH_REVIEW_THRESHOLD (%v)",
			c.MatchAutoThreshold, c.MatchReviewThreshold)
	}
	if c.MatchReviewThreshold < c.MatchFloorThreshold {
		return fmt.Errorf("MATCH_REVIEW_THRESHOLD (%v) must not be below MATCH_FLOOR_THRESHOLD (%v)",
			c.MatchReviewThreshold, c.MatchFloorThreshold)
	}
	if c.MatchAutoThreshold > 1 || c.MatchFloorThreshold < 0 {
		return fmt.Errorf("match thresholds must stay within [0, 1]")
	}

	if c.ExtractionMaxRetries < 0 {
		return fmt.Errorf("EXTRACTION_MAX_RETRIES must not be negative")
	}

	return nil
}
