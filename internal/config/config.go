package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	LogLevel        string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer      string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL     string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience    string   `mapstructure:"AUTH_AUDIENCE"`
	JWTSecret       string   `mapstructure:"JWT_SECRET"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int      `mapstructure:"RATE_LIMIT_BURST"`
	AuditDBPath     string   `mapstructure:"AUDIT_DB_PATH"`
	AnalyzeBudgetMS int      `mapstructure:"ANALYZE_BUDGET_MS"`
	PoolingCron     string   `mapstructure:"POOLING_CRON"`
	MedRulesPath    string   `mapstructure:"MED_RULES_PATH"`
	OntologyPath    string   `mapstructure:"ONTOLOGY_PATH"`
}

// envDefaults names every environment key the server reads. A nil
// default marks keys that are optional or checked in Validate.
var envDefaults = map[string]any{
	"PORT":              "8000",
	"ENV":               "development",
	"LOG_LEVEL":         "info",
	"DATABASE_URL":      nil,
	"DB_MAX_CONNS":      20,
	"DB_MIN_CONNS":      5,
	"AUTH_ISSUER":       nil,
	"AUTH_JWKS_URL":     nil,
	"AUTH_AUDIENCE":     nil,
	"JWT_SECRET":        nil,
	"CORS_ORIGINS":      "http://localhost:3000",
	"RATE_LIMIT_RPS":    100,
	"RATE_LIMIT_BURST":  200,
	"AUDIT_DB_PATH":     nil,
	"ANALYZE_BUDGET_MS": 5000,
	"POOLING_CRON":      nil,
	"MED_RULES_PATH":    nil,
	"ONTOLOGY_PATH":     nil,
}

func Load() (*Config, error) {
	// .env lands in the process environment so AutomaticEnv sees it.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every key gets an
	// explicit binding even when it has no default.
	for key, def := range envDefaults {
		v.BindEnv(key)
		if def != nil {
			v.SetDefault(key, def)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 0 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ENV=development, DevAuthMiddleware grants every request admin access")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AnalyzeBudget is the wall-clock budget for one analyze call.
func (c *Config) AnalyzeBudget() time.Duration {
	return time.Duration(c.AnalyzeBudgetMS) * time.Millisecond
}

// Validate checks that the configuration is safe to run. Outside development
// some token verification path must be configured: either a JWKS endpoint
// (directly or via OIDC discovery on AUTH_ISSUER) or an HMAC secret.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.JWTSecret == "" {
		return fmt.Errorf(
			"one of AUTH_ISSUER, AUTH_JWKS_URL or JWT_SECRET must be set in production. " +
				"Refusing to start without authentication configuration")
	}
	if c.AnalyzeBudgetMS <= 0 {
		return fmt.Errorf("ANALYZE_BUDGET_MS must be positive, got %d", c.AnalyzeBudgetMS)
	}
	if c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("DB_MAX_CONNS (%d) must not be below DB_MIN_CONNS (%d)", c.DBMaxConns, c.DBMinConns)
	}
	return nil
}
