package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=orgidentity port=5432 sslmode=disable"

type Config struct {
	Environment    string
	HTTPPort       string
	DatabaseDriver string
	DatabaseDSN    string
	CORSOrigins    string

	JWTSecret        string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	LoginRateLimit   int

	// Session and hierarchy policy knobs. Ranks follow the "lower is more
	// senior" convention everywhere.
	MaxAllowedDevices      int
	BranchScopeExemptRank  int
	ReportingRemoveMaxRank int
	HierarchyClosureQuery  bool

	Permissions PermissionCatalog

	RabbitMQURL        string
	ActivityExchange   string
	ActivityRoutingKey string

	NormalizeLegacyPermissions bool

	// Warnings collects non fatal findings, logged by the caller once a
	// logger exists.
	Warnings []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honoured when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:    getEnv("APP_ENV", "development"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
		DatabaseDSN:    getEnv("DATABASE_DSN", defaultDSN),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTokenTTL:   getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		LoginRateLimit:   getInt("LOGIN_RATE_LIMIT", 20),

		MaxAllowedDevices:      getInt("MAX_ALLOWED_DEVICES", 2),
		BranchScopeExemptRank:  getInt("BRANCH_SCOPE_EXEMPT_RANK", 1),
		ReportingRemoveMaxRank: getInt("REPORTING_REMOVE_MAX_RANK", 3),
		HierarchyClosureQuery:  getBool("HIERARCHY_CLOSURE_QUERY", true),

		Permissions: NewPermissionCatalog(getList("PERMISSION_CATALOG", DefaultPermissions)...),

		RabbitMQURL:        os.Getenv("RABBITMQ_URL"),
		ActivityExchange:   getEnv("ACTIVITY_EXCHANGE", "activity"),
		ActivityRoutingKey: getEnv("ACTIVITY_ROUTING_KEY", "activity.log"),

		NormalizeLegacyPermissions: getBool("NORMALIZE_LEGACY_PERMISSIONS", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.JWTRefreshSecret == "" {
		c.Warnings = append(c.Warnings, "JWT_REFRESH_SECRET not set, deriving refresh secret from JWT_SECRET")
		c.JWTRefreshSecret = c.JWTSecret + ":refresh"
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.MaxAllowedDevices < 1 {
		return fmt.Errorf("MAX_ALLOWED_DEVICES must be positive")
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == defaultDSN {
		c.Warnings = append(c.Warnings, "DATABASE_DSN uses the default value, set your own Postgres DSN for production")
	}
	if c.CORSOrigins == "http://localhost:5173" {
		c.Warnings = append(c.Warnings, "CORS_ALLOWED_ORIGINS uses the default value, set your own domains for production")
	}
	return nil
}

// CORSOriginList splits the comma separated origin setting.
func (c *Config) CORSOriginList() []string {
	origins := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
