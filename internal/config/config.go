package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	StoreDriver string
	DatabaseURL string
	Migrate     bool

	ClerkSecretKey     string
	ClerkWebhookSecret string
	// DevJWTSecret enables HS256 bearer tokens for local development and tests.
	DevJWTSecret string
	AdminUserIDs []string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	EngagementCacheTTL time.Duration

	FirebaseCredentialsFile string
	FirebaseServiceAccount  string

	MetricsUser string
	MetricsPass string

	RateLimitRPS   float64
	RateLimitBurst int

	DispatchWorkers int
	DispatchQueue   int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3333")
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("MIGRATE", false)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENGAGEMENT_CACHE_TTL", "30s")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "./serviceAccountKey.json")
	v.SetDefault("RATE_LIMIT_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("DISPATCH_WORKERS", 5)
	v.SetDefault("DISPATCH_QUEUE", 100)
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                    v.GetString("PORT"),
		Environment:             v.GetString("ENVIRONMENT"),
		LogLevel:                v.GetString("LOG_LEVEL"),
		StoreDriver:             strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		Migrate:                 v.GetBool("MIGRATE"),
		ClerkSecretKey:          v.GetString("CLERK_SECRET_KEY"),
		ClerkWebhookSecret:      v.GetString("CLERK_WEBHOOK_SECRET"),
		DevJWTSecret:            v.GetString("DEV_JWT_SECRET"),
		AdminUserIDs:            splitList(v.GetString("ADMIN_USER_IDS")),
		RedisAddr:               v.GetString("REDIS_ADDR"),
		RedisPassword:           v.GetString("REDIS_PASSWORD"),
		RedisDB:                 v.GetInt("REDIS_DB"),
		EngagementCacheTTL:      v.GetDuration("ENGAGEMENT_CACHE_TTL"),
		FirebaseCredentialsFile: v.GetString("FIREBASE_CREDENTIALS_FILE"),
		FirebaseServiceAccount:  v.GetString("FIREBASE_SERVICE_ACCOUNT_JSON"),
		MetricsUser:             v.GetString("METRICS_USER"),
		MetricsPass:             v.GetString("METRICS_PASS"),
		RateLimitRPS:            v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:          v.GetInt("RATE_LIMIT_BURST"),
		DispatchWorkers:         v.GetInt("DISPATCH_WORKERS"),
		DispatchQueue:           v.GetInt("DISPATCH_QUEUE"),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q, expected postgres or memory", c.StoreDriver)
	}
	if c.ClerkSecretKey == "" && c.DevJWTSecret == "" {
		return fmt.Errorf("CLERK_SECRET_KEY environment variable is not set")
	}
	if c.ClerkWebhookSecret == "" && !c.Development() {
		return fmt.Errorf("CLERK_WEBHOOK_SECRET environment variable is not set")
	}
	if c.DispatchWorkers < 0 {
		return fmt.Errorf("DISPATCH_WORKERS must not be negative")
	}
	return nil
}

func (c *Config) Development() bool {
	return c.Environment == "development"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
