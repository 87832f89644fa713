package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	Auth         AuthConfig
	DB           DBConfig
	Model        ModelConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls bearer token issuing.
type AuthConfig struct {
	Secret   string        `usage:"HMAC secret for signing bearer tokens (SHOP_AUTH_SECRET)" flag:"auth-secret"`
	TokenTTL time.Duration `default:"30m" usage:"Bearer token lifetime" flag:"token-ttl"`
}

// DBConfig bounds order transactions.
type DBConfig struct {
	LockTimeout      time.Duration `default:"5s"  usage:"Row lock wait limit inside order transactions" flag:"db-lock-timeout"`
	StatementTimeout time.Duration `default:"10s" usage:"Statement time limit inside order transactions" flag:"db-statement-timeout"`
}

// ModelConfig controls the churn and spend predictor.
type ModelConfig struct {
	Dir                 string `default:"models" usage:"Directory the trained model is loaded from and saved to" flag:"model-dir"`
	TrainingSamples     int    `default:"2000" usage:"Synthetic rows generated per training run" flag:"training-samples"`
	TrainingSeed        uint64 `default:"0"    usage:"Seed for the synthetic dataset, 0 picks a time based seed" flag:"training-seed"`
	InsightsConcurrency int    `default:"4"    usage:"Parallel predictions when building insights" flag:"insights-concurrency"`
	InsightsLimit       int    `default:"100"  usage:"Customers analysed by GET /ml/insights without ?limit" flag:"insights-limit"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max            int           `default:"100"   usage:"Max requests per window and caller"`
	Window         time.Duration `default:"1m"    usage:"Rate limit window duration"`
	TrustForwarded bool          `default:"false" usage:"Key anonymous callers by X-Forwarded-For (behind a proxy only)" flag:"rate-limit-trust-forwarded"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.Auth.Secret == "" {
		c.Auth.Secret = getenv("SECRET_KEY")
	}
	if port := getenv("PORT"); port != "" && (c.Addr == defaultAddr || c.Addr == "") {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.Auth.Secret == "":
		return errors.New("token secret is required: set SHOP_AUTH_SECRET or SECRET_KEY")
	case c.Model.TrainingSamples < 10:
		return errors.Errorf("training samples must be at least 10, got %d", c.Model.TrainingSamples)
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}
