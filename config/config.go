// Package config loads service settings from the environment (and a .env file when present).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	PublicBaseURL  string
	DatabaseURL    string
	AuthToken      string
	AllowedOrigins []string
	LogLevel       string

	GracePeriod          time.Duration
	SweepInterval        time.Duration
	DistributionLeaseTTL time.Duration
	ExternalTimeout      time.Duration
	LedgerTimeout        time.Duration

	Gemini  GeminiConfig
	Twitter TwitterConfig
	EVM     EVMConfig
	R2      R2Config
	Redis   RedisConfig
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type TwitterConfig struct {
	BearerToken string
	UserToken   string
	BaseURL     string
}

type EVMConfig struct {
	RPCURL        string
	PrivateKey    string
	ChainID       int64
	AwardContract string
	TokenContract string
	TokenDecimals int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.Bucket != ""
}

type RedisConfig struct {
	Addr          string
	Password      string
	RatePerMinute int
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// LoadDotEnv loads .env into the process environment. A missing file is not an error.
func LoadDotEnv(paths ...string) (bool, error) {
	err := godotenv.Load(paths...)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load reads the configuration from the environment and validates it. Values that do not parse are
// reported together with the validation errors.
func Load() (*Config, error) {
	env := &envReader{}
	cfg := &Config{
		Port:           env.String("PORT", "5200"),
		PublicBaseURL:  env.String("PUBLIC_BASE_URL", "http://localhost:5200"),
		DatabaseURL:    env.String("DATABASE_URL", ""),
		AuthToken:      env.String("AUTH_TOKEN", ""),
		AllowedOrigins: env.List("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:       env.String("LOG_LEVEL", "production"),

		GracePeriod:          env.Duration("GRACE_PERIOD", 2*time.Hour),
		SweepInterval:        env.Duration("SWEEP_INTERVAL", time.Minute),
		DistributionLeaseTTL: env.Duration("DISTRIBUTION_LEASE_TTL", 10*time.Minute),
		ExternalTimeout:      env.Duration("EXTERNAL_TIMEOUT", 30*time.Second),
		LedgerTimeout:        env.Duration("LEDGER_TIMEOUT", 2*time.Minute),

		Gemini: GeminiConfig{
			APIKey:  env.String("GEMINI_API_KEY", ""),
			Model:   env.String("GEMINI_MODEL", "gemini-1.5-flash"),
			BaseURL: env.String("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		},
		Twitter: TwitterConfig{
			BearerToken: env.String("TWITTER_BEARER_TOKEN", ""),
			UserToken:   env.String("TWITTER_USER_TOKEN", ""),
			BaseURL:     env.String("TWITTER_BASE_URL", "https://api.twitter.com"),
		},
		EVM: EVMConfig{
			RPCURL:        env.String("EVM_RPC_URL", ""),
			PrivateKey:    env.String("EVM_PRIVATE_KEY", ""),
			ChainID:       env.Int64("EVM_CHAIN_ID", 0),
			AwardContract: env.String("AWARD_CONTRACT_ADDRESS", ""),
			TokenContract: env.String("TOKEN_CONTRACT_ADDRESS", ""),
			TokenDecimals: env.Int("TOKEN_DECIMALS", 18),
		},
		R2: R2Config{
			AccountID:       env.String("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     env.String("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: env.String("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          env.String("R2_BUCKET_NAME", ""),
			CDNBaseURL:      env.String("CDN_BASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:          env.String("REDIS_ADDR", ""),
			Password:      env.String("REDIS_PASSWORD", ""),
			RatePerMinute: env.Int("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := errors.Join(append(env.errs, cfg.Validate())...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.AuthToken == "" {
		errs = append(errs, errors.New("AUTH_TOKEN is required"))
	}
	if c.GracePeriod < 0 {
		errs = append(errs, fmt.Errorf("GRACE_PERIOD must not be negative, got %s", c.GracePeriod))
	}
	if c.DistributionLeaseTTL <= 0 {
		errs = append(errs, fmt.Errorf("DISTRIBUTION_LEASE_TTL must be positive, got %s", c.DistributionLeaseTTL))
	}
	if c.ExternalTimeout <= 0 || c.LedgerTimeout <= 0 {
		errs = append(errs, errors.New("EXTERNAL_TIMEOUT and LEDGER_TIMEOUT must be positive"))
	}
	// One reward step uploads metadata, broadcasts and then waits for the receipt. The lease must
	// outlast that or a second caller can take over mid-step.
	if step := c.ExternalTimeout + 2*c.LedgerTimeout; c.DistributionLeaseTTL <= step {
		errs = append(errs, fmt.Errorf("DISTRIBUTION_LEASE_TTL must exceed EXTERNAL_TIMEOUT + 2*LEDGER_TIMEOUT (%s), got %s", step, c.DistributionLeaseTTL))
	}
	if c.EVM.TokenDecimals < 0 || c.EVM.TokenDecimals > 36 {
		errs = append(errs, fmt.Errorf("TOKEN_DECIMALS out of range: %d", c.EVM.TokenDecimals))
	}
	return errors.Join(errs...)
}
