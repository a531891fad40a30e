package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds process configuration. Values come from the
// environment (optionally seeded from a .env file); SERVER_SECRET and
// MONGODB_URI are required.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AuthConfig struct {
	// Secret gates service routes (header X-API-Key) and signs
	// credential tokens. Rotating it revokes every outstanding token.
	Secret     string
	GateHeader string
	// TokenTTL of 0 issues tokens without expiry.
	TokenTTL   time.Duration
	SessionTTL time.Duration
	// BcryptCost tunes the password hashing work factor; 0 means the
	// library default.
	BcryptCost int
	// AccountCollection is the default collection AuthContext and the
	// auth routes fall back to.
	AccountCollection string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// Load reads configuration from the environment and an optional .env
// file next to the binary.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "corestack")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("AUTH_GATE_HEADER", "X-API-Key")
	viper.SetDefault("AUTH_TOKEN_TTL_MINUTES", 11520) // 8 days
	viper.SetDefault("SESSION_TTL_MINUTES", 11520)
	viper.SetDefault("AUTH_ACCOUNT_COLLECTION", "accounts")
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Host:         viper.GetString("SERVER_HOST"),
			Port:         viper.GetString("SERVER_PORT"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Secret:            os.Getenv("SERVER_SECRET"),
			GateHeader:        viper.GetString("AUTH_GATE_HEADER"),
			TokenTTL:          time.Duration(viper.GetInt("AUTH_TOKEN_TTL_MINUTES")) * time.Minute,
			SessionTTL:        time.Duration(viper.GetInt("SESSION_TTL_MINUTES")) * time.Minute,
			BcryptCost:        viper.GetInt("AUTH_BCRYPT_COST"),
			AccountCollection: viper.GetString("AUTH_ACCOUNT_COLLECTION"),
		},
		MongoDB: MongoDBConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("environment variable SERVER_SECRET is required")
	}
	if cfg.MongoDB.URI == "" {
		return nil, fmt.Errorf("environment variable MONGODB_URI is required")
	}
	return cfg, nil
}
