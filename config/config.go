package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nasermirzaei89/env"
)

var ErrMissingMongoURI = errors.New("MONGODB_URI must be set")

type Config struct {
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	Port        string
	Environment string
	GinMode     string
	LogLevel    string

	AllowedOrigins  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	RateLimit RateLimit
}

type RateLimit struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// LoadDotEnv reads a .env file into the process environment. It reports
// whether a file was found; a missing file is not an error.
func LoadDotEnv(filenames ...string) bool {
	return godotenv.Load(filenames...) == nil
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		MongoURI:        env.GetString("MONGODB_URI", ""),
		MongoDatabase:   env.GetString("MONGODB_DATABASE", "blog"),
		MongoCollection: env.GetString("MONGODB_COLLECTION", "posts"),
		Port:            env.GetString("PORT", "3000"),
		Environment:     env.GetString("APP_ENV", "development"),
		GinMode:         env.GetString("GIN_MODE", ""),
		LogLevel:        env.GetString("LOG_LEVEL", "info"),
		AllowedOrigins:  env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4200"}),
		RateLimit: RateLimit{
			Enabled: env.GetBool("RATE_LIMIT_ENABLED", true),
		},
	}

	if cfg.MongoURI == "" {
		return nil, ErrMissingMongoURI
	}

	switch cfg.GinMode {
	case "", "debug", "release", "test":
	default:
		return nil, fmt.Errorf("invalid GIN_MODE %q", cfg.GinMode)
	}

	for _, origin := range cfg.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return nil, fmt.Errorf("invalid CORS origin %q: must be * or start with http:// or https://", origin)
		}
	}

	var err error
	if cfg.RequestTimeout, err = duration("REQUEST_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = duration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	rps := env.GetString("RATE_LIMIT_RPS", "20")
	if cfg.RateLimit.RPS, err = strconv.ParseFloat(rps, 64); err != nil || cfg.RateLimit.RPS <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS %q", rps)
	}
	burst := env.GetString("RATE_LIMIT_BURST", "40")
	if cfg.RateLimit.Burst, err = strconv.Atoi(burst); err != nil || cfg.RateLimit.Burst <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST %q", burst)
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func duration(key, def string) (time.Duration, error) {
	raw := env.GetString(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}
