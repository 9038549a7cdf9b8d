package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/park285/cheese-elo-bot/internal/store"
)

const (
	envPrefix = "ELO_"
	envFile   = "ELO_CONFIG"
	dotEnv    = ".env"
)

// Load layers configuration, lowest precedence first:
//  1. Default()
//  2. YAML file named by ELO_CONFIG, if set
//  3. ELO_* environment variables; "__" separates nested keys
//     (ELO_STORE__BACKEND=redis, ELO_RATING__INITIAL=1200)
//
// A .env file in the working directory is read first; it never overrides
// variables already set in the process environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load(dotEnv)
	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv(envFile)); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		if s == envFile {
			return ""
		}
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the bot relies on.
func (c *AppConfig) Validate() error {
	c.Call = strings.TrimSpace(c.Call)
	if c.Call == "" {
		return fmt.Errorf("%w: call must not be empty", ErrInvalidConfig)
	}
	if len(c.Actions) != 2 {
		return fmt.Errorf("%w: actions must list exactly two keywords (report, confirm), got %d", ErrInvalidConfig, len(c.Actions))
	}
	if strings.EqualFold(strings.TrimSpace(c.Actions[0]), strings.TrimSpace(c.Actions[1])) {
		return fmt.Errorf("%w: report and confirm actions must differ", ErrInvalidConfig)
	}
	if c.Rating.MaxDifference <= 0 {
		return fmt.Errorf("%w: rating.max_difference must be positive", ErrInvalidConfig)
	}
	if c.Rating.MaxAdjustment <= 0 {
		return fmt.Errorf("%w: rating.max_adjustment must be positive", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("%w: flush_interval must be positive", ErrInvalidConfig)
	}
	switch c.Iris.Egress {
	case "", "http", "ws", "auto":
	default:
		return fmt.Errorf("%w: iris.egress must be http, ws or auto", ErrInvalidConfig)
	}
	if c.FetchRetries < 1 {
		c.FetchRetries = 1
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case "", store.BackendFile, store.BackendMemory:
	case store.BackendSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return fmt.Errorf("%w: store.sqlite_path required for sqlite backend", ErrInvalidConfig)
		}
	case store.BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("%w: store.redis_url required for redis backend", ErrInvalidConfig)
		}
	case store.BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("%w: store.database_url required for postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	return nil
}
