package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "bountyboard.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("BOUNTYBOARD_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit YAML path. A missing file is not an
// error.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays non-empty environment variables onto cfg.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setList(&cfg.Server.CORSOrigins, "BOUNTYBOARD_CORS_ORIGINS")
	setDuration(&cfg.Server.ShutdownTimeout, "BOUNTYBOARD_SHUTDOWN_TIMEOUT")
	setString(&cfg.Store.Driver, "BOUNTYBOARD_STORE")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "BOUNTYBOARD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "BOUNTYBOARD_PG_MIN_CONNS")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "BOUNTYBOARD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "BOUNTYBOARD_LOG_SERVICE")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "BOUNTYBOARD_TOKEN_TTL")
	setString(&cfg.Ledger.SettlementAsset, "BOUNTYBOARD_SETTLEMENT_ASSET")
	setString(&cfg.Ledger.ProgramSecret, "LEDGER_PROGRAM_SECRET")
	setBool(&cfg.Ledger.FaucetEnabled, "BOUNTYBOARD_FAUCET_ENABLED")
	setUint64(&cfg.Ledger.FaucetMax, "BOUNTYBOARD_FAUCET_MAX")
	setUint64(&cfg.Ledger.FaucetDailyMax, "BOUNTYBOARD_FAUCET_DAILY_MAX")
	setString(&cfg.Cache.Backend, "BOUNTYBOARD_CACHE_BACKEND")
	setDuration(&cfg.Cache.IdempotencyTTL, "BOUNTYBOARD_IDEMPOTENCY_TTL")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setInt(&cfg.Worker.MaxWorkers, "BOUNTYBOARD_MAX_WORKERS")
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver %q: must be postgres or memory", cfg.Store.Driver)
	}
	switch cfg.Cache.Backend {
	case "memory":
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("cache.backend nats requires nats.url")
		}
	default:
		return fmt.Errorf("cache.backend %q: must be memory or nats", cfg.Cache.Backend)
	}
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if cfg.Ledger.SettlementAsset == "" {
		return errors.New("ledger.settlement_asset is required")
	}
	if len(cfg.Ledger.ProgramSecret) < 16 {
		return errors.New("ledger.program_secret must be at least 16 bytes")
	}
	if cfg.Worker.MaxWorkers < 1 {
		return errors.New("worker.max_workers must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
