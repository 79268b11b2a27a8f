package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when path is empty) on top of
// the defaults, then applies environment overrides. The result has not been
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "PORT")
	setDuration(&cfg.Server.RequestTimeout, "REQUEST_TIMEOUT")
	setStr(&cfg.Server.CORSOrigin, "CORS_ORIGIN")

	setStr(&cfg.Database.URL, "DATABASE_URL")
	setBool(&cfg.Database.RunMigrations, "RUN_MIGRATIONS")

	setStr(&cfg.Redis.URL, "REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "CACHE_TTL")

	setStr(&cfg.Ledger.ProgramID, "OMEGA_PROGRAM_ID")
	setBool(&cfg.Ledger.AllowAirdrop, "OMEGA_ALLOW_AIRDROP")
	setUint64(&cfg.Ledger.MaxAirdrop, "OMEGA_MAX_AIRDROP")
	setBool(&cfg.Ledger.VerifySignatures, "OMEGA_VERIFY_SIGNATURES")
	setUint64(&cfg.Ledger.LamportsPerByteYear, "OMEGA_LAMPORTS_PER_BYTE_YEAR")

	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.LogFormat, "LOG_FORMAT")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
