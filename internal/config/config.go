// Package config defines the server configuration and its validation.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blockworks-foundation/omega/internal/ledger"
)

// DefaultProgramID is the address the omega program is registered at when
// none is configured.
const DefaultProgramID = "Ha4hKUmPyqg9YMGkEsNWbAGQ7TiXt6PKjPv3m4o3isLR"

// Config is the root configuration structure. Fields are populated from an
// optional TOML file and then overridden by environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Ledger   LedgerConfig   `toml:"ledger"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	RequestTimeout  duration `toml:"request_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	CORSOrigin      string   `toml:"cors_origin"`
}

// DatabaseConfig selects the Postgres account store. An empty URL keeps all
// state in memory.
type DatabaseConfig struct {
	URL           string `toml:"url"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig enables the read-through account cache.
type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// LedgerConfig holds the hosted ledger parameters.
type LedgerConfig struct {
	ProgramID           string  `toml:"program_id"`
	VerifySignatures    bool    `toml:"verify_signatures"`
	AllowAirdrop        bool    `toml:"allow_airdrop"`
	MaxAirdrop          uint64  `toml:"max_airdrop"`
	LamportsPerByteYear uint64  `toml:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `toml:"exemption_threshold"`
}

// duration wraps time.Duration so TOML strings like "30s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config for a local development ledger.
func Defaults() Config {
	rent := ledger.DefaultRent()
	return Config{
		Server: ServerConfig{
			Port:            8080,
			RequestTimeout:  duration{30 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
			CORSOrigin:      "*",
		},
		Database: DatabaseConfig{RunMigrations: true},
		Redis:    RedisConfig{CacheTTL: duration{30 * time.Second}},
		Ledger: LedgerConfig{
			ProgramID:           DefaultProgramID,
			VerifySignatures:    true,
			AllowAirdrop:        true,
			MaxAirdrop:          10_000_000_000,
			LamportsPerByteYear: rent.LamportsPerByteYear,
			ExemptionThreshold:  rent.ExemptionThreshold,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks Config for invalid values and returns a combined error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, text)", c.LogFormat))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, "server: shutdown_timeout must be positive")
	}
	if c.Redis.URL != "" && c.Redis.CacheTTL.Duration <= 0 {
		errs = append(errs, "redis: cache_ttl must be positive")
	}
	if _, err := ledger.ParsePubkey(c.Ledger.ProgramID); err != nil {
		errs = append(errs, fmt.Sprintf("ledger: program_id %q: %v", c.Ledger.ProgramID, err))
	}
	if c.Ledger.LamportsPerByteYear == 0 {
		errs = append(errs, "ledger: lamports_per_byte_year must be positive")
	}
	if c.Ledger.ExemptionThreshold <= 0 {
		errs = append(errs, "ledger: exemption_threshold must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SlogLevel returns the configured log level. Validate must have passed.
func (c *Config) SlogLevel() slog.Level {
	return validLogLevels[strings.ToLower(c.LogLevel)]
}

// ProgramKey returns the parsed omega program address.
func (c *Config) ProgramKey() (ledger.Pubkey, error) {
	return ledger.ParsePubkey(c.Ledger.ProgramID)
}

// Rent returns the rent parameters of the hosted ledger.
func (c *Config) Rent() ledger.Rent {
	r := ledger.DefaultRent()
	r.LamportsPerByteYear = c.Ledger.LamportsPerByteYear
	r.ExemptionThreshold = c.Ledger.ExemptionThreshold
	return r
}
