// Package config loads and exposes application configuration (TOML).
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultJWTExpiresIn     = "24h"
	DefaultStorageDriver    = "memory"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "claimd"
	DefaultPGSSLMode        = "disable"
	DefaultProofTimeout     = "30s"
	DefaultProofMaxAge      = "5m"
	DefaultProofRate        = 5.0
	DefaultProofBurst       = 10
	DefaultCustodianMode    = "http"
	DefaultCustodianTimeout = "30s"
	DefaultClaimTTL         = "2160h"
	DefaultBatchSize        = 100
	DefaultLinkWait         = "10s"
	DefaultSweepBatch       = 500
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Custodian modes.
const (
	CustodianHTTP   = "http"
	CustodianLedger = "ledger"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig       `toml:"log"`
	Server     ServerConfig    `toml:"server"`
	Auth       AuthConfig      `toml:"auth"`
	Owner      OwnerConfig     `toml:"owner"`
	Storage    StorageConfig   `toml:"storage"`
	Postgres   PostgresConfig  `toml:"postgres"`
	Proof      ProofConfig     `toml:"proof"`
	Custodians CustodianConfig `toml:"custodians"`
	Policy     PolicyConfig    `toml:"policy"`
	Sweep      SweepConfig     `toml:"sweep"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address and how long POST /links waits for verification.
type ServerConfig struct {
	Addr     string `toml:"addr"`
	LinkWait string `toml:"link_wait"`
}

// AuthConfig holds JWT secret and token expiry (e.g. 24h).
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// OwnerConfig names the account allowed to pause the service and curate the token allow-list.
type OwnerConfig struct {
	Account string `toml:"account"`
}

// StorageConfig selects the Store implementation ("memory" or "postgres").
type StorageConfig struct {
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// ProofConfig configures the external proof verifier and the budget around it.
type ProofConfig struct {
	VerifierURL    string  `toml:"verifier_url"`
	APIKey         string  `toml:"api_key"`
	Timeout        string  `toml:"timeout"`
	Rate           float64 `toml:"rate"`
	Burst          int     `toml:"burst"`
	EnforceRecency bool    `toml:"enforce_recency"`
	MaxAge         string  `toml:"max_age"`
	// AcceptAll replaces the HTTP verifier with one that accepts every proof. Development only.
	AcceptAll bool `toml:"accept_all"`
}

// CustodianConfig holds the endpoints of the external asset custodians.
type CustodianConfig struct {
	Mode      string `toml:"mode"`
	NativeURL string `toml:"native_url"`
	FTURL     string `toml:"ft_url"`
	NFTURL    string `toml:"nft_url"`
	APIKey    string `toml:"api_key"`
	Timeout   string `toml:"timeout"`
}

// PolicyConfig holds claim lifecycle constants.
type PolicyConfig struct {
	ClaimTTL  string `toml:"claim_ttl"`
	BatchSize int    `toml:"batch_size"`
}

// SweepConfig schedules the expired-claim sweeper; an empty schedule disables it.
type SweepConfig struct {
	Schedule string `toml:"schedule"`
	Batch    int    `toml:"batch"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:     DefaultHTTPAddr,
			LinkWait: DefaultLinkWait,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Storage: StorageConfig{
			Driver: DefaultStorageDriver,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Proof: ProofConfig{
			Timeout:        DefaultProofTimeout,
			Rate:           DefaultProofRate,
			Burst:          DefaultProofBurst,
			EnforceRecency: true,
			MaxAge:         DefaultProofMaxAge,
		},
		Custodians: CustodianConfig{
			Mode:    DefaultCustodianMode,
			Timeout: DefaultCustodianTimeout,
		},
		Policy: PolicyConfig{
			ClaimTTL:  DefaultClaimTTL,
			BatchSize: DefaultBatchSize,
		},
		Sweep: SweepConfig{
			Batch: DefaultSweepBatch,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Duration parses a Go duration string, falling back to def when raw is blank.
func Duration(raw, def string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("duration must not be negative")
	}
	return d, nil
}
