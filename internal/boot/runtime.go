// Package boot turns the loaded configuration into validated runtime settings.
package boot

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/memohai/claimd/internal/config"
)

// RuntimeConfig holds parsed runtime settings. HTTP_ADDR, JWT_SECRET and OWNER_ACCOUNT
// override their config values.
type RuntimeConfig struct {
	JwtSecret        string
	JwtExpiresIn     time.Duration
	ServerAddr       string
	Owner            string
	LinkWait         time.Duration
	ClaimTTL         time.Duration
	BatchSize        int
	ProofTimeout     time.Duration
	ProofMaxAge      time.Duration
	CustodianTimeout time.Duration
}

// ConfigPath resolves the config file: an explicit path, then CONFIG_PATH, then the default.
func ConfigPath(explicit string) string {
	if value := strings.TrimSpace(explicit); value != "" {
		return value
	}
	if value := strings.TrimSpace(os.Getenv("CONFIG_PATH")); value != "" {
		return value
	}
	return config.DefaultConfigPath
}

// ProvideRuntimeConfig builds RuntimeConfig from cfg and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		JwtSecret:  cfg.Auth.JWTSecret,
		ServerAddr: cfg.Server.Addr,
		Owner:      strings.TrimSpace(cfg.Owner.Account),
		BatchSize:  cfg.Policy.BatchSize,
	}
	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}
	if value := os.Getenv("JWT_SECRET"); value != "" {
		ret.JwtSecret = value
	}
	if value := os.Getenv("OWNER_ACCOUNT"); value != "" {
		ret.Owner = strings.TrimSpace(value)
	}
	if strings.TrimSpace(ret.JwtSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ret.Owner == "" {
		return nil, errors.New("owner account is required")
	}

	durations := []struct {
		name string
		raw  string
		def  string
		dst  *time.Duration
	}{
		{"auth.jwt_expires_in", cfg.Auth.JWTExpiresIn, config.DefaultJWTExpiresIn, &ret.JwtExpiresIn},
		{"server.link_wait", cfg.Server.LinkWait, config.DefaultLinkWait, &ret.LinkWait},
		{"policy.claim_ttl", cfg.Policy.ClaimTTL, config.DefaultClaimTTL, &ret.ClaimTTL},
		{"proof.timeout", cfg.Proof.Timeout, config.DefaultProofTimeout, &ret.ProofTimeout},
		{"proof.max_age", cfg.Proof.MaxAge, config.DefaultProofMaxAge, &ret.ProofMaxAge},
		{"custodians.timeout", cfg.Custodians.Timeout, config.DefaultCustodianTimeout, &ret.CustodianTimeout},
	}
	for _, d := range durations {
		v, err := config.Duration(d.raw, d.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = v
	}
	if ret.ClaimTTL == 0 {
		return nil, errors.New("policy.claim_ttl must be positive")
	}
	return ret, nil
}
