package db

import (
	"testing"

	"github.com/memohai/claimd/internal/config"
)

func TestRunMigrateUnknownCommand(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "claimd",
		Password: "secret",
		Database: "claimd",
		SSLMode:  "disable",
	}
	err := RunMigrate(nil, cfg, nil, "invalid", nil)
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunMigrateForceNeedsVersion(t *testing.T) {
	err := MigrateDSN(nil, "postgres://localhost/claimd", nil, "force", nil)
	if err == nil {
		t.Fatal("expected error for force without version")
	}
}
