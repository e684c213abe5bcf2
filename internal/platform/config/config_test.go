package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GOVERNOR_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPPort != "8080" || cfg.Quorum != 50 || cfg.TokenOracle.Kind != OracleMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.WeightRounding != "scale_first" || !cfg.AutoMigrate {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governor.yaml")
	body := strings.Join([]string{
		"http_port: \"9090\"",
		"governance_token: TREASURY",
		"quorum: 30",
		"weight_rounding: divide_first",
		"lock_ttl: 5s",
		"token_oracle:",
		"  kind: http",
		"  endpoint: http://token:7000",
		"  timeout: 2s",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	t.Setenv("GOVERNOR_CONFIG", path)
	t.Setenv("GOVERNANCE_QUORUM", "70")
	t.Setenv("DB_AUTO_MIGRATE", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPPort != "9090" || cfg.GovernanceToken != "TREASURY" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Quorum != 70 {
		t.Fatalf("expected env quorum 70, got %d", cfg.Quorum)
	}
	if cfg.AutoMigrate {
		t.Fatalf("expected auto migrate disabled by env")
	}
	if cfg.LockTTL != 5*time.Second || cfg.TokenOracle.Timeout != 2*time.Second {
		t.Fatalf("durations not parsed: lock=%s timeout=%s", cfg.LockTTL, cfg.TokenOracle.Timeout)
	}
	if cfg.TokenOracle.Kind != OracleHTTP || cfg.TokenOracle.SS58Prefix != 42 {
		t.Fatalf("unexpected oracle config: %+v", cfg.TokenOracle)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "quorum above uint8", mutate: func(c *Config) { c.Quorum = 256 }},
		{name: "negative quorum", mutate: func(c *Config) { c.Quorum = -1 }},
		{name: "unknown rounding", mutate: func(c *Config) { c.WeightRounding = "ceil" }},
		{name: "unknown oracle", mutate: func(c *Config) { c.TokenOracle.Kind = "ledger" }},
		{name: "http oracle without endpoint", mutate: func(c *Config) { c.TokenOracle.Kind = OracleHTTP }},
		{name: "substrate without seed", mutate: func(c *Config) {
			c.TokenOracle.Kind = OracleSubstrate
			c.TokenOracle.Endpoint = "ws://node:9944"
		}},
		{name: "empty token", mutate: func(c *Config) { c.GovernanceToken = " " }},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
		{name: "zero batch", mutate: func(c *Config) { c.OutboxBatchSize = 0 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadRejectsMalformedNumericEnvironment(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{name: "GOVERNANCE_QUORUM", value: "5O"},
		{name: "OUTBOX_BATCH_SIZE", value: "ten"},
		{name: "LOCK_TTL", value: "30"},
		{name: "DB_AUTO_MIGRATE", value: "maybe"},
		{name: "TOKEN_ORACLE_SS58_PREFIX", value: "0x2a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GOVERNOR_CONFIG", "")
			t.Setenv(tc.name, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.name) {
				t.Fatalf("expected error naming %s, got %v", tc.name, err)
			}
		})
	}
}

func TestLoadRejectsSS58PrefixThatWouldWrap(t *testing.T) {
	for _, value := range []string{"70000", "65578", "-1", "16384"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("GOVERNOR_CONFIG", "")
			t.Setenv("TOKEN_ORACLE_SS58_PREFIX", value)
			if cfg, err := Load(); err == nil {
				t.Fatalf("expected %s to be rejected, loaded prefix %d", value, cfg.TokenOracle.SS58Prefix)
			}
		})
	}

	t.Setenv("GOVERNOR_CONFIG", "")
	t.Setenv("TOKEN_ORACLE_SS58_PREFIX", "16383")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("largest prefix should load: %v", err)
	}
	if cfg.TokenOracle.SS58Prefix != 16383 {
		t.Fatalf("expected prefix 16383, got %d", cfg.TokenOracle.SS58Prefix)
	}
}

func TestLoadAdminAccountsFromEnvironment(t *testing.T) {
	t.Setenv("GOVERNOR_CONFIG", "")
	t.Setenv("ADMIN_ACCOUNTS", " ops , ,auditor")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.AdminAccounts) != 2 || cfg.AdminAccounts[0] != "ops" || cfg.AdminAccounts[1] != "auditor" {
		t.Fatalf("unexpected admin accounts: %q", cfg.AdminAccounts)
	}
}
