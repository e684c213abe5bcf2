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

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `yaml:"service_name"`
	HTTPPort    string `yaml:"http_port"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	PostgresDSN string `yaml:"postgres_dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	RedisURL    string `yaml:"redis_url"`
	NATSURL     string `yaml:"nats_url"`

	GovernanceToken string            `yaml:"governance_token"`
	Quorum          int               `yaml:"quorum"`
	WeightRounding  string            `yaml:"weight_rounding"`
	TokenOracle     TokenOracleConfig `yaml:"token_oracle"`

	JWTSecret string `yaml:"jwt_secret"`
	// AdminAccounts may call the operator endpoints.
	AdminAccounts []string `yaml:"admin_accounts"`

	LockTTL         time.Duration `yaml:"lock_ttl"`
	OutboxBatchSize int           `yaml:"outbox_batch_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

// TokenOracleConfig selects where balances are read and payouts are sent.
type TokenOracleConfig struct {
	// Kind is memory, http or substrate.
	Kind     string        `yaml:"kind"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// TreasurySeed funds payouts on substrate and the in-memory treasury
	// account otherwise.
	TreasurySeed string `yaml:"treasury_seed"`
	SS58Prefix   uint16 `yaml:"ss58_prefix"`
	// Genesis seeds the in-memory ledger with balances.
	Genesis map[string]uint64 `yaml:"genesis"`
}

// maxSS58Prefix is the largest prefix the two-byte SS58 format can carry.
const maxSS58Prefix = 16383

const (
	OracleMemory    = "memory"
	OracleHTTP      = "http"
	OracleSubstrate = "substrate"
)

func Default() Config {
	return Config{
		ServiceName:     "governor",
		HTTPPort:        "8080",
		LogLevel:        "info",
		LogFormat:       "text",
		AutoMigrate:     true,
		GovernanceToken: "GOV",
		Quorum:          50,
		WeightRounding:  "scale_first",
		TokenOracle: TokenOracleConfig{
			Kind:       OracleMemory,
			Timeout:    10 * time.Second,
			SS58Prefix: 42,
		},
		LockTTL:         30 * time.Second,
		OutboxBatchSize: 100,
		PollInterval:    time.Second,
	}
}

// Load applies defaults, then the YAML file named by GOVERNOR_CONFIG, then
// environment overrides, and validates the result.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("GOVERNOR_CONFIG"))
}

// LoadFrom is Load with an explicit YAML path. An empty path skips the file.
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides cfg from the environment. Numeric, duration and bool
// variables that are set but malformed are errors, never silent fallbacks.
func applyEnv(cfg *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.ServiceName = envString("SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPPort = envString("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("LOG_FORMAT", cfg.LogFormat)
	cfg.PostgresDSN = envString("POSTGRES_DSN", cfg.PostgresDSN)
	collect(envBool("DB_AUTO_MIGRATE", &cfg.AutoMigrate))
	cfg.RedisURL = envString("REDIS_URL", cfg.RedisURL)
	cfg.NATSURL = envString("NATS_URL", cfg.NATSURL)
	cfg.GovernanceToken = envString("GOVERNANCE_TOKEN", cfg.GovernanceToken)
	collect(envInt("GOVERNANCE_QUORUM", &cfg.Quorum))
	cfg.WeightRounding = envString("GOVERNANCE_WEIGHT_ROUNDING", cfg.WeightRounding)
	cfg.TokenOracle.Kind = envString("TOKEN_ORACLE_KIND", cfg.TokenOracle.Kind)
	cfg.TokenOracle.Endpoint = envString("TOKEN_ORACLE_ENDPOINT", cfg.TokenOracle.Endpoint)
	collect(envDuration("TOKEN_ORACLE_TIMEOUT", &cfg.TokenOracle.Timeout))
	cfg.TokenOracle.TreasurySeed = envString("TOKEN_ORACLE_TREASURY_SEED", cfg.TokenOracle.TreasurySeed)
	collect(envSS58Prefix("TOKEN_ORACLE_SS58_PREFIX", &cfg.TokenOracle.SS58Prefix))
	cfg.JWTSecret = envString("JWT_SECRET", cfg.JWTSecret)
	cfg.AdminAccounts = envList("ADMIN_ACCOUNTS", cfg.AdminAccounts)
	collect(envDuration("LOCK_TTL", &cfg.LockTTL))
	collect(envInt("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize))
	collect(envDuration("OUTBOX_POLL_INTERVAL", &cfg.PollInterval))
	return errors.Join(errs...)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPPort) == "" {
		return fmt.Errorf("http_port is required")
	}
	if strings.TrimSpace(c.GovernanceToken) == "" {
		return fmt.Errorf("governance_token is required")
	}
	if c.Quorum < 0 || c.Quorum > 255 {
		return fmt.Errorf("quorum must be between 0 and 255, got %d", c.Quorum)
	}
	switch strings.ToLower(strings.TrimSpace(c.WeightRounding)) {
	case "", "scale_first", "divide_first":
	default:
		return fmt.Errorf("weight_rounding must be scale_first or divide_first, got %q", c.WeightRounding)
	}
	switch c.TokenOracle.Kind {
	case OracleMemory:
	case OracleHTTP, OracleSubstrate:
		if strings.TrimSpace(c.TokenOracle.Endpoint) == "" {
			return fmt.Errorf("token_oracle.endpoint is required for kind %s", c.TokenOracle.Kind)
		}
		if c.TokenOracle.Kind == OracleSubstrate && strings.TrimSpace(c.TokenOracle.TreasurySeed) == "" {
			return fmt.Errorf("token_oracle.treasury_seed is required for kind substrate")
		}
	default:
		return fmt.Errorf("token_oracle.kind must be memory, http or substrate, got %q", c.TokenOracle.Kind)
	}
	if c.TokenOracle.SS58Prefix > maxSS58Prefix {
		return fmt.Errorf("token_oracle.ss58_prefix out of range: %d", c.TokenOracle.SS58Prefix)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("outbox_batch_size must be positive")
	}
	return nil
}

func envString(name string, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return raw
}

func envInt(name string, target *int) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	*target = value
	return nil
}

// envSS58Prefix range-checks before narrowing so out-of-range values cannot
// wrap onto a valid network prefix.
func envSS58Prefix(name string, target *uint16) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	if value < 0 || value > maxSS58Prefix {
		return fmt.Errorf("%s must be between 0 and %d, got %d", name, maxSS58Prefix, value)
	}
	*target = uint16(value)
	return nil
}

func envDuration(name string, target *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s must be a duration, got %q", name, raw)
	}
	*target = value
	return nil
}

func envBool(name string, target *bool) error {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch raw {
	case "":
	case "1", "true", "t", "yes", "y", "on":
		*target = true
	case "0", "false", "f", "no", "n", "off":
		*target = false
	default:
		return fmt.Errorf("%s must be a boolean, got %q", name, raw)
	}
	return nil
}

func envList(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
