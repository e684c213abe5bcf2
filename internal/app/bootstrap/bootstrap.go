package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	governanceengine "governor/contexts/treasury-governance/governance-engine"
	"governor/contexts/treasury-governance/governance-engine/adapters/memory"
	postgresadapter "governor/contexts/treasury-governance/governance-engine/adapters/postgres"
	redisadapter "governor/contexts/treasury-governance/governance-engine/adapters/redis"
	"governor/contexts/treasury-governance/governance-engine/adapters/substrate"
	"governor/contexts/treasury-governance/governance-engine/adapters/tokenoracle"
	"governor/contexts/treasury-governance/governance-engine/application/workers"
	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	"governor/contexts/treasury-governance/governance-engine/domain/services"
	"governor/contexts/treasury-governance/governance-engine/ports"
	"governor/internal/platform/config"
	"governor/internal/platform/db"
	"governor/internal/platform/httpserver"
	"governor/internal/platform/messaging"
	"governor/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server *httpserver.Server
	// relay is set when the outbox lives in process memory and no worker
	// can reach it.
	relay        *workers.OutboxRelay
	pollInterval time.Duration
	closers      []func() error
	logger       *slog.Logger
}

type WorkerApp struct {
	relay        workers.OutboxRelay
	pollInterval time.Duration
	closers      []func() error
	logger       *slog.Logger
}

// NewLogger builds the process logger from log_level and log_format.
func NewLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", cfg.ServiceName)
}

type components struct {
	module  governanceengine.Module
	metrics *metrics.Governance
	health  map[string]httpserver.HealthCheck
	closers []func() error
	durable bool
}

func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func BuildAPI(ctx context.Context, cfg config.Config, logger *slog.Logger) (*APIApp, error) {
	logger = logger.With("process", "api")
	parts, err := build(ctx, cfg, logger, true)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(parts.module, httpserver.Options{
		Addr:          normalizeAddr(cfg.HTTPPort),
		JWTSecret:     []byte(cfg.JWTSecret),
		AdminAccounts: cfg.AdminAccounts,
		Metrics:       parts.metrics.Handler(),
		Health:        parts.health,
	}, logger)

	app := &APIApp{
		server:       server,
		pollInterval: cfg.PollInterval,
		closers:      parts.closers,
		logger:       logger,
	}
	if !parts.durable {
		relay := parts.module.OutboxRelay
		app.relay = &relay
	}
	return app, nil
}

// BuildWorker wires the outbox relay. The outbox must be durable for a
// separate process to drain it, so postgres_dsn is required.
func BuildWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*WorkerApp, error) {
	logger = logger.With("process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres_dsn is required for the worker")
	}
	parts, err := build(ctx, cfg, logger, false)
	if err != nil {
		return nil, err
	}
	return &WorkerApp{
		relay:        parts.module.OutboxRelay,
		pollInterval: cfg.PollInterval,
		closers:      parts.closers,
		logger:       logger,
	}, nil
}

// build wires storage and publishing. The token oracle and proposal locker
// are only wired when withEngine is set; the relay never touches them.
func build(ctx context.Context, cfg config.Config, logger *slog.Logger, withEngine bool) (parts components, err error) {
	defer func() {
		if err != nil {
			_ = parts.close()
		}
	}()

	rounding, err := services.ParseWeightRounding(cfg.WeightRounding)
	if err != nil {
		return parts, err
	}
	parts.metrics = metrics.NewGovernance()
	parts.health = make(map[string]httpserver.HealthCheck)

	deps := governanceengine.Dependencies{
		Clock:           memory.SystemClock{},
		Metrics:         parts.metrics,
		GovernanceToken: cfg.GovernanceToken,
		Quorum:          uint8(cfg.Quorum),
		Rounding:        rounding,
		OutboxBatchSize: cfg.OutboxBatchSize,
		Logger:          logger,
	}

	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		pg, err := db.Connect(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return parts, err
		}
		parts.closers = append(parts.closers, pg.Close)
		parts.health["postgres"] = pg.Ping

		repo := postgresadapter.NewRepository(pg.DB, logger)
		if cfg.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return parts, err
			}
		}
		if err := repo.EnsureConfig(ctx, cfg.GovernanceToken, uint8(cfg.Quorum)); err != nil {
			return parts, err
		}
		deps.Proposals = repo
		deps.Ledger = repo
		deps.Outbox = repo
		deps.IDGen = repo
		parts.durable = true
	} else {
		store := memory.NewStore()
		deps.Proposals = store
		deps.Ledger = store
		deps.Outbox = store
		deps.IDGen = store
		logger.Warn("postgres_dsn not set, governance state is process-local",
			"event", "bootstrap_memory_store",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}

	if withEngine {
		if err := buildEngineDeps(ctx, cfg, logger, &parts, &deps); err != nil {
			return parts, err
		}
	}

	if deps.Publisher, err = buildPublisher(ctx, cfg, logger, &parts); err != nil {
		return parts, err
	}

	parts.module = governanceengine.NewModule(deps)
	return parts, nil
}

func buildEngineDeps(ctx context.Context, cfg config.Config, logger *slog.Logger, parts *components, deps *governanceengine.Dependencies) error {
	token, err := buildTokenOracle(ctx, cfg, logger, parts)
	if err != nil {
		return err
	}
	deps.Token = token

	if strings.TrimSpace(cfg.RedisURL) == "" {
		deps.Locker = memory.NewKeyedLocker()
		return nil
	}
	client, err := redisadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	parts.closers = append(parts.closers, client.Close)
	parts.health["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	deps.Locker = redisadapter.NewLocker(client, cfg.LockTTL, logger)
	return nil
}

func buildTokenOracle(ctx context.Context, cfg config.Config, logger *slog.Logger, parts *components) (ports.TokenOracle, error) {
	switch cfg.TokenOracle.Kind {
	case config.OracleHTTP:
		client := tokenoracle.NewClient(cfg.TokenOracle.Endpoint, cfg.GovernanceToken, cfg.TokenOracle.Timeout)
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("token oracle unreachable: %w", err)
		}
		parts.health["token_oracle"] = client.Ping
		return client, nil
	case config.OracleSubstrate:
		return substrate.NewOracle(cfg.TokenOracle.Endpoint, cfg.TokenOracle.TreasurySeed, cfg.TokenOracle.SS58Prefix, logger)
	default:
		treasury := entities.AccountID(cfg.TokenOracle.TreasurySeed).Normalize()
		if treasury.IsZero() {
			treasury = "treasury"
		}
		ledger := memory.NewTokenLedger(cfg.GovernanceToken, treasury)
		for account, amount := range cfg.TokenOracle.Genesis {
			ledger.Mint(entities.AccountID(account).Normalize(), amount)
		}
		logger.Info("in-memory token ledger seeded",
			"event", "bootstrap_token_ledger_seeded",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"treasury", string(treasury),
			"accounts", len(cfg.TokenOracle.Genesis),
		)
		return ledger, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger, parts *components) (ports.EventPublisher, error) {
	if strings.TrimSpace(cfg.NATSURL) != "" {
		nc, err := messaging.ConnectNATS(cfg.NATSURL, cfg.ServiceName, logger)
		if err != nil {
			return nil, err
		}
		parts.closers = append(parts.closers, func() error {
			nc.Close()
			return nil
		})
		return nc, nil
	}

	bus := messaging.NewBus(logger)
	cancel := bus.Subscribe(ctx, messaging.AllTopics, "audit-log", func(_ context.Context, event ports.EventEnvelope) error {
		logger.Info("governance event",
			"event", "governance_event_audit",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"event_type", event.EventType,
			"event_id", event.EventID,
			"partition_key", event.PartitionKey,
		)
		return nil
	})
	parts.closers = append(parts.closers, func() error {
		cancel()
		return nil
	})
	return bus, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"in_process_relay", a.relay != nil,
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(ctx, a.pollInterval)
		})
	}
	return g.Wait()
}

func (a *APIApp) Close() error {
	parts := components{closers: a.closers}
	return parts.close()
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)
	return w.relay.Run(ctx, w.pollInterval)
}

func (w *WorkerApp) Close() error {
	parts := components{closers: w.closers}
	return parts.close()
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
