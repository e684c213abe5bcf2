package governanceengine

import (
	"log/slog"

	httpadapter "governor/contexts/treasury-governance/governance-engine/adapters/http"
	"governor/contexts/treasury-governance/governance-engine/adapters/memory"
	"governor/contexts/treasury-governance/governance-engine/application/commands"
	"governor/contexts/treasury-governance/governance-engine/application/queries"
	"governor/contexts/treasury-governance/governance-engine/application/workers"
	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	"governor/contexts/treasury-governance/governance-engine/domain/services"
	"governor/contexts/treasury-governance/governance-engine/ports"
)

type Module struct {
	Handler     httpadapter.Handler
	OutboxRelay workers.OutboxRelay
	Store       *memory.Store
	Token       *memory.TokenLedger
}

type Dependencies struct {
	Proposals       ports.ProposalStore
	Ledger          ports.VoteLedger
	Token           ports.TokenOracle
	Locker          ports.ProposalLocker
	Outbox          ports.OutboxRepository
	Publisher       ports.EventPublisher
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	Metrics         ports.Metrics
	GovernanceToken string
	Quorum          uint8
	Rounding        services.WeightRounding
	OutboxBatchSize int
	Logger          *slog.Logger
}

func NewModule(deps Dependencies) Module {
	rounding := deps.Rounding
	if rounding == "" {
		rounding = services.WeightRoundingScaleFirst
	}
	var outbox ports.OutboxWriter
	if deps.Outbox != nil {
		outbox = deps.Outbox
	}
	governance := commands.GovernanceUseCase{
		Proposals: deps.Proposals,
		Ledger:    deps.Ledger,
		Token:     deps.Token,
		Locker:    deps.Locker,
		Outbox:    outbox,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Metrics:   deps.Metrics,
		Quorum:    deps.Quorum,
		Rounding:  rounding,
		Logger:    deps.Logger,
	}
	proposalQueries := queries.ProposalQueries{
		Proposals: deps.Proposals,
		Ledger:    deps.Ledger,
		Clock:     deps.Clock,
		Settings: queries.GovernanceConfig{
			GovernanceToken: deps.GovernanceToken,
			Quorum:          deps.Quorum,
			Rounding:        rounding,
		},
	}
	return Module{
		Handler: httpadapter.Handler{
			Governance: governance,
			Queries:    proposalQueries,
			Logger:     deps.Logger,
		},
		OutboxRelay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.OutboxBatchSize,
			Logger:    deps.Logger,
		},
	}
}

// InMemoryOptions configures a single-process module backed by memory
// adapters and an in-process token ledger.
type InMemoryOptions struct {
	GovernanceToken string
	Treasury        entities.AccountID
	Quorum          uint8
	Rounding        services.WeightRounding
	Token           ports.TokenOracle
	Publisher       ports.EventPublisher
	Clock           ports.Clock
	Metrics         ports.Metrics
}

// NewInMemoryModule wires memory adapters. When opts.Token is nil a fresh
// TokenLedger is created and exposed as Module.Token.
func NewInMemoryModule(opts InMemoryOptions, logger *slog.Logger) Module {
	store := memory.NewStore()
	var ledger *memory.TokenLedger
	token := opts.Token
	if token == nil {
		ledger = memory.NewTokenLedger(opts.GovernanceToken, opts.Treasury)
		token = ledger
	}
	clock := opts.Clock
	if clock == nil {
		clock = memory.SystemClock{}
	}
	module := NewModule(Dependencies{
		Proposals:       store,
		Ledger:          store,
		Token:           token,
		Locker:          memory.NewKeyedLocker(),
		Outbox:          store,
		Publisher:       opts.Publisher,
		Clock:           clock,
		IDGen:           store,
		Metrics:         opts.Metrics,
		GovernanceToken: opts.GovernanceToken,
		Quorum:          opts.Quorum,
		Rounding:        opts.Rounding,
		Logger:          logger,
	})
	module.Store = store
	module.Token = ledger
	return module
}
