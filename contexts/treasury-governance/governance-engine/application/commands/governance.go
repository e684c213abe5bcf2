package commands

import (
	"context"
	"log/slog"
	"time"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	"governor/contexts/treasury-governance/governance-engine/domain/services"
	"governor/contexts/treasury-governance/governance-engine/ports"
)

const moduleName = "treasury-governance/governance-engine"

// GovernanceUseCase is the only writer of proposals, tallies and receipts.
// Quorum, Token and Rounding are fixed for the lifetime of the process.
type GovernanceUseCase struct {
	Proposals ports.ProposalStore
	Ledger    ports.VoteLedger
	Token     ports.TokenOracle
	Locker    ports.ProposalLocker
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Metrics   ports.Metrics
	Quorum    uint8
	Rounding  services.WeightRounding
	Logger    *slog.Logger
}

func (uc GovernanceUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc GovernanceUseCase) lock(ctx context.Context, proposalID uint64) (func(), error) {
	if uc.Locker == nil {
		return func() {}, nil
	}
	return uc.Locker.Lock(ctx, proposalID)
}

func (uc GovernanceUseCase) metrics() ports.Metrics {
	if uc.Metrics == nil {
		return noopMetrics{}
	}
	return uc.Metrics
}

func (uc GovernanceUseCase) rejected(operation string, reason string) {
	uc.metrics().OperationRejected(operation, reason)
}

type noopMetrics struct{}

func (noopMetrics) ProposalCreated() {}

func (noopMetrics) VoteCast(entities.VoteChoice, uint64) {}

func (noopMetrics) ExecutionFinished(string) {}

func (noopMetrics) OperationRejected(string, string) {}
