package queries

import (
	"context"
	"sort"
	"time"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	"governor/contexts/treasury-governance/governance-engine/domain/services"
	"governor/contexts/treasury-governance/governance-engine/ports"
)

// GovernanceConfig is the construction-time configuration of the engine.
type GovernanceConfig struct {
	GovernanceToken string
	Quorum          uint8
	Rounding        services.WeightRounding
}

// ProposalQueries serves read-only views. Returned values are copies.
type ProposalQueries struct {
	Proposals ports.ProposalStore
	Ledger    ports.VoteLedger
	Clock     ports.Clock
	Settings  GovernanceConfig
}

func (uc ProposalQueries) GetProposal(ctx context.Context, proposalID uint64) (entities.Proposal, bool, error) {
	return uc.Proposals.GetProposal(ctx, proposalID)
}

func (uc ProposalQueries) GetTally(ctx context.Context, proposalID uint64) (entities.VoteTally, bool, error) {
	return uc.Proposals.GetTally(ctx, proposalID)
}

// NextProposalID reports the id counter, which equals the number of
// proposals created so far.
func (uc ProposalQueries) NextProposalID(ctx context.Context) (uint64, error) {
	return uc.Proposals.NextProposalID(ctx)
}

func (uc ProposalQueries) HasVoted(ctx context.Context, proposalID uint64, account entities.AccountID) (bool, error) {
	return uc.Ledger.HasVoted(ctx, proposalID, account.Normalize())
}

// Now returns the engine clock in Unix seconds.
func (uc ProposalQueries) Now() int64 {
	if uc.Clock == nil {
		return time.Now().UTC().Unix()
	}
	return uc.Clock.Now().UTC().Unix()
}

// ListUnpaid returns executed proposals whose payout is pending or failed,
// oldest first.
func (uc ProposalQueries) ListUnpaid(ctx context.Context) ([]entities.Proposal, error) {
	items, err := uc.Proposals.ListUnpaid(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ProposalID < items[j].ProposalID
	})
	return items, nil
}

func (uc ProposalQueries) Config() GovernanceConfig {
	return uc.Settings
}
