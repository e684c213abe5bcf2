package commands

import (
	"context"
	"math/big"

	application "governor/contexts/treasury-governance/governance-engine/application"
	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"
	"governor/contexts/treasury-governance/governance-engine/domain/services"

	"github.com/holiman/uint256"
)

// ProposeCommand requests a treasury transfer of Amount to Beneficiary after a
// voting window of DurationMinutes.
type ProposeCommand struct {
	Proposer        entities.AccountID
	Beneficiary     entities.AccountID
	Amount          *big.Int
	DurationMinutes int64
}

type ProposeResult struct {
	Proposal entities.Proposal
}

// Propose validates amount then duration, and stores the proposal with a zero
// tally. It never touches the token.
func (uc GovernanceUseCase) Propose(ctx context.Context, cmd ProposeCommand) (ProposeResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	beneficiary := cmd.Beneficiary.Normalize()
	logger.Info("proposal create processing started",
		"event", "governance_propose_started",
		"module", moduleName,
		"layer", "application",
		"proposer", string(cmd.Proposer.Normalize()),
		"beneficiary", string(beneficiary),
		"duration_minutes", cmd.DurationMinutes,
	)

	if cmd.Amount == nil || cmd.Amount.Sign() <= 0 {
		logger.Warn("proposal amount rejected",
			"event", "governance_propose_amount_invalid",
			"module", moduleName,
			"layer", "application",
			"beneficiary", string(beneficiary),
		)
		uc.rejected("propose", "amount_zero")
		return ProposeResult{}, domainerrors.ErrAmountShouldNotBeZero
	}
	if cmd.DurationMinutes <= 0 {
		logger.Warn("proposal duration rejected",
			"event", "governance_propose_duration_invalid",
			"module", moduleName,
			"layer", "application",
			"beneficiary", string(beneficiary),
			"duration_minutes", cmd.DurationMinutes,
		)
		uc.rejected("propose", "duration")
		return ProposeResult{}, domainerrors.ErrDurationError
	}
	amount, overflow := uint256.FromBig(cmd.Amount)
	if overflow || beneficiary.IsZero() {
		logger.Warn("proposal input rejected",
			"event", "governance_propose_validation_failed",
			"module", moduleName,
			"layer", "application",
			"beneficiary", string(beneficiary),
			"amount_overflow", overflow,
		)
		uc.rejected("propose", "invalid_input")
		return ProposeResult{}, domainerrors.ErrInvalidInput
	}

	now := uc.now()
	voteStart, voteEnd, err := services.VotingWindow(now.Unix(), cmd.DurationMinutes)
	if err != nil {
		logger.Warn("proposal voting window rejected",
			"event", "governance_propose_window_invalid",
			"module", moduleName,
			"layer", "application",
			"duration_minutes", cmd.DurationMinutes,
			"error", err.Error(),
		)
		uc.rejected("propose", "duration")
		return ProposeResult{}, err
	}

	proposal, err := uc.Proposals.CreateProposal(ctx, entities.Proposal{
		Beneficiary: beneficiary,
		VoteStart:   voteStart,
		VoteEnd:     voteEnd,
		Amount:      *amount,
		Payout:      entities.PayoutStatusNone,
		CreatedAt:   now,
	})
	if err != nil {
		logger.Error("proposal create failed",
			"event", "governance_propose_store_failed",
			"module", moduleName,
			"layer", "application",
			"beneficiary", string(beneficiary),
			"error", err.Error(),
		)
		return ProposeResult{}, err
	}

	uc.appendEvent(ctx, "proposal.created", proposal.ProposalID, now, map[string]any{
		"beneficiary": string(proposal.Beneficiary),
		"amount":      proposal.Amount.Dec(),
		"vote_start":  proposal.VoteStart,
		"vote_end":    proposal.VoteEnd,
		"proposer":    string(cmd.Proposer.Normalize()),
	})
	uc.metrics().ProposalCreated()

	logger.Info("proposal created",
		"event", "governance_proposal_created",
		"module", moduleName,
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"beneficiary", string(proposal.Beneficiary),
		"amount", proposal.Amount.Dec(),
		"vote_start", proposal.VoteStart,
		"vote_end", proposal.VoteEnd,
	)
	return ProposeResult{Proposal: proposal}, nil
}
