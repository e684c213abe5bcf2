package commands

import (
	"context"
	"errors"
	"fmt"

	application "governor/contexts/treasury-governance/governance-engine/application"
	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"
	"governor/contexts/treasury-governance/governance-engine/domain/services"
)

type VoteCommand struct {
	ProposalID uint64
	Account    entities.AccountID
	Choice     entities.VoteChoice
}

type VoteResult struct {
	Receipt entities.VoteReceipt
	Weight  uint64
	Tally   entities.VoteTally
}

// Vote records the caller's receipt and then adds its live token weight to
// the chosen side. The receipt is written before the oracle is queried, so a
// failed balance or supply lookup still consumes the caller's vote.
func (uc GovernanceUseCase) Vote(ctx context.Context, cmd VoteCommand) (VoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	account := cmd.Account.Normalize()
	logger.Info("vote processing started",
		"event", "governance_vote_started",
		"module", moduleName,
		"layer", "application",
		"proposal_id", cmd.ProposalID,
		"account", string(account),
		"choice", string(cmd.Choice),
	)
	if account.IsZero() ||
		(cmd.Choice != entities.VoteChoiceFor && cmd.Choice != entities.VoteChoiceAgainst) {
		logger.Warn("vote validation failed",
			"event", "governance_vote_validation_failed",
			"module", moduleName,
			"layer", "application",
			"proposal_id", cmd.ProposalID,
			"account", string(account),
		)
		uc.rejected("vote", "invalid_input")
		return VoteResult{}, domainerrors.ErrInvalidInput
	}

	unlock, err := uc.lock(ctx, cmd.ProposalID)
	if err != nil {
		logger.Error("vote lock acquisition failed",
			"event", "governance_vote_lock_failed",
			"module", moduleName,
			"layer", "application",
			"proposal_id", cmd.ProposalID,
			"error", err.Error(),
		)
		return VoteResult{}, err
	}
	defer unlock()

	proposal, found, err := uc.Proposals.GetProposal(ctx, cmd.ProposalID)
	if err != nil {
		return VoteResult{}, err
	}
	if !found {
		uc.rejected("vote", "not_found")
		return VoteResult{}, domainerrors.ErrProposalNotFound
	}
	if proposal.Executed {
		uc.rejected("vote", "already_executed")
		return VoteResult{}, domainerrors.ErrProposalAlreadyExecuted
	}
	now := uc.now()
	if !proposal.AcceptsVotesAt(now.Unix()) {
		logger.Warn("vote after period end",
			"event", "governance_vote_period_ended",
			"module", moduleName,
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"account", string(account),
			"vote_end", proposal.VoteEnd,
			"now", now.Unix(),
		)
		uc.rejected("vote", "period_ended")
		return VoteResult{}, domainerrors.ErrVotePeriodEnded
	}

	receipt := entities.VoteReceipt{
		ProposalID: proposal.ProposalID,
		Account:    account,
		CastAt:     now,
	}
	if err := uc.Ledger.RecordReceipt(ctx, receipt); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyVoted) {
			logger.Warn("duplicate vote rejected",
				"event", "governance_vote_duplicate",
				"module", moduleName,
				"layer", "application",
				"proposal_id", proposal.ProposalID,
				"account", string(account),
			)
			uc.rejected("vote", "already_voted")
			return VoteResult{}, err
		}
		logger.Error("vote receipt write failed",
			"event", "governance_vote_receipt_failed",
			"module", moduleName,
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"account", string(account),
			"error", err.Error(),
		)
		return VoteResult{}, err
	}

	weight, err := uc.resolveWeight(ctx, account)
	if err != nil {
		logger.Error("vote weight resolution failed; receipt retained",
			"event", "governance_vote_weight_failed",
			"module", moduleName,
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"account", string(account),
			"error", err.Error(),
		)
		uc.rejected("vote", "tx_failed")
		return VoteResult{}, err
	}

	tally, err := uc.Ledger.AddWeight(ctx, proposal.ProposalID, cmd.Choice, weight)
	if err != nil {
		if errors.Is(err, domainerrors.ErrWeightOverflow) {
			err = fmt.Errorf("%w: %w", domainerrors.ErrTxFailed, err)
		}
		logger.Error("vote tally update failed",
			"event", "governance_vote_tally_failed",
			"module", moduleName,
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"account", string(account),
			"weight", weight,
			"error", err.Error(),
		)
		return VoteResult{}, err
	}

	uc.appendEvent(ctx, "vote.cast", proposal.ProposalID, now, map[string]any{
		"account":        string(account),
		"choice":         string(cmd.Choice),
		"weight":         weight,
		"for_weight":     tally.ForWeight,
		"against_weight": tally.AgainstWeight,
	})
	uc.metrics().VoteCast(cmd.Choice, weight)

	logger.Info("vote cast",
		"event", "governance_vote_cast",
		"module", moduleName,
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"account", string(account),
		"choice", string(cmd.Choice),
		"weight", weight,
		"for_weight", tally.ForWeight,
		"against_weight", tally.AgainstWeight,
	)
	return VoteResult{Receipt: receipt, Weight: weight, Tally: tally}, nil
}

// resolveWeight reads the live balance and supply. Every failure, including a
// zero supply, is reported as ErrTxFailed with the cause attached.
func (uc GovernanceUseCase) resolveWeight(ctx context.Context, account entities.AccountID) (uint64, error) {
	balance, err := uc.Token.BalanceOf(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("%w: balance of %s: %w", domainerrors.ErrTxFailed, account, err)
	}
	supply, err := uc.Token.TotalSupply(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: total supply: %w", domainerrors.ErrTxFailed, err)
	}
	weight, err := services.ComputeWeight(balance, supply, uc.Rounding)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domainerrors.ErrTxFailed, err)
	}
	return weight, nil
}
