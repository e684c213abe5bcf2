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

type ExecuteCommand struct {
	ProposalID uint64
	ActorID    entities.AccountID
}

type ExecuteResult struct {
	Proposal entities.Proposal
}

// Execute gates on quorum and majority, marks the proposal executed and then
// performs exactly one transfer. A failed transfer leaves the proposal
// executed with Payout=failed; it is never retried.
func (uc GovernanceUseCase) Execute(ctx context.Context, cmd ExecuteCommand) (ExecuteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("proposal execute processing started",
		"event", "governance_execute_started",
		"module", moduleName,
		"layer", "application",
		"proposal_id", cmd.ProposalID,
		"actor_id", string(cmd.ActorID.Normalize()),
	)

	unlock, err := uc.lock(ctx, cmd.ProposalID)
	if err != nil {
		logger.Error("execute lock acquisition failed",
			"event", "governance_execute_lock_failed",
			"module", moduleName,
			"layer", "application",
			"proposal_id", cmd.ProposalID,
			"error", err.Error(),
		)
		return ExecuteResult{}, err
	}
	defer unlock()

	proposal, found, err := uc.Proposals.GetProposal(ctx, cmd.ProposalID)
	if err != nil {
		return ExecuteResult{}, err
	}
	if !found {
		uc.rejected("execute", "not_found")
		return ExecuteResult{}, domainerrors.ErrProposalNotFound
	}
	if proposal.Executed {
		uc.rejected("execute", "already_executed")
		return ExecuteResult{}, domainerrors.ErrProposalAlreadyExecuted
	}

	tally, hasTally, err := uc.Proposals.GetTally(ctx, proposal.ProposalID)
	if err != nil {
		return ExecuteResult{}, err
	}
	// Without a tally there is nothing to gate on and execution proceeds.
	if hasTally {
		if err := services.EvaluateExecution(tally, uc.Quorum); err != nil {
			logger.Warn("proposal execution gate rejected",
				"event", "governance_execute_gate_rejected",
				"module", moduleName,
				"layer", "application",
				"proposal_id", proposal.ProposalID,
				"for_weight", tally.ForWeight,
				"against_weight", tally.AgainstWeight,
				"quorum", uc.Quorum,
				"error", err.Error(),
			)
			uc.rejected("execute", gateReason(err))
			return ExecuteResult{}, err
		}
	}

	now := uc.now()
	proposal, err = uc.Proposals.MarkExecuted(ctx, proposal.ProposalID, now)
	if err != nil {
		if errors.Is(err, domainerrors.ErrProposalAlreadyExecuted) {
			uc.rejected("execute", "already_executed")
		}
		logger.Warn("proposal execute mark failed",
			"event", "governance_execute_mark_failed",
			"module", moduleName,
			"layer", "application",
			"proposal_id", cmd.ProposalID,
			"error", err.Error(),
		)
		return ExecuteResult{}, err
	}

	if err := uc.Token.Transfer(ctx, proposal.Beneficiary, proposal.Amount); err != nil {
		return uc.payoutFailed(ctx, proposal, err)
	}

	proposal.Payout = entities.PayoutStatusPaid
	if err := uc.Proposals.RecordPayout(ctx, proposal.ProposalID, entities.PayoutStatusPaid, ""); err != nil {
		// The transfer already happened; the proposal stays listed as unpaid
		// (pending) for operators to reconcile.
		logger.Error("proposal payout record failed after transfer",
			"event", "governance_execute_payout_record_failed",
			"module", moduleName,
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"error", err.Error(),
		)
	}
	uc.appendEvent(ctx, "proposal.executed", proposal.ProposalID, now, map[string]any{
		"beneficiary":    string(proposal.Beneficiary),
		"amount":         proposal.Amount.Dec(),
		"for_weight":     tally.ForWeight,
		"against_weight": tally.AgainstWeight,
		"actor_id":       string(cmd.ActorID.Normalize()),
	})
	uc.metrics().ExecutionFinished("paid")

	logger.Info("proposal executed",
		"event", "governance_proposal_executed",
		"module", moduleName,
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"beneficiary", string(proposal.Beneficiary),
		"amount", proposal.Amount.Dec(),
	)
	return ExecuteResult{Proposal: proposal}, nil
}

func (uc GovernanceUseCase) payoutFailed(
	ctx context.Context,
	proposal entities.Proposal,
	cause error,
) (ExecuteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Error("proposal transfer failed; proposal stays executed",
		"event", "governance_execute_transfer_failed",
		"module", moduleName,
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"beneficiary", string(proposal.Beneficiary),
		"amount", proposal.Amount.Dec(),
		"error", cause.Error(),
	)
	if err := uc.Proposals.RecordPayout(ctx, proposal.ProposalID, entities.PayoutStatusFailed, cause.Error()); err != nil {
		logger.Error("proposal payout failure record failed",
			"event", "governance_execute_payout_record_failed",
			"module", moduleName,
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"error", err.Error(),
		)
	} else {
		proposal.Payout = entities.PayoutStatusFailed
		proposal.PayoutError = cause.Error()
	}
	uc.appendEvent(ctx, "proposal.payout_failed", proposal.ProposalID, uc.now(), map[string]any{
		"beneficiary": string(proposal.Beneficiary),
		"amount":      proposal.Amount.Dec(),
		"reason":      cause.Error(),
	})
	uc.metrics().ExecutionFinished("failed")
	return ExecuteResult{Proposal: proposal}, fmt.Errorf("%w: transfer: %w", domainerrors.ErrTxFailed, cause)
}

func gateReason(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrQuorumNotReached):
		return "quorum_not_reached"
	case errors.Is(err, domainerrors.ErrProposalNotAccepted):
		return "not_accepted"
	default:
		return "gate"
	}
}
