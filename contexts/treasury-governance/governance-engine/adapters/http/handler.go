package httpadapter

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"governor/contexts/treasury-governance/governance-engine/application/commands"
	"governor/contexts/treasury-governance/governance-engine/application/queries"
	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"
	httptransport "governor/contexts/treasury-governance/governance-engine/transport/http"
)

type Handler struct {
	Governance commands.GovernanceUseCase
	Queries    queries.ProposalQueries
	Logger     *slog.Logger
}

func (h Handler) CreateProposalHandler(
	ctx context.Context,
	callerID string,
	req httptransport.CreateProposalRequest,
) (httptransport.ProposalResponse, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok {
		return httptransport.ProposalResponse{}, domainerrors.ErrInvalidInput
	}
	result, err := h.Governance.Propose(ctx, commands.ProposeCommand{
		Proposer:        entities.AccountID(callerID),
		Beneficiary:     entities.AccountID(req.Beneficiary),
		Amount:          amount,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(result.Proposal), nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	callerID string,
	proposalID uint64,
	req httptransport.CastVoteRequest,
) (httptransport.VoteResponse, error) {
	choice, ok := entities.ParseVoteChoice(req.Choice)
	if !ok {
		return httptransport.VoteResponse{}, domainerrors.ErrInvalidInput
	}
	result, err := h.Governance.Vote(ctx, commands.VoteCommand{
		ProposalID: proposalID,
		Account:    entities.AccountID(callerID),
		Choice:     choice,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{
		ProposalID:    result.Receipt.ProposalID,
		Account:       string(result.Receipt.Account),
		Choice:        string(choice),
		Weight:        result.Weight,
		ForWeight:     result.Tally.ForWeight,
		AgainstWeight: result.Tally.AgainstWeight,
	}, nil
}

func (h Handler) ExecuteProposalHandler(
	ctx context.Context,
	callerID string,
	proposalID uint64,
) (httptransport.ProposalResponse, error) {
	result, err := h.Governance.Execute(ctx, commands.ExecuteCommand{
		ProposalID: proposalID,
		ActorID:    entities.AccountID(callerID),
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(result.Proposal), nil
}

func (h Handler) GetProposalHandler(ctx context.Context, proposalID uint64) (httptransport.ProposalResponse, error) {
	proposal, found, err := h.Queries.GetProposal(ctx, proposalID)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	if !found {
		return httptransport.ProposalResponse{}, domainerrors.ErrProposalNotFound
	}
	return mapProposal(proposal), nil
}

// GetTallyHandler reports the tally and, when account is set, whether that
// account already voted.
func (h Handler) GetTallyHandler(
	ctx context.Context,
	proposalID uint64,
	account string,
) (httptransport.TallyResponse, error) {
	tally, found, err := h.Queries.GetTally(ctx, proposalID)
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	if !found {
		return httptransport.TallyResponse{}, domainerrors.ErrProposalNotFound
	}
	response := httptransport.TallyResponse{
		ProposalID:    tally.ProposalID,
		ForWeight:     tally.ForWeight,
		AgainstWeight: tally.AgainstWeight,
	}
	if strings.TrimSpace(account) != "" {
		voted, err := h.Queries.HasVoted(ctx, proposalID, entities.AccountID(account))
		if err != nil {
			return httptransport.TallyResponse{}, err
		}
		response.HasVoted = &voted
	}
	return response, nil
}

func (h Handler) NextProposalIDHandler(ctx context.Context) (httptransport.NextProposalIDResponse, error) {
	next, err := h.Queries.NextProposalID(ctx)
	if err != nil {
		return httptransport.NextProposalIDResponse{}, err
	}
	return httptransport.NextProposalIDResponse{NextProposalID: next}, nil
}

func (h Handler) ClockHandler() httptransport.ClockResponse {
	return httptransport.ClockResponse{Now: h.Queries.Now()}
}

func (h Handler) ConfigHandler() httptransport.GovernanceConfigResponse {
	cfg := h.Queries.Config()
	return httptransport.GovernanceConfigResponse{
		GovernanceToken: cfg.GovernanceToken,
		Quorum:          cfg.Quorum,
		WeightRounding:  string(cfg.Rounding),
	}
}

func (h Handler) ListUnpaidHandler(ctx context.Context) (httptransport.ProposalListResponse, error) {
	items, err := h.Queries.ListUnpaid(ctx)
	if err != nil {
		return httptransport.ProposalListResponse{}, err
	}
	response := httptransport.ProposalListResponse{
		Items: make([]httptransport.ProposalResponse, 0, len(items)),
	}
	for _, item := range items {
		response.Items = append(response.Items, mapProposal(item))
	}
	return response, nil
}

func mapProposal(proposal entities.Proposal) httptransport.ProposalResponse {
	return httptransport.ProposalResponse{
		ProposalID:  proposal.ProposalID,
		Beneficiary: string(proposal.Beneficiary),
		Amount:      proposal.Amount.Dec(),
		VoteStart:   proposal.VoteStart,
		VoteEnd:     proposal.VoteEnd,
		Executed:    proposal.Executed,
		Payout:      string(proposal.Payout),
		PayoutError: proposal.PayoutError,
	}
}
