package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"
	governancehttp "governor/contexts/treasury-governance/governance-engine/transport/http"
)

func writeGovernanceError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, governancehttp.ErrorResponse{Code: code, Message: message})
}

func (s *Server) writeGovernanceDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidInput):
		writeGovernanceError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domainerrors.ErrAmountShouldNotBeZero):
		writeGovernanceError(w, http.StatusBadRequest, "amount_should_not_be_zero", err.Error())
	case errors.Is(err, domainerrors.ErrDurationError):
		writeGovernanceError(w, http.StatusBadRequest, "duration_error", err.Error())
	case errors.Is(err, domainerrors.ErrProposalNotFound):
		writeGovernanceError(w, http.StatusNotFound, "proposal_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrProposalAlreadyExecuted):
		writeGovernanceError(w, http.StatusConflict, "proposal_already_executed", err.Error())
	case errors.Is(err, domainerrors.ErrAlreadyVoted):
		writeGovernanceError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, domainerrors.ErrVotePeriodEnded):
		writeGovernanceError(w, http.StatusConflict, "vote_period_ended", err.Error())
	case errors.Is(err, domainerrors.ErrQuorumNotReached):
		writeGovernanceError(w, http.StatusUnprocessableEntity, "quorum_not_reached", err.Error())
	case errors.Is(err, domainerrors.ErrProposalNotAccepted):
		writeGovernanceError(w, http.StatusUnprocessableEntity, "proposal_not_accepted", err.Error())
	case errors.Is(err, domainerrors.ErrTxFailed):
		writeGovernanceError(w, http.StatusBadGateway, "tx_failed", err.Error())
	case errors.Is(err, domainerrors.ErrLockUnavailable):
		writeGovernanceError(w, http.StatusServiceUnavailable, "lock_unavailable", err.Error())
	default:
		s.logger.Error("governance request failed",
			"event", "http_governance_internal_error",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeGovernanceError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller, err := s.auth.caller(r)
	if err != nil {
		writeGovernanceError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return "", false
	}
	return caller, true
}

// requireAdmin resolves the caller and checks it against the configured
// operator accounts.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return "", false
	}
	if _, admin := s.admins[caller]; !admin {
		s.logger.Warn("admin route denied",
			"event", "http_admin_forbidden",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"path", r.URL.Path,
			"caller", caller,
		)
		writeGovernanceError(w, http.StatusForbidden, "forbidden", "caller is not an operator")
		return "", false
	}
	return caller, true
}

func parseProposalID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := strings.TrimSpace(r.PathValue("proposal_id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_proposal_id", "proposal_id must be an unsigned integer")
		return 0, false
	}
	return id, true
}

// handleCreateProposal godoc
// @Summary Create a treasury spending proposal
// @Tags proposals
// @Accept json
// @Produce json
// @Param request body governancehttp.CreateProposalRequest true "proposal"
// @Success 201 {object} governancehttp.ProposalResponse
// @Failure 400 {object} governancehttp.ErrorResponse
// @Router /v1/proposals [post]
func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req governancehttp.CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.CreateProposalHandler(r.Context(), caller, req)
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleCastVote godoc
// @Summary Cast a token-weighted vote
// @Tags proposals
// @Param proposal_id path int true "proposal id"
// @Param request body governancehttp.CastVoteRequest true "choice: for or against"
// @Success 200 {object} governancehttp.VoteResponse
// @Failure 409 {object} governancehttp.ErrorResponse
// @Router /v1/proposals/{proposal_id}/votes [post]
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	proposalID, ok := parseProposalID(w, r)
	if !ok {
		return
	}
	var req governancehttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.CastVoteHandler(r.Context(), caller, proposalID, req)
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExecuteProposal godoc
// @Summary Execute an accepted proposal and pay the beneficiary once
// @Tags proposals
// @Param proposal_id path int true "proposal id"
// @Success 200 {object} governancehttp.ProposalResponse
// @Failure 422 {object} governancehttp.ErrorResponse
// @Failure 502 {object} governancehttp.ErrorResponse
// @Router /v1/proposals/{proposal_id}/execute [post]
func (s *Server) handleExecuteProposal(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	proposalID, ok := parseProposalID(w, r)
	if !ok {
		return
	}
	resp, err := s.governance.Handler.ExecuteProposalHandler(r.Context(), caller, proposalID)
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := parseProposalID(w, r)
	if !ok {
		return
	}
	resp, err := s.governance.Handler.GetProposalHandler(r.Context(), proposalID)
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTally(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := parseProposalID(w, r)
	if !ok {
		return
	}
	resp, err := s.governance.Handler.GetTallyHandler(r.Context(), proposalID, r.URL.Query().Get("account"))
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNextProposalID(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.NextProposalIDHandler(r.Context())
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.governance.Handler.ClockHandler())
}

func (s *Server) handleGovernanceConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.governance.Handler.ConfigHandler())
}

func (s *Server) handleListUnpaid(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	resp, err := s.governance.Handler.ListUnpaidHandler(r.Context())
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
