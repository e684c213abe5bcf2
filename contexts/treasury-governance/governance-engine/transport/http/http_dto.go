package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateProposalRequest carries the amount as a base-10 string so values
// above 2^53 survive JSON clients.
type CreateProposalRequest struct {
	Beneficiary     string `json:"beneficiary"`
	Amount          string `json:"amount"`
	DurationMinutes int64  `json:"duration_minutes"`
}

type ProposalResponse struct {
	ProposalID  uint64 `json:"proposal_id"`
	Beneficiary string `json:"beneficiary"`
	Amount      string `json:"amount"`
	VoteStart   int64  `json:"vote_start"`
	VoteEnd     int64  `json:"vote_end"`
	Executed    bool   `json:"executed"`
	Payout      string `json:"payout_status"`
	PayoutError string `json:"payout_error,omitempty"`
}

type CastVoteRequest struct {
	Choice string `json:"choice"`
}

type VoteResponse struct {
	ProposalID    uint64 `json:"proposal_id"`
	Account       string `json:"account"`
	Choice        string `json:"choice"`
	Weight        uint64 `json:"weight"`
	ForWeight     uint64 `json:"for_weight"`
	AgainstWeight uint64 `json:"against_weight"`
}

type TallyResponse struct {
	ProposalID    uint64 `json:"proposal_id"`
	ForWeight     uint64 `json:"for_weight"`
	AgainstWeight uint64 `json:"against_weight"`
	HasVoted      *bool  `json:"has_voted,omitempty"`
}

type NextProposalIDResponse struct {
	NextProposalID uint64 `json:"next_proposal_id"`
}

type ClockResponse struct {
	Now int64 `json:"now"`
}

type GovernanceConfigResponse struct {
	GovernanceToken string `json:"governance_token"`
	Quorum          uint8  `json:"quorum"`
	WeightRounding  string `json:"weight_rounding"`
}

type ProposalListResponse struct {
	Items []ProposalResponse `json:"items"`
}
