package entities

import (
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// SecondsPerMinute converts proposal durations (minutes) into the clock unit.
const SecondsPerMinute int64 = 60

// AccountID identifies a token holder or beneficiary. The format is owned by
// the token oracle (hex, SS58, or an opaque service identifier).
type AccountID string

func (a AccountID) Normalize() AccountID {
	return AccountID(strings.TrimSpace(string(a)))
}

func (a AccountID) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

type VoteChoice string

const (
	VoteChoiceFor     VoteChoice = "for"
	VoteChoiceAgainst VoteChoice = "against"
)

func ParseVoteChoice(raw string) (VoteChoice, bool) {
	switch VoteChoice(strings.ToLower(strings.TrimSpace(raw))) {
	case VoteChoiceFor:
		return VoteChoiceFor, true
	case VoteChoiceAgainst:
		return VoteChoiceAgainst, true
	default:
		return "", false
	}
}

// PayoutStatus tracks the outbound transfer after a proposal is marked executed.
type PayoutStatus string

const (
	PayoutStatusNone    PayoutStatus = "none"
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
	PayoutStatusFailed  PayoutStatus = "failed"
)

// Proposal is a request to transfer Amount to Beneficiary once voting succeeds.
// VoteStart and VoteEnd are Unix seconds; Executed only moves false -> true.
type Proposal struct {
	ProposalID  uint64
	Beneficiary AccountID
	VoteStart   int64
	VoteEnd     int64
	Executed    bool
	Amount      uint256.Int
	Payout      PayoutStatus
	PayoutError string
	CreatedAt   time.Time
	ExecutedAt  *time.Time
}

// AcceptsVotesAt reports whether a vote cast at now may still change the tally.
func (p Proposal) AcceptsVotesAt(now int64) bool {
	return !p.Executed && now <= p.VoteEnd
}

// Unpaid is true for executed proposals whose transfer never confirmed.
func (p Proposal) Unpaid() bool {
	return p.Executed && (p.Payout == PayoutStatusPending || p.Payout == PayoutStatusFailed)
}

// VoteTally aggregates percentage-point weights for one proposal.
type VoteTally struct {
	ProposalID    uint64
	ForWeight     uint64
	AgainstWeight uint64
}

// VoteReceipt marks that Account has used its vote on ProposalID.
type VoteReceipt struct {
	ProposalID uint64
	Account    AccountID
	CastAt     time.Time
}
