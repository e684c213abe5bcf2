package errors

import "errors"

// Closed set of governance failures. Callers match with errors.Is; causes from
// the token oracle are wrapped under ErrTxFailed.
var (
	ErrProposalNotFound        = errors.New("proposal not found")
	ErrProposalAlreadyExecuted = errors.New("proposal already executed")
	ErrQuorumNotReached        = errors.New("quorum not reached")
	ErrProposalNotAccepted     = errors.New("proposal not accepted")
	ErrAmountShouldNotBeZero   = errors.New("amount should not be zero")
	ErrDurationError           = errors.New("duration must be positive")
	ErrVotePeriodEnded         = errors.New("vote period ended")
	ErrAlreadyVoted            = errors.New("account already voted")
	ErrTxFailed                = errors.New("token transaction failed")
)

var (
	ErrInvalidInput    = errors.New("invalid governance input")
	ErrLockUnavailable = errors.New("proposal lock unavailable")
	ErrZeroSupply      = errors.New("token total supply is zero")
	ErrWeightOverflow  = errors.New("vote weight overflow")
	ErrConflict        = errors.New("conflicting write")
)
