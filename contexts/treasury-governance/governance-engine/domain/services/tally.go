package services

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"

	"github.com/holiman/uint256"
)

// WeightRounding selects the integer order of operations used to turn a
// balance into percentage points.
type WeightRounding string

const (
	// WeightRoundingScaleFirst computes floor(balance*100/supply), so a 60%
	// holder weighs 60. This is the default.
	WeightRoundingScaleFirst WeightRounding = "scale_first"
	// WeightRoundingDivideFirst computes floor(balance/supply)*100. Any holder
	// of less than the whole supply weighs 0.
	WeightRoundingDivideFirst WeightRounding = "divide_first"
)

func ParseWeightRounding(raw string) (WeightRounding, error) {
	switch WeightRounding(strings.ToLower(strings.TrimSpace(raw))) {
	case "", WeightRoundingScaleFirst:
		return WeightRoundingScaleFirst, nil
	case WeightRoundingDivideFirst:
		return WeightRoundingDivideFirst, nil
	default:
		return "", fmt.Errorf("unknown weight rounding %q", raw)
	}
}

var hundred = uint256.NewInt(100)

// ComputeWeight converts a live balance into a vote weight.
func ComputeWeight(balance uint256.Int, supply uint256.Int, rounding WeightRounding) (uint64, error) {
	if supply.IsZero() {
		return 0, domainerrors.ErrZeroSupply
	}

	var weight uint256.Int
	switch rounding {
	case WeightRoundingDivideFirst:
		weight.Div(&balance, &supply)
		if _, overflow := weight.MulOverflow(&weight, hundred); overflow {
			return 0, domainerrors.ErrWeightOverflow
		}
	default:
		if _, overflow := weight.MulOverflow(&balance, hundred); overflow {
			return 0, domainerrors.ErrWeightOverflow
		}
		weight.Div(&weight, &supply)
	}
	if !weight.IsUint64() {
		return 0, domainerrors.ErrWeightOverflow
	}
	return weight.Uint64(), nil
}

// ApplyVote adds weight to the side selected by choice.
func ApplyVote(tally entities.VoteTally, choice entities.VoteChoice, weight uint64) (entities.VoteTally, error) {
	switch choice {
	case entities.VoteChoiceFor:
		sum, carry := bits.Add64(tally.ForWeight, weight, 0)
		if carry != 0 {
			return tally, domainerrors.ErrWeightOverflow
		}
		tally.ForWeight = sum
	case entities.VoteChoiceAgainst:
		sum, carry := bits.Add64(tally.AgainstWeight, weight, 0)
		if carry != 0 {
			return tally, domainerrors.ErrWeightOverflow
		}
		tally.AgainstWeight = sum
	default:
		return tally, domainerrors.ErrInvalidInput
	}
	return tally, nil
}

// EvaluateExecution applies the quorum gate and then the strict majority gate.
func EvaluateExecution(tally entities.VoteTally, quorum uint8) error {
	participation, carry := bits.Add64(tally.ForWeight, tally.AgainstWeight, 0)
	if carry == 0 && participation < uint64(quorum) {
		return domainerrors.ErrQuorumNotReached
	}
	if tally.ForWeight <= tally.AgainstWeight {
		return domainerrors.ErrProposalNotAccepted
	}
	return nil
}

// VotingWindow returns [now, now+durationMinutes*60].
func VotingWindow(now int64, durationMinutes int64) (int64, int64, error) {
	if durationMinutes <= 0 {
		return 0, 0, domainerrors.ErrDurationError
	}
	if durationMinutes > math.MaxInt64/entities.SecondsPerMinute {
		return 0, 0, domainerrors.ErrDurationError
	}
	span := durationMinutes * entities.SecondsPerMinute
	if now > math.MaxInt64-span {
		return 0, 0, domainerrors.ErrDurationError
	}
	return now, now + span, nil
}
