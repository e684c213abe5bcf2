package commands_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"governor/contexts/treasury-governance/governance-engine/adapters/memory"
	"governor/contexts/treasury-governance/governance-engine/application/commands"
	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"
	"governor/contexts/treasury-governance/governance-engine/domain/services"
)

const (
	treasury    entities.AccountID = "treasury"
	beneficiary entities.AccountID = "beneficiary"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu       sync.Mutex
	created  int
	votes    int
	outcomes []string
	rejected []string
}

func (m *recordingMetrics) ProposalCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *recordingMetrics) VoteCast(entities.VoteChoice, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes++
}

func (m *recordingMetrics) ExecutionFinished(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) OperationRejected(operation string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, operation+":"+reason)
}

type fixture struct {
	uc      commands.GovernanceUseCase
	store   *memory.Store
	token   *memory.TokenLedger
	clock   *fixedClock
	metrics *recordingMetrics
}

func newFixture(quorum uint8) fixture {
	store := memory.NewStore()
	token := memory.NewTokenLedger("GOV", treasury)
	clock := newFixedClock()
	metrics := &recordingMetrics{}
	return fixture{
		uc: commands.GovernanceUseCase{
			Proposals: store,
			Ledger:    store,
			Token:     token,
			Locker:    memory.NewKeyedLocker(),
			Outbox:    store,
			Clock:     clock,
			IDGen:     store,
			Metrics:   metrics,
			Quorum:    quorum,
			Rounding:  services.WeightRoundingScaleFirst,
		},
		store:   store,
		token:   token,
		clock:   clock,
		metrics: metrics,
	}
}

func (f fixture) propose(t *testing.T, amount int64, minutes int64) entities.Proposal {
	t.Helper()
	result, err := f.uc.Propose(context.Background(), commands.ProposeCommand{
		Proposer:        "proposer",
		Beneficiary:     beneficiary,
		Amount:          big.NewInt(amount),
		DurationMinutes: minutes,
	})
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	return result.Proposal
}

func (f fixture) vote(account entities.AccountID, proposalID uint64, choice entities.VoteChoice) (commands.VoteResult, error) {
	return f.uc.Vote(context.Background(), commands.VoteCommand{
		ProposalID: proposalID,
		Account:    account,
		Choice:     choice,
	})
}

func (f fixture) execute(proposalID uint64) (commands.ExecuteResult, error) {
	return f.uc.Execute(context.Background(), commands.ExecuteCommand{ProposalID: proposalID, ActorID: "operator"})
}

func TestProposeValidationOrderAndNoWrites(t *testing.T) {
	f := newFixture(50)
	cases := []struct {
		name    string
		amount  *big.Int
		minutes int64
		benef   entities.AccountID
		want    error
	}{
		{name: "zero amount and zero duration", amount: big.NewInt(0), minutes: 0, benef: beneficiary, want: domainerrors.ErrAmountShouldNotBeZero},
		{name: "negative amount", amount: big.NewInt(-5), minutes: 10, benef: beneficiary, want: domainerrors.ErrAmountShouldNotBeZero},
		{name: "nil amount", amount: nil, minutes: 10, benef: beneficiary, want: domainerrors.ErrAmountShouldNotBeZero},
		{name: "zero duration", amount: big.NewInt(10), minutes: 0, benef: beneficiary, want: domainerrors.ErrDurationError},
		{name: "negative duration", amount: big.NewInt(10), minutes: -3, benef: beneficiary, want: domainerrors.ErrDurationError},
		{name: "overflowing duration", amount: big.NewInt(10), minutes: 1 << 62, benef: beneficiary, want: domainerrors.ErrDurationError},
		{name: "amount above uint256", amount: new(big.Int).Lsh(big.NewInt(1), 256), minutes: 10, benef: beneficiary, want: domainerrors.ErrInvalidInput},
		{name: "empty beneficiary", amount: big.NewInt(10), minutes: 10, benef: "  ", want: domainerrors.ErrInvalidInput},
	}
	for _, tc := range cases {
		_, err := f.uc.Propose(context.Background(), commands.ProposeCommand{
			Beneficiary:     tc.benef,
			Amount:          tc.amount,
			DurationMinutes: tc.minutes,
		})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	next, err := f.store.NextProposalID(context.Background())
	if err != nil {
		t.Fatalf("next proposal id failed: %v", err)
	}
	if next != 0 {
		t.Fatalf("expected no proposal written, counter is %d", next)
	}
	if f.metrics.created != 0 {
		t.Fatalf("expected no created metric, got %d", f.metrics.created)
	}
}

func TestProposeAllocatesIncreasingIDsWithZeroTally(t *testing.T) {
	f := newFixture(50)
	start := f.clock.Now().Unix()

	first := f.propose(t, 100, 1)
	second := f.propose(t, 5, 30)
	if first.ProposalID != 1 || second.ProposalID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ProposalID, second.ProposalID)
	}
	if first.VoteStart != start || first.VoteEnd != start+60 {
		t.Fatalf("expected window [%d, %d], got [%d, %d]", start, start+60, first.VoteStart, first.VoteEnd)
	}
	if second.VoteEnd != start+30*60 {
		t.Fatalf("expected vote end %d, got %d", start+30*60, second.VoteEnd)
	}
	if first.Executed || first.Payout != entities.PayoutStatusNone {
		t.Fatalf("expected fresh proposal, got executed=%v payout=%s", first.Executed, first.Payout)
	}
	tally, found, err := f.store.GetTally(context.Background(), first.ProposalID)
	if err != nil || !found {
		t.Fatalf("expected tally for proposal 1, found=%v err=%v", found, err)
	}
	if tally.ForWeight != 0 || tally.AgainstWeight != 0 {
		t.Fatalf("expected zero tally, got %d/%d", tally.ForWeight, tally.AgainstWeight)
	}
	next, _ := f.store.NextProposalID(context.Background())
	if next != 2 {
		t.Fatalf("expected next proposal id 2, got %d", next)
	}
	if len(f.token.Transfers()) != 0 {
		t.Fatalf("propose must not touch the token")
	}
}

func TestVotePreconditions(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("alice", 600)
	f.token.Mint("bob", 400)
	proposal := f.propose(t, 100, 1)

	if _, err := f.vote("alice", 99, entities.VoteChoiceFor); !errors.Is(err, domainerrors.ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound, got %v", err)
	}
	if _, err := f.vote("", proposal.ProposalID, entities.VoteChoiceFor); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty account, got %v", err)
	}
	if _, err := f.vote("alice", proposal.ProposalID, entities.VoteChoice("abstain")); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown choice, got %v", err)
	}

	result, err := f.vote("alice", proposal.ProposalID, entities.VoteChoiceFor)
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if result.Weight != 60 || result.Tally.ForWeight != 60 {
		t.Fatalf("expected weight 60, got weight=%d for=%d", result.Weight, result.Tally.ForWeight)
	}
	if _, err := f.vote("alice", proposal.ProposalID, entities.VoteChoiceAgainst); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted regardless of choice, got %v", err)
	}
	if _, err := f.vote(" alice ", proposal.ProposalID, entities.VoteChoiceFor); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected trimmed account to be treated as the same voter, got %v", err)
	}

	f.clock.Advance(60 * time.Second)
	if _, err := f.vote("bob", proposal.ProposalID, entities.VoteChoiceAgainst); err != nil {
		t.Fatalf("vote at vote_end must be accepted: %v", err)
	}
	f.clock.Advance(time.Second)
	if _, err := f.vote("carol", proposal.ProposalID, entities.VoteChoiceFor); !errors.Is(err, domainerrors.ErrVotePeriodEnded) {
		t.Fatalf("expected ErrVotePeriodEnded, got %v", err)
	}

	tally, _, _ := f.store.GetTally(context.Background(), proposal.ProposalID)
	if tally.ForWeight != 60 || tally.AgainstWeight != 40 {
		t.Fatalf("expected tally 60/40, got %d/%d", tally.ForWeight, tally.AgainstWeight)
	}
}

func TestVoteRejectedOnExecutedProposal(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("alice", 600)
	f.token.Mint(treasury, 400)
	proposal := f.propose(t, 100, 10)
	if _, err := f.vote("alice", proposal.ProposalID, entities.VoteChoiceFor); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if _, err := f.execute(proposal.ProposalID); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if _, err := f.vote("bob", proposal.ProposalID, entities.VoteChoiceAgainst); !errors.Is(err, domainerrors.ErrProposalAlreadyExecuted) {
		t.Fatalf("expected ErrProposalAlreadyExecuted, got %v", err)
	}
}

func TestVoteOracleFailureConsumesReceipt(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("alice", 600)
	proposal := f.propose(t, 100, 10)

	oracleDown := errors.New("oracle unreachable")
	f.token.FailBalanceOf(oracleDown)
	_, err := f.vote("alice", proposal.ProposalID, entities.VoteChoiceFor)
	if !errors.Is(err, domainerrors.ErrTxFailed) || !errors.Is(err, oracleDown) {
		t.Fatalf("expected ErrTxFailed wrapping the oracle error, got %v", err)
	}
	voted, err := f.store.HasVoted(context.Background(), proposal.ProposalID, "alice")
	if err != nil || !voted {
		t.Fatalf("expected receipt to remain after oracle failure, voted=%v err=%v", voted, err)
	}

	f.token.FailBalanceOf(nil)
	if _, err := f.vote("alice", proposal.ProposalID, entities.VoteChoiceFor); !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted on retry, got %v", err)
	}
	tally, _, _ := f.store.GetTally(context.Background(), proposal.ProposalID)
	if tally.ForWeight != 0 {
		t.Fatalf("expected no weight after failed vote, got %d", tally.ForWeight)
	}
}

func TestVoteZeroSupplyFailsAsTxFailed(t *testing.T) {
	f := newFixture(50)
	proposal := f.propose(t, 100, 10)
	_, err := f.vote("alice", proposal.ProposalID, entities.VoteChoiceFor)
	if !errors.Is(err, domainerrors.ErrTxFailed) || !errors.Is(err, domainerrors.ErrZeroSupply) {
		t.Fatalf("expected ErrTxFailed wrapping ErrZeroSupply, got %v", err)
	}
	voted, _ := f.store.HasVoted(context.Background(), proposal.ProposalID, "alice")
	if !voted {
		t.Fatalf("expected receipt to be consumed")
	}
}

func TestVoteSupplyFailureWrapsTxFailed(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("alice", 10)
	proposal := f.propose(t, 100, 10)
	f.token.FailTotalSupply(errors.New("supply unavailable"))
	if _, err := f.vote("alice", proposal.ProposalID, entities.VoteChoiceFor); !errors.Is(err, domainerrors.ErrTxFailed) {
		t.Fatalf("expected ErrTxFailed, got %v", err)
	}
}

func TestVoteDivideFirstRounding(t *testing.T) {
	f := newFixture(50)
	f.uc.Rounding = services.WeightRoundingDivideFirst
	f.token.Mint("alice", 600)
	f.token.Mint("bob", 400)
	proposal := f.propose(t, 100, 10)
	result, err := f.vote("alice", proposal.ProposalID, entities.VoteChoiceFor)
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if result.Weight != 0 {
		t.Fatalf("expected divide-first weight 0 for a 60%% holder, got %d", result.Weight)
	}
}

func TestExecuteGates(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("alice", 30)
	f.token.Mint("bob", 30)
	f.token.Mint("carol", 19)
	f.token.Mint(treasury, 21)

	if _, err := f.execute(7); !errors.Is(err, domainerrors.ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound, got %v", err)
	}

	noVotes := f.propose(t, 5, 10)
	if _, err := f.execute(noVotes.ProposalID); !errors.Is(err, domainerrors.ErrQuorumNotReached) {
		t.Fatalf("expected ErrQuorumNotReached, got %v", err)
	}

	belowQuorum := f.propose(t, 5, 10)
	if _, err := f.vote("alice", belowQuorum.ProposalID, entities.VoteChoiceFor); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if _, err := f.vote("carol", belowQuorum.ProposalID, entities.VoteChoiceAgainst); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if _, err := f.execute(belowQuorum.ProposalID); !errors.Is(err, domainerrors.ErrQuorumNotReached) {
		t.Fatalf("expected ErrQuorumNotReached for 49 participation, got %v", err)
	}

	tie := f.propose(t, 5, 10)
	if _, err := f.vote("alice", tie.ProposalID, entities.VoteChoiceFor); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if _, err := f.vote("bob", tie.ProposalID, entities.VoteChoiceAgainst); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if _, err := f.execute(tie.ProposalID); !errors.Is(err, domainerrors.ErrProposalNotAccepted) {
		t.Fatalf("expected ErrProposalNotAccepted on tie, got %v", err)
	}

	for _, id := range []uint64{noVotes.ProposalID, belowQuorum.ProposalID, tie.ProposalID} {
		proposal, _, _ := f.store.GetProposal(context.Background(), id)
		if proposal.Executed {
			t.Fatalf("gated proposal %d must stay unexecuted", id)
		}
	}
	if len(f.token.Transfers()) != 0 {
		t.Fatalf("expected no transfers, got %d", len(f.token.Transfers()))
	}
}

func TestExecuteWithoutTallySkipsGate(t *testing.T) {
	f := newFixture(50)
	f.token.Mint(treasury, 10)
	proposal := f.propose(t, 10, 10)
	f.uc.Proposals = tallylessStore{Store: f.store}
	if _, err := f.execute(proposal.ProposalID); err != nil {
		t.Fatalf("expected execution without a tally to pass, got %v", err)
	}
	if len(f.token.Transfers()) != 1 {
		t.Fatalf("expected one transfer, got %d", len(f.token.Transfers()))
	}
}

type tallylessStore struct {
	*memory.Store
}

func (tallylessStore) GetTally(context.Context, uint64) (entities.VoteTally, bool, error) {
	return entities.VoteTally{}, false, nil
}

func TestExecuteTransferFailureIsTerminal(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("alice", 100)
	proposal := f.propose(t, 100, 10)
	if _, err := f.vote("alice", proposal.ProposalID, entities.VoteChoiceFor); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	// The treasury holds nothing, so the payout fails.
	result, err := f.execute(proposal.ProposalID)
	if !errors.Is(err, domainerrors.ErrTxFailed) || !errors.Is(err, memory.ErrInsufficientBalance) {
		t.Fatalf("expected ErrTxFailed wrapping insufficient balance, got %v", err)
	}
	if !result.Proposal.Executed || result.Proposal.Payout != entities.PayoutStatusFailed {
		t.Fatalf("expected executed proposal with failed payout, got executed=%v payout=%s",
			result.Proposal.Executed, result.Proposal.Payout)
	}

	stored, _, _ := f.store.GetProposal(context.Background(), proposal.ProposalID)
	if !stored.Executed || stored.Payout != entities.PayoutStatusFailed || stored.PayoutError == "" {
		t.Fatalf("expected stored failed payout, got %+v", stored)
	}
	unpaid, err := f.store.ListUnpaid(context.Background())
	if err != nil || len(unpaid) != 1 || unpaid[0].ProposalID != proposal.ProposalID {
		t.Fatalf("expected proposal listed as unpaid, got %+v err=%v", unpaid, err)
	}

	f.token.Mint(treasury, 1_000)
	if _, err := f.execute(proposal.ProposalID); !errors.Is(err, domainerrors.ErrProposalAlreadyExecuted) {
		t.Fatalf("expected ErrProposalAlreadyExecuted after failed payout, got %v", err)
	}
	if len(f.token.Transfers()) != 0 {
		t.Fatalf("expected no retry transfer, got %d", len(f.token.Transfers()))
	}
	if len(f.metrics.outcomes) != 1 || f.metrics.outcomes[0] != "failed" {
		t.Fatalf("expected one failed outcome, got %v", f.metrics.outcomes)
	}
}

func TestEndToEndProposalPaidOnce(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("holder", 600)
	f.token.Mint(treasury, 400)

	proposal := f.propose(t, 100, 1)
	if proposal.ProposalID != 1 {
		t.Fatalf("expected proposal id 1, got %d", proposal.ProposalID)
	}
	vote, err := f.vote("holder", 1, entities.VoteChoiceFor)
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if vote.Tally.ForWeight != 60 {
		t.Fatalf("expected for_weight 60, got %d", vote.Tally.ForWeight)
	}

	result, err := f.execute(1)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !result.Proposal.Executed || result.Proposal.Payout != entities.PayoutStatusPaid {
		t.Fatalf("expected paid proposal, got %+v", result.Proposal)
	}
	transfers := f.token.Transfers()
	if len(transfers) != 1 || transfers[0].To != beneficiary || transfers[0].Amount.Uint64() != 100 {
		t.Fatalf("expected one transfer of 100 to beneficiary, got %+v", transfers)
	}
	balance, _ := f.token.BalanceOf(context.Background(), beneficiary)
	if balance.Uint64() != 100 {
		t.Fatalf("expected beneficiary balance 100, got %s", balance.Dec())
	}

	if _, err := f.execute(1); !errors.Is(err, domainerrors.ErrProposalAlreadyExecuted) {
		t.Fatalf("expected ErrProposalAlreadyExecuted, got %v", err)
	}
	if len(f.token.Transfers()) != 1 {
		t.Fatalf("expected exactly one transfer, got %d", len(f.token.Transfers()))
	}
	unpaid, _ := f.store.ListUnpaid(context.Background())
	if len(unpaid) != 0 {
		t.Fatalf("expected no unpaid proposals, got %d", len(unpaid))
	}

	pending, err := f.store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	wantTypes := []string{"proposal.created", "vote.cast", "proposal.executed"}
	if len(pending) != len(wantTypes) {
		t.Fatalf("expected %d outbox events, got %d", len(wantTypes), len(pending))
	}
	for i, want := range wantTypes {
		if pending[i].EventType != want || pending[i].PartitionKey != "1" {
			t.Fatalf("event %d: expected %s keyed by proposal 1, got %s/%s", i, want, pending[i].EventType, pending[i].PartitionKey)
		}
	}
}

func TestEndToEndNoVotesMissesQuorum(t *testing.T) {
	f := newFixture(50)
	f.token.Mint(treasury, 1_000)
	proposal := f.propose(t, 100, 1)
	if _, err := f.execute(proposal.ProposalID); !errors.Is(err, domainerrors.ErrQuorumNotReached) {
		t.Fatalf("expected ErrQuorumNotReached, got %v", err)
	}
	stored, _, _ := f.store.GetProposal(context.Background(), proposal.ProposalID)
	if stored.Executed {
		t.Fatalf("proposal must stay unexecuted")
	}
}

func TestConcurrentExecuteTransfersOnce(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("holder", 600)
	f.token.Mint(treasury, 400)
	proposal := f.propose(t, 100, 10)
	if _, err := f.vote("holder", proposal.ProposalID, entities.VoteChoiceFor); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.execute(proposal.ProposalID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domainerrors.ErrProposalAlreadyExecuted):
		default:
			t.Fatalf("unexpected execute error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful execute, got %d", succeeded)
	}
	if len(f.token.Transfers()) != 1 {
		t.Fatalf("expected exactly one transfer, got %d", len(f.token.Transfers()))
	}
}

func TestConcurrentDuplicateVotesCountOnce(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("holder", 600)
	f.token.Mint("other", 400)
	proposal := f.propose(t, 100, 10)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.vote("holder", proposal.ProposalID, entities.VoteChoiceFor)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domainerrors.ErrAlreadyVoted):
		default:
			t.Fatalf("unexpected vote error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted vote, got %d", accepted)
	}
	tally, _, _ := f.store.GetTally(context.Background(), proposal.ProposalID)
	if tally.ForWeight != 60 {
		t.Fatalf("expected for_weight 60, got %d", tally.ForWeight)
	}
}

func TestLockUnavailableStopsOperation(t *testing.T) {
	f := newFixture(50)
	f.token.Mint("holder", 600)
	proposal := f.propose(t, 100, 10)

	locker := memory.NewKeyedLocker()
	f.uc.Locker = locker
	unlock, err := locker.Lock(context.Background(), proposal.ProposalID)
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.uc.Vote(ctx, commands.VoteCommand{ProposalID: proposal.ProposalID, Account: "holder", Choice: entities.VoteChoiceFor})
	if !errors.Is(err, domainerrors.ErrLockUnavailable) {
		t.Fatalf("expected ErrLockUnavailable, got %v", err)
	}
	voted, _ := f.store.HasVoted(context.Background(), proposal.ProposalID, "holder")
	if voted {
		t.Fatalf("vote must not be recorded without the lock")
	}
}
