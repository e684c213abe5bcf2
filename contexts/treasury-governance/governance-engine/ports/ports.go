package ports

import (
	"context"
	"encoding/json"
	"time"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"

	"github.com/holiman/uint256"
)

// ProposalStore owns proposals, their tallies and the id counter.
type ProposalStore interface {
	// CreateProposal allocates the next id and stores the proposal together
	// with a zero tally in one operation.
	CreateProposal(ctx context.Context, proposal entities.Proposal) (entities.Proposal, error)
	GetProposal(ctx context.Context, proposalID uint64) (entities.Proposal, bool, error)
	GetTally(ctx context.Context, proposalID uint64) (entities.VoteTally, bool, error)
	NextProposalID(ctx context.Context) (uint64, error)
	// MarkExecuted flips Executed and sets Payout=pending. It fails with
	// ErrProposalAlreadyExecuted when another caller got there first.
	MarkExecuted(ctx context.Context, proposalID uint64, executedAt time.Time) (entities.Proposal, error)
	RecordPayout(ctx context.Context, proposalID uint64, status entities.PayoutStatus, reason string) error
	ListUnpaid(ctx context.Context) ([]entities.Proposal, error)
}

// VoteLedger records receipts and accumulates tally weight.
type VoteLedger interface {
	// RecordReceipt fails with ErrAlreadyVoted when the receipt exists.
	RecordReceipt(ctx context.Context, receipt entities.VoteReceipt) error
	HasVoted(ctx context.Context, proposalID uint64, account entities.AccountID) (bool, error)
	AddWeight(ctx context.Context, proposalID uint64, choice entities.VoteChoice, weight uint64) (entities.VoteTally, error)
}

// TokenOracle is the fungible token the treasury pays out of.
type TokenOracle interface {
	BalanceOf(ctx context.Context, account entities.AccountID) (uint256.Int, error)
	TotalSupply(ctx context.Context) (uint256.Int, error)
	Transfer(ctx context.Context, to entities.AccountID, amount uint256.Int) error
}

// ProposalLocker serializes check-then-mutate sequences per proposal.
type ProposalLocker interface {
	Lock(ctx context.Context, proposalID uint64) (unlock func(), err error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// Metrics receives engine outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ProposalCreated()
	VoteCast(choice entities.VoteChoice, weight uint64)
	ExecutionFinished(outcome string)
	OperationRejected(operation string, reason string)
}

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id,omitempty"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
	PublishedAt  *time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	OutboxWriter
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
