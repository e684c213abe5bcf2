package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"
	"governor/contexts/treasury-governance/governance-engine/domain/services"
	"governor/contexts/treasury-governance/governance-engine/ports"

	"github.com/google/uuid"
)

type receiptKey struct {
	proposalID uint64
	account    entities.AccountID
}

type outboxRecord struct {
	message   ports.OutboxMessage
	sequence  uint64
	published bool
}

// Store keeps proposals, tallies, receipts and outbox rows in process memory.
// It implements every persistence port of the module.
type Store struct {
	mu sync.RWMutex

	nextProposalID uint64
	proposals      map[uint64]entities.Proposal
	tallies        map[uint64]entities.VoteTally
	receipts       map[receiptKey]entities.VoteReceipt

	outbox         map[string]outboxRecord
	outboxSequence uint64
}

func NewStore() *Store {
	return &Store{
		proposals: make(map[uint64]entities.Proposal),
		tallies:   make(map[uint64]entities.VoteTally),
		receipts:  make(map[receiptKey]entities.VoteReceipt),
		outbox:    make(map[string]outboxRecord),
	}
}

func (s *Store) CreateProposal(_ context.Context, proposal entities.Proposal) (entities.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProposalID++
	proposal.ProposalID = s.nextProposalID
	proposal.Executed = false
	proposal.ExecutedAt = nil
	if proposal.Payout == "" {
		proposal.Payout = entities.PayoutStatusNone
	}
	s.proposals[proposal.ProposalID] = proposal
	s.tallies[proposal.ProposalID] = entities.VoteTally{ProposalID: proposal.ProposalID}
	return proposal, nil
}

func (s *Store) GetProposal(_ context.Context, proposalID uint64) (entities.Proposal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proposal, ok := s.proposals[proposalID]
	if !ok {
		return entities.Proposal{}, false, nil
	}
	return cloneProposal(proposal), true, nil
}

func (s *Store) GetTally(_ context.Context, proposalID uint64) (entities.VoteTally, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tally, ok := s.tallies[proposalID]
	return tally, ok, nil
}

func (s *Store) NextProposalID(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextProposalID, nil
}

func (s *Store) MarkExecuted(_ context.Context, proposalID uint64, executedAt time.Time) (entities.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, ok := s.proposals[proposalID]
	if !ok {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	if proposal.Executed {
		return entities.Proposal{}, domainerrors.ErrProposalAlreadyExecuted
	}
	at := executedAt.UTC()
	proposal.Executed = true
	proposal.ExecutedAt = &at
	proposal.Payout = entities.PayoutStatusPending
	s.proposals[proposalID] = proposal
	return cloneProposal(proposal), nil
}

func (s *Store) RecordPayout(_ context.Context, proposalID uint64, status entities.PayoutStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, ok := s.proposals[proposalID]
	if !ok {
		return domainerrors.ErrProposalNotFound
	}
	if !proposal.Executed {
		return domainerrors.ErrConflict
	}
	proposal.Payout = status
	proposal.PayoutError = strings.TrimSpace(reason)
	s.proposals[proposalID] = proposal
	return nil
}

func (s *Store) ListUnpaid(_ context.Context) ([]entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Proposal, 0)
	for _, proposal := range s.proposals {
		if proposal.Unpaid() {
			items = append(items, cloneProposal(proposal))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ProposalID < items[j].ProposalID
	})
	return items, nil
}

func (s *Store) RecordReceipt(_ context.Context, receipt entities.VoteReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.proposals[receipt.ProposalID]; !ok {
		return domainerrors.ErrProposalNotFound
	}
	key := receiptKey{proposalID: receipt.ProposalID, account: receipt.Account.Normalize()}
	if _, exists := s.receipts[key]; exists {
		return domainerrors.ErrAlreadyVoted
	}
	receipt.Account = key.account
	receipt.CastAt = receipt.CastAt.UTC()
	s.receipts[key] = receipt
	return nil
}

func (s *Store) HasVoted(_ context.Context, proposalID uint64, account entities.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.receipts[receiptKey{proposalID: proposalID, account: account.Normalize()}]
	return ok, nil
}

func (s *Store) AddWeight(
	_ context.Context,
	proposalID uint64,
	choice entities.VoteChoice,
	weight uint64,
) (entities.VoteTally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposal, ok := s.proposals[proposalID]
	if !ok {
		return entities.VoteTally{}, domainerrors.ErrProposalNotFound
	}
	if proposal.Executed {
		return entities.VoteTally{}, domainerrors.ErrProposalAlreadyExecuted
	}
	tally, err := services.ApplyVote(s.tallies[proposalID], choice, weight)
	if err != nil {
		return entities.VoteTally{}, err
	}
	tally.ProposalID = proposalID
	s.tallies[proposalID] = tally
	return tally, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outboxSequence++
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
		sequence: s.outboxSequence,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if !row.published {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].sequence < rows[j].sequence
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	at := publishedAt.UTC()
	row.published = true
	row.message.PublishedAt = &at
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func cloneProposal(proposal entities.Proposal) entities.Proposal {
	if proposal.ExecutedAt != nil {
		at := *proposal.ExecutedAt
		proposal.ExecutedAt = &at
	}
	return proposal
}
