package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"
	"governor/contexts/treasury-governance/governance-engine/domain/services"
	"governor/contexts/treasury-governance/governance-engine/ports"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	counterNextProposalID = "next_proposal_id"
	configRowID           = "governor"
)

var ErrConfigMismatch = errors.New("persisted governance config differs from startup config")

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the governance tables when they do not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&proposalModel{},
		&tallyModel{},
		&receiptModel{},
		&counterModel{},
		&configModel{},
		&outboxModel{},
	); err != nil {
		return r.logError("governance_repo_migrate_failed", err)
	}
	return nil
}

// EnsureConfig stores the governance token and quorum on first start and
// refuses to run against a database created with different values.
func (r *Repository) EnsureConfig(ctx context.Context, governanceToken string, quorum uint8) error {
	row := configModel{
		ID:              configRowID,
		GovernanceToken: strings.TrimSpace(governanceToken),
		Quorum:          int16(quorum),
		CreatedAt:       time.Now().UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("governance_repo_ensure_config_failed", create.Error)
	}
	if create.RowsAffected > 0 {
		return nil
	}
	var existing configModel
	if err := r.db.WithContext(ctx).Where("id = ?", configRowID).First(&existing).Error; err != nil {
		return r.logError("governance_repo_load_config_failed", err)
	}
	if existing.GovernanceToken != row.GovernanceToken || existing.Quorum != row.Quorum {
		return fmt.Errorf("%w: token=%s quorum=%d", ErrConfigMismatch, existing.GovernanceToken, existing.Quorum)
	}
	return nil
}

func (r *Repository) CreateProposal(ctx context.Context, proposal entities.Proposal) (entities.Proposal, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&counterModel{Name: counterNextProposalID}).Error; err != nil {
			return err
		}
		var counter counterModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", counterNextProposalID).
			First(&counter).Error; err != nil {
			return err
		}
		counter.Value++
		if err := tx.Model(&counterModel{}).
			Where("name = ?", counterNextProposalID).
			Update("value", counter.Value).Error; err != nil {
			return err
		}

		proposal.ProposalID = uint64(counter.Value)
		proposal.Executed = false
		proposal.ExecutedAt = nil
		if proposal.Payout == "" {
			proposal.Payout = entities.PayoutStatusNone
		}
		row := proposalModelFromEntity(proposal)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&tallyModel{ProposalID: row.ProposalID}).Error
	})
	if err != nil {
		return entities.Proposal{}, r.logError("governance_repo_create_proposal_failed", err,
			"beneficiary", string(proposal.Beneficiary),
		)
	}
	return proposal, nil
}

func (r *Repository) GetProposal(ctx context.Context, proposalID uint64) (entities.Proposal, bool, error) {
	if proposalID > math.MaxInt64 {
		return entities.Proposal{}, false, nil
	}
	var row proposalModel
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", int64(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Proposal{}, false, nil
		}
		return entities.Proposal{}, false, r.logError("governance_repo_get_proposal_failed", err,
			"proposal_id", proposalID,
		)
	}
	proposal, err := row.toEntity()
	if err != nil {
		return entities.Proposal{}, false, r.logError("governance_repo_decode_proposal_failed", err,
			"proposal_id", proposalID,
		)
	}
	return proposal, true, nil
}

func (r *Repository) GetTally(ctx context.Context, proposalID uint64) (entities.VoteTally, bool, error) {
	if proposalID > math.MaxInt64 {
		return entities.VoteTally{}, false, nil
	}
	var row tallyModel
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", int64(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoteTally{}, false, nil
		}
		return entities.VoteTally{}, false, r.logError("governance_repo_get_tally_failed", err,
			"proposal_id", proposalID,
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) NextProposalID(ctx context.Context) (uint64, error) {
	var counter counterModel
	err := r.db.WithContext(ctx).
		Where("name = ?", counterNextProposalID).
		First(&counter).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, r.logError("governance_repo_next_proposal_id_failed", err)
	}
	return uint64(counter.Value), nil
}

func (r *Repository) MarkExecuted(ctx context.Context, proposalID uint64, executedAt time.Time) (entities.Proposal, error) {
	if proposalID > math.MaxInt64 {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	result := r.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("proposal_id = ? AND executed = ?", int64(proposalID), false).
		Updates(map[string]any{
			"executed":      true,
			"executed_at":   executedAt.UTC(),
			"payout_status": string(entities.PayoutStatusPending),
		})
	if result.Error != nil {
		return entities.Proposal{}, r.logError("governance_repo_mark_executed_failed", result.Error,
			"proposal_id", proposalID,
		)
	}
	proposal, found, err := r.GetProposal(ctx, proposalID)
	if err != nil {
		return entities.Proposal{}, err
	}
	if !found {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	if result.RowsAffected == 0 {
		return entities.Proposal{}, domainerrors.ErrProposalAlreadyExecuted
	}
	return proposal, nil
}

func (r *Repository) RecordPayout(ctx context.Context, proposalID uint64, status entities.PayoutStatus, reason string) error {
	if proposalID > math.MaxInt64 {
		return domainerrors.ErrProposalNotFound
	}
	result := r.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("proposal_id = ? AND executed = ?", int64(proposalID), true).
		Updates(map[string]any{
			"payout_status": string(status),
			"payout_error":  strings.TrimSpace(reason),
		})
	if result.Error != nil {
		return r.logError("governance_repo_record_payout_failed", result.Error,
			"proposal_id", proposalID,
			"payout_status", string(status),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListUnpaid(ctx context.Context) ([]entities.Proposal, error) {
	var rows []proposalModel
	if err := r.db.WithContext(ctx).
		Where("executed = ? AND payout_status IN ?", true, []string{
			string(entities.PayoutStatusPending),
			string(entities.PayoutStatusFailed),
		}).
		Order("proposal_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_unpaid_failed", err)
	}
	items := make([]entities.Proposal, 0, len(rows))
	for _, row := range rows {
		proposal, err := row.toEntity()
		if err != nil {
			return nil, r.logError("governance_repo_decode_proposal_failed", err,
				"proposal_id", row.ProposalID,
			)
		}
		items = append(items, proposal)
	}
	return items, nil
}

func (r *Repository) RecordReceipt(ctx context.Context, receipt entities.VoteReceipt) error {
	if receipt.ProposalID > math.MaxInt64 {
		return domainerrors.ErrProposalNotFound
	}
	row := receiptModel{
		ProposalID: int64(receipt.ProposalID),
		Account:    string(receipt.Account.Normalize()),
		CastAt:     receipt.CastAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyVoted
		}
		if isForeignKeyViolation(err) {
			return domainerrors.ErrProposalNotFound
		}
		return r.logError("governance_repo_record_receipt_failed", err,
			"proposal_id", receipt.ProposalID,
			"account", row.Account,
		)
	}
	return nil
}

func (r *Repository) HasVoted(ctx context.Context, proposalID uint64, account entities.AccountID) (bool, error) {
	if proposalID > math.MaxInt64 {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&receiptModel{}).
		Where("proposal_id = ? AND account = ?", int64(proposalID), string(account.Normalize())).
		Count(&count).Error; err != nil {
		return false, r.logError("governance_repo_has_voted_failed", err,
			"proposal_id", proposalID,
		)
	}
	return count > 0, nil
}

func (r *Repository) AddWeight(
	ctx context.Context,
	proposalID uint64,
	choice entities.VoteChoice,
	weight uint64,
) (entities.VoteTally, error) {
	if proposalID > math.MaxInt64 {
		return entities.VoteTally{}, domainerrors.ErrProposalNotFound
	}
	var updated entities.VoteTally
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var proposal proposalModel
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("proposal_id", "executed").
			Where("proposal_id = ?", int64(proposalID)).
			First(&proposal).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrProposalNotFound
			}
			return err
		}
		if proposal.Executed {
			return domainerrors.ErrProposalAlreadyExecuted
		}

		var row tallyModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("proposal_id = ?", int64(proposalID)).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrProposalNotFound
			}
			return err
		}
		tally, err := services.ApplyVote(row.toEntity(), choice, weight)
		if err != nil {
			return err
		}
		if tally.ForWeight > math.MaxInt64 || tally.AgainstWeight > math.MaxInt64 {
			return domainerrors.ErrWeightOverflow
		}
		if err := tx.Model(&tallyModel{}).
			Where("proposal_id = ?", int64(proposalID)).
			Updates(map[string]any{
				"for_weight":     int64(tally.ForWeight),
				"against_weight": int64(tally.AgainstWeight),
			}).Error; err != nil {
			return err
		}
		updated = tally
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrProposalNotFound) ||
			errors.Is(err, domainerrors.ErrProposalAlreadyExecuted) ||
			errors.Is(err, domainerrors.ErrWeightOverflow) ||
			errors.Is(err, domainerrors.ErrInvalidInput) {
			return entities.VoteTally{}, err
		}
		return entities.VoteTally{}, r.logError("governance_repo_add_weight_failed", err,
			"proposal_id", proposalID,
			"choice", string(choice),
			"weight", weight,
		)
	}
	return updated, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("governance_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("governance_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("governance_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Order("outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("governance_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "treasury-governance/governance-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("governance repository operation failed", fields...)
	return err
}

type proposalModel struct {
	ProposalID   int64      `gorm:"column:proposal_id;primaryKey;autoIncrement:false"`
	Beneficiary  string     `gorm:"column:beneficiary;not null"`
	Amount       string     `gorm:"column:amount;type:numeric(78,0);not null"`
	VoteStart    int64      `gorm:"column:vote_start;not null"`
	VoteEnd      int64      `gorm:"column:vote_end;not null"`
	Executed     bool       `gorm:"column:executed;not null;default:false"`
	PayoutStatus string     `gorm:"column:payout_status;not null"`
	PayoutError  string     `gorm:"column:payout_error"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	ExecutedAt   *time.Time `gorm:"column:executed_at"`
}

func (proposalModel) TableName() string {
	return "governance_proposals"
}

func proposalModelFromEntity(proposal entities.Proposal) proposalModel {
	return proposalModel{
		ProposalID:   int64(proposal.ProposalID),
		Beneficiary:  string(proposal.Beneficiary),
		Amount:       proposal.Amount.Dec(),
		VoteStart:    proposal.VoteStart,
		VoteEnd:      proposal.VoteEnd,
		Executed:     proposal.Executed,
		PayoutStatus: string(proposal.Payout),
		PayoutError:  proposal.PayoutError,
		CreatedAt:    proposal.CreatedAt.UTC(),
		ExecutedAt:   normalizeOptionalTime(proposal.ExecutedAt),
	}
}

func (m proposalModel) toEntity() (entities.Proposal, error) {
	amount, err := uint256.FromDecimal(m.Amount)
	if err != nil {
		return entities.Proposal{}, fmt.Errorf("decode amount %q: %w", m.Amount, err)
	}
	return entities.Proposal{
		ProposalID:  uint64(m.ProposalID),
		Beneficiary: entities.AccountID(m.Beneficiary),
		VoteStart:   m.VoteStart,
		VoteEnd:     m.VoteEnd,
		Executed:    m.Executed,
		Amount:      *amount,
		Payout:      entities.PayoutStatus(m.PayoutStatus),
		PayoutError: m.PayoutError,
		CreatedAt:   m.CreatedAt.UTC(),
		ExecutedAt:  normalizeOptionalTime(m.ExecutedAt),
	}, nil
}

type tallyModel struct {
	ProposalID    int64         `gorm:"column:proposal_id;primaryKey;autoIncrement:false"`
	ForWeight     int64         `gorm:"column:for_weight;not null;default:0"`
	AgainstWeight int64         `gorm:"column:against_weight;not null;default:0"`
	Proposal      proposalModel `gorm:"foreignKey:ProposalID;references:ProposalID"`
}

func (tallyModel) TableName() string {
	return "governance_tallies"
}

func (m tallyModel) toEntity() entities.VoteTally {
	return entities.VoteTally{
		ProposalID:    uint64(m.ProposalID),
		ForWeight:     uint64(m.ForWeight),
		AgainstWeight: uint64(m.AgainstWeight),
	}
}

type receiptModel struct {
	ProposalID int64         `gorm:"column:proposal_id;primaryKey;autoIncrement:false"`
	Account    string        `gorm:"column:account;primaryKey"`
	CastAt     time.Time     `gorm:"column:cast_at"`
	Proposal   proposalModel `gorm:"foreignKey:ProposalID;references:ProposalID"`
}

func (receiptModel) TableName() string {
	return "governance_vote_receipts"
}

type counterModel struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value int64  `gorm:"column:value;not null;default:0"`
}

func (counterModel) TableName() string {
	return "governance_counters"
}

type configModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	GovernanceToken string    `gorm:"column:governance_token;not null"`
	Quorum          int16     `gorm:"column:quorum;not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (configModel) TableName() string {
	return "governance_config"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "governance_outbox"
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ ports.ProposalStore = (*Repository)(nil)
var _ ports.VoteLedger = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
