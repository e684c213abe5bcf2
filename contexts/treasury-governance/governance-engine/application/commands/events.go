package commands

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	application "governor/contexts/treasury-governance/governance-engine/application"
	"governor/contexts/treasury-governance/governance-engine/ports"

	"github.com/google/uuid"
)

func newGovernanceEnvelope(
	eventID string,
	eventType string,
	proposalID uint64,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Events are partitioned by proposal so consumers see a proposal's
	// lifecycle in order.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "governance-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "proposal_id",
		PartitionKey:     strconv.FormatUint(proposalID, 10),
		Data:             payload,
	}, nil
}

// appendEvent runs after the state change has committed, so failures are
// logged and never undo the operation.
func (uc GovernanceUseCase) appendEvent(
	ctx context.Context,
	eventType string,
	proposalID uint64,
	occurredAt time.Time,
	data map[string]any,
) {
	if uc.Outbox == nil {
		return
	}
	logger := application.ResolveLogger(uc.Logger)
	eventID, err := uc.newEventID(ctx)
	if err != nil {
		logger.Error("governance event id generation failed",
			"event", "governance_outbox_id_failed",
			"module", moduleName,
			"layer", "application",
			"event_type", eventType,
			"proposal_id", proposalID,
			"error", err.Error(),
		)
		return
	}
	data["proposal_id"] = proposalID
	data["occurred_at"] = occurredAt.UTC().Format(time.RFC3339)
	envelope, err := newGovernanceEnvelope(eventID, eventType, proposalID, occurredAt, data)
	if err == nil {
		err = uc.Outbox.AppendOutbox(ctx, envelope)
	}
	if err != nil {
		logger.Error("governance outbox append failed",
			"event", "governance_outbox_append_failed",
			"module", moduleName,
			"layer", "application",
			"event_type", eventType,
			"proposal_id", proposalID,
			"error", err.Error(),
		)
	}
}

func (uc GovernanceUseCase) newEventID(ctx context.Context) (string, error) {
	if uc.IDGen == nil {
		return uuid.NewString(), nil
	}
	return uc.IDGen.NewID(ctx)
}
