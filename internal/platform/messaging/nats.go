package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"governor/contexts/treasury-governance/governance-engine/ports"

	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "governor.events"

// NATS publishes outbox events as JSON to "<prefix>.<event_type>".
type NATS struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

var _ ports.EventPublisher = (*NATS)(nil)

func ConnectNATS(url string, serviceName string, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name(serviceName),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected",
					"event", "nats_disconnected",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"error", err.Error(),
				)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATS{
		conn:    conn,
		prefix:  defaultSubjectPrefix,
		timeout: 5 * time.Second,
		logger:  logger,
	}, nil
}

// Subject maps an event type to its NATS subject.
func (n *NATS) Subject(topic string) string {
	return n.prefix + "." + strings.TrimSpace(topic)
}

// Publish waits for the server to acknowledge the write with a flush, so the
// relay only marks rows published once NATS has them.
func (n *NATS) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(n.Subject(topic))
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, event.EventID)
	msg.Header.Set("Partition-Key", event.PartitionKey)
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.conn.FlushWithContext(flushCtx); err != nil {
		n.logger.Error("nats flush failed",
			"event", "nats_flush_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"subject", msg.Subject,
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return fmt.Errorf("flush %s: %w", msg.Subject, err)
	}
	return nil
}

func (n *NATS) Close() {
	if n == nil || n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
