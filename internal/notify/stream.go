package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/config"
	"github.com/eris-support/support-desk/internal/events"
)

// messageWriter is the subset of *kafka.Writer used by the stream.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// defaultPublishTimeout bounds one Publish. Events are produced inline with
// ticket processing, so an unreachable cluster must not stall a pass.
const defaultPublishTimeout = 2 * time.Second

// EventStream produces ticket events to Kafka. Without brokers every call is
// a no-op.
type EventStream struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewEventStream builds the producer from config.
func NewEventStream(cfg config.KafkaConfig, logger *zap.Logger) *EventStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &EventStream{topic: cfg.Topic, timeout: defaultPublishTimeout, logger: logger.Named("event_stream")}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return s
	}
	s.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            2,
		WriteBackoffMin:        50 * time.Millisecond,
		WriteBackoffMax:        250 * time.Millisecond,
		ReadTimeout:            defaultPublishTimeout,
		WriteTimeout:           defaultPublishTimeout,
		AllowAutoTopicCreation: true,
	}
	return s
}

// Enabled reports whether brokers are configured.
func (s *EventStream) Enabled() bool {
	return s != nil && s.writer != nil
}

type streamRecord struct {
	ID        string           `json:"id"`
	Type      events.EventType `json:"event"`
	TicketID  int64            `json:"ticket_id"`
	Actor     events.Actor     `json:"actor"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   any              `json:"payload,omitempty"`
}

// Publish writes one event keyed by ticket id so a ticket's events stay ordered
// within a partition.
func (s *EventStream) Publish(ctx context.Context, event events.Event) error {
	if !s.Enabled() {
		return nil
	}
	payload := event.Payload
	if created, ok := payload.(events.TicketCreatedPayload); ok {
		payload = NewTicketPayload(created.Ticket)
	}
	body, err := json.Marshal(streamRecord{
		ID:        event.ID,
		Type:      event.Type,
		TicketID:  event.TicketID,
		Actor:     event.Actor,
		Timestamp: event.Timestamp,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.TicketID, 10)),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	timeout := s.timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("write %s event to %s: %w", event.Type, s.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *EventStream) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.writer.Close()
}
