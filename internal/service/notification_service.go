package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/events"
	"github.com/eris-support/support-desk/internal/notify"
)

// TicketNotifier pushes new tickets to the operator bot.
type TicketNotifier interface {
	NotifyTicket(ctx context.Context, ticket notify.TicketPayload) error
}

// EventPublisher forwards events to an external stream.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// NotificationService fans domain events out to the bot and the event stream.
// Both sinks are best effort: failures are logged and never reach the caller.
type NotificationService struct {
	dispatcher events.Dispatcher
	bot        TicketNotifier
	stream     EventPublisher
	logger     *zap.Logger
}

// NewNotificationService creates the service. Nil sinks are skipped.
func NewNotificationService(dispatcher events.Dispatcher, bot TicketNotifier, stream EventPublisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		bot:        bot,
		stream:     stream,
		logger:     logger.Named("notifications"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	if n.bot != nil {
		n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	}
	if n.stream != nil {
		n.dispatcher.SubscribeAll(n.forward)
	}
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	if err := n.bot.NotifyTicket(ctx, notify.NewTicketPayload(payload.Ticket)); err != nil {
		n.logger.Warn("bot notification failed", zap.Int64("ticket_id", event.TicketID), zap.Error(err))
	}
	return nil
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	if err := n.stream.Publish(ctx, event); err != nil {
		n.logger.Warn("event stream publish failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
	return nil
}
