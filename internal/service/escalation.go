package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/events"
	"github.com/eris-support/support-desk/internal/repository"
)

// EscalationPhrase asks for a human operator when present in a customer message.
const EscalationPhrase = "вызвать оператора"

// OperatorHint is appended to every automatic bot reply.
const OperatorHint = "\n\n💡 Если нужно вызвать оператора, напишите — вызвать оператора"

// RequestsOperator reports whether text contains the escalation phrase in any case.
func RequestsOperator(text string) bool {
	return strings.Contains(strings.ToLower(text), EscalationPhrase)
}

// maxStatusAttempts bounds retries when a status write races another writer.
const maxStatusAttempts = 3

// statusChanger persists status transitions with an audit entry and event.
// A closed ticket is never moved to another status by it.
type statusChanger struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// change moves ticket to the target status. The write is conditional on the
// status read earlier; when that moved on, the ticket is reloaded and the
// transition retried or dropped. ticket reflects the stored state afterwards.
func (c statusChanger) change(ctx context.Context, ticket *domain.Ticket, to domain.TicketStatus, actor events.Actor, reason string) error {
	for attempt := 1; ; attempt++ {
		from := ticket.Status
		if from == to {
			return nil
		}
		if from == domain.TicketStatusClosed {
			c.logger.Info("status change on closed ticket dropped",
				zap.Int64("ticket_id", ticket.ID), zap.String("to", string(to)))
			return nil
		}

		entry := domain.TicketHistory{
			TicketID:   ticket.ID,
			ActorType:  actor.Type,
			ActorID:    actor.UserID,
			ChangeType: domain.ChangeTypeStatus,
			OldValue:   map[string]any{"status": from},
			NewValue:   map[string]any{"status": to},
		}
		updatedAt, err := c.tickets.TransitionStatus(ctx, ticket.ID, from, to, entry)
		if err == nil {
			ticket.Status = to
			ticket.UpdatedAt = updatedAt
			publish(ctx, c.dispatcher, c.logger, events.NewEvent(events.EventTicketStatusChanged, ticket.ID, actor,
				events.TicketStatusChangedPayload{OldStatus: from, NewStatus: to, Reason: reason}))
			return nil
		}
		if !errors.Is(err, repository.ErrStatusConflict) || attempt == maxStatusAttempts {
			return fmt.Errorf("update ticket %d status: %w", ticket.ID, err)
		}

		fresh, err := c.tickets.GetByID(ctx, ticket.ID)
		if err != nil {
			return fmt.Errorf("reload ticket %d: %w", ticket.ID, err)
		}
		c.logger.Debug("ticket status moved concurrently",
			zap.Int64("ticket_id", ticket.ID),
			zap.String("expected", string(from)),
			zap.String("found", string(fresh.Status)),
		)
		*ticket = *fresh
	}
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
}

func chatAddedEvent(msg *domain.ChatMessage, actor events.Actor) events.Event {
	return events.NewEvent(events.EventChatMessageAdded, msg.TicketID, actor, events.ChatMessageAddedPayload{
		MessageID:   msg.ID,
		Role:        msg.Role,
		TextPreview: preview(msg.Text, 200),
	})
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
