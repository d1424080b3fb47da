package service

import (
	"context"

	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/repository"
	apperrors "github.com/eris-support/support-desk/pkg/util"
)

// AnswerNotReady is returned to the bot when a ticket has no response yet.
const AnswerNotReady = "Ответ AI ещё не сгенерирован"

// AllowedUsers lists chat ids permitted to use the notification bot.
type AllowedUsers struct {
	Users  []int64
	Admins []int64
}

// BotService answers lookups from the notification bot.
type BotService struct {
	users   repository.UserRepository
	tickets *TicketService
}

// NewBotService constructs the service.
func NewBotService(users repository.UserRepository, tickets *TicketService) *BotService {
	return &BotService{users: users, tickets: tickets}
}

// AllowedUsers returns every linked chat id, admins listed separately.
func (s *BotService) AllowedUsers(ctx context.Context) (*AllowedUsers, error) {
	users, err := s.users.ListWithTelegram(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	out := &AllowedUsers{Users: []int64{}, Admins: []int64{}}
	for _, u := range users {
		out.Users = append(out.Users, u.TelegramIDs...)
		if u.IsAdmin() {
			out.Admins = append(out.Admins, u.TelegramIDs...)
		}
	}
	return out, nil
}

// Contacts returns the ticket for its contact card.
func (s *BotService) Contacts(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	return s.tickets.Get(ctx, ticketID)
}

// GeneratedAnswer returns the ticket's current response text.
func (s *BotService) GeneratedAnswer(ctx context.Context, ticketID int64) (string, error) {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if ticket.AIResponse == nil || *ticket.AIResponse == "" {
		return AnswerNotReady, nil
	}
	return *ticket.AIResponse, nil
}
