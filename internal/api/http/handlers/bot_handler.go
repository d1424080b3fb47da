package handlers

import (
	"context"
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/eris-support/support-desk/internal/api/dto"
	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/notify"
	"github.com/eris-support/support-desk/internal/service"
	apperrors "github.com/eris-support/support-desk/pkg/util"
)

// BotLookups serves the notification bot.
type BotLookups interface {
	AllowedUsers(ctx context.Context) (*service.AllowedUsers, error)
	Contacts(ctx context.Context, ticketID int64) (*domain.Ticket, error)
	GeneratedAnswer(ctx context.Context, ticketID int64) (string, error)
}

// BotHandler exposes the bot-facing API. Responses are unwrapped JSON objects
// because the bot reads them directly.
type BotHandler struct {
	service BotLookups
	secret  string
}

// NewBotHandler constructs handler.
func NewBotHandler(svc BotLookups, secret string) *BotHandler {
	return &BotHandler{service: svc, secret: secret}
}

// RequireSecret rejects requests without the shared bot secret.
func (h *BotHandler) RequireSecret(c *fiber.Ctx) error {
	got := c.Get(notify.SecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		return apperrors.NewForbidden("Forbidden")
	}
	return c.Next()
}

// AllowedUsers GET /api/telegram/allowed-users.
func (h *BotHandler) AllowedUsers(c *fiber.Ctx) error {
	allowed, err := h.service.AllowedUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.AllowedUsersResponse{Users: allowed.Users, Admins: allowed.Admins})
}

// Contacts GET /api/telegram/tickets/:id/contacts.
func (h *BotHandler) Contacts(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Contacts(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewContactsResponse(ticket))
}

// GeneratedAnswer GET /api/telegram/tickets/:id/generated-answer.
func (h *BotHandler) GeneratedAnswer(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	answer, err := h.service.GeneratedAnswer(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(dto.GeneratedAnswerResponse{AIResponse: answer})
}
