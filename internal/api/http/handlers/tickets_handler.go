package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/eris-support/support-desk/internal/api/dto"
	"github.com/eris-support/support-desk/internal/auth"
	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/repository"
	"github.com/eris-support/support-desk/internal/service"
	apperrors "github.com/eris-support/support-desk/pkg/util"
)

// TicketOperations is the operator ticket workflow.
type TicketOperations interface {
	List(ctx context.Context, filter service.TicketListFilter) ([]domain.Ticket, error)
	Create(ctx context.Context, actor *domain.User, input service.TicketCreateInput) (*domain.Ticket, error)
	Get(ctx context.Context, id int64) (*domain.Ticket, error)
	Update(ctx context.Context, actor *domain.User, id int64, patch service.TicketPatch) (*domain.Ticket, error)
	SendResponse(ctx context.Context, actor *domain.User, id int64) (*domain.Ticket, error)
	Chat(ctx context.Context, id int64) ([]domain.ChatMessage, error)
	AddChatMessage(ctx context.Context, actor *domain.User, id int64, role domain.ChatRole, text string) (*domain.ChatMessage, error)
	GenerateReply(ctx context.Context, actor *domain.User, id int64) (*domain.ChatMessage, error)
	History(ctx context.Context, id int64) ([]domain.TicketHistory, error)
	Stats(ctx context.Context) (*repository.TicketStats, error)
}

// TicketsHandler serves operator ticket endpoints.
type TicketsHandler struct {
	service TicketOperations
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets TicketOperations) *TicketsHandler {
	return &TicketsHandler{service: tickets}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := service.TicketListFilter{
		Status:    optionalQuery[domain.TicketStatus](c, "status"),
		Sentiment: optionalQuery[domain.Sentiment](c, "sentiment"),
		Category:  optionalQuery[domain.Category](c, "category"),
		Limit:     c.QueryInt("limit", 0),
		Offset:    c.QueryInt("offset", 0),
	}
	tickets, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	operator, _ := auth.OperatorFromContext(c)
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Create(c.UserContext(), operator, service.TicketCreateInput{
		DateReceived:  req.DateReceived,
		FullName:      req.FullName,
		Company:       req.Company,
		Phone:         req.Phone,
		Email:         req.Email,
		DeviceSerials: req.DeviceSerials,
		DeviceType:    req.DeviceType,
		Sentiment:     req.Sentiment,
		Category:      req.Category,
		Summary:       req.Summary,
		OriginalEmail: req.OriginalEmail,
		AIResponse:    req.AIResponse,
		Status:        req.Status,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	operator, _ := auth.OperatorFromContext(c)
	ticket, err := h.service.Update(c.UserContext(), operator, id, service.TicketPatch{
		Status:     req.Status,
		AIResponse: req.AIResponse,
		AssignedTo: req.AssignedTo,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// SendResponse POST /api/tickets/:id/send.
func (h *TicketsHandler) SendResponse(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	operator, _ := auth.OperatorFromContext(c)
	ticket, err := h.service.SendResponse(c.UserContext(), operator, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListChat GET /api/tickets/:id/chat.
func (h *TicketsHandler) ListChat(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	msgs, err := h.service.Chat(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.ChatMessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, dto.NewChatMessageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// AddChatMessage POST /api/tickets/:id/chat.
func (h *TicketsHandler) AddChatMessage(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.ChatMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	operator, _ := auth.OperatorFromContext(c)
	msg, err := h.service.AddChatMessage(c.UserContext(), operator, id, req.Role, req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewChatMessageResponse(msg)})
}

// GenerateReply POST /api/tickets/:id/chat/generate.
func (h *TicketsHandler) GenerateReply(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	operator, _ := auth.OperatorFromContext(c)
	msg, err := h.service.GenerateReply(c.UserContext(), operator, id)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewChatMessageResponse(msg)})
}

// History GET /api/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewHistoryEntryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Stats GET /api/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatsResponse(stats)})
}
