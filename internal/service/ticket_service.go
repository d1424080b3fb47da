package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/events"
	"github.com/eris-support/support-desk/internal/mail"
	"github.com/eris-support/support-desk/internal/repository"
	apperrors "github.com/eris-support/support-desk/pkg/util"
)

// Replier produces a conversational reply for a ticket chat.
type Replier interface {
	GenerateReply(ctx context.Context, ticketContext string, history []domain.ChatMessage) string
}

// TicketService coordinates operator ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	chat       repository.ChatMessageRepository
	history    repository.TicketHistoryRepository
	sender     ReplySender
	replier    Replier
	dispatcher events.Dispatcher
	logger     *zap.Logger
	status     statusChanger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	ChatRepo    repository.ChatMessageRepository
	HistoryRepo repository.TicketHistoryRepository
	Sender      ReplySender
	Replier     Replier
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// TicketCreateInput describes manual ticket creation.
type TicketCreateInput struct {
	DateReceived  *time.Time
	FullName      *string
	Company       *string
	Phone         *string
	Email         *string
	DeviceSerials []string
	DeviceType    *string
	Sentiment     *domain.Sentiment
	Category      *domain.Category
	Summary       *string
	OriginalEmail *string
	AIResponse    *string
	Status        domain.TicketStatus
}

// TicketListFilter narrows ticket listings.
type TicketListFilter struct {
	Status    *domain.TicketStatus
	Sentiment *domain.Sentiment
	Category  *domain.Category
	Limit     int
	Offset    int
}

// TicketPatch lists operator-editable fields; nil means unchanged.
type TicketPatch struct {
	Status     *domain.TicketStatus
	AIResponse *string
	AssignedTo *int64
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tickets")
	return &TicketService{
		tickets:    deps.TicketRepo,
		chat:       deps.ChatRepo,
		history:    deps.HistoryRepo,
		sender:     deps.Sender,
		replier:    deps.Replier,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		status:     statusChanger{tickets: deps.TicketRepo, dispatcher: deps.Dispatcher, logger: logger},
	}
}

// List returns tickets newest first.
func (s *TicketService) List(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	details := map[string]any{}
	if filter.Status != nil && !filter.Status.IsValid() {
		details["status"] = *filter.Status
	}
	if filter.Sentiment != nil && !filter.Sentiment.IsValid() {
		details["sentiment"] = *filter.Sentiment
	}
	if filter.Category != nil && !filter.Category.IsValid() {
		details["category"] = *filter.Category
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid filter", details)
	}

	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		Status:    filter.Status,
		Sentiment: filter.Sentiment,
		Category:  filter.Category,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Create stores a manually entered ticket.
func (s *TicketService) Create(ctx context.Context, actor *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if input.Status == "" {
		input.Status = domain.TicketStatusOpen
	}
	details := map[string]any{}
	if !input.Status.IsValid() {
		details["status"] = input.Status
	}
	if input.Sentiment != nil && !input.Sentiment.IsValid() {
		details["sentiment"] = *input.Sentiment
	}
	if input.Category != nil && !input.Category.IsValid() {
		details["category"] = *input.Category
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	ticket := &domain.Ticket{
		DateReceived:  time.Now().UTC(),
		FullName:      trimmed(input.FullName),
		Company:       trimmed(input.Company),
		Phone:         trimmed(input.Phone),
		Email:         trimmed(input.Email),
		DeviceSerials: input.DeviceSerials,
		DeviceType:    trimmed(input.DeviceType),
		Sentiment:     input.Sentiment,
		Category:      input.Category,
		Summary:       trimmed(input.Summary),
		OriginalEmail: input.OriginalEmail,
		AIResponse:    input.AIResponse,
		Status:        input.Status,
	}
	if input.DateReceived != nil {
		ticket.DateReceived = input.DateReceived.UTC()
	}
	if ticket.DeviceSerials == nil {
		ticket.DeviceSerials = []string{}
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	publish(ctx, s.dispatcher, s.logger, events.NewEvent(events.EventTicketCreated, ticket.ID, operatorActor(actor),
		events.TicketCreatedPayload{Ticket: *ticket}))
	return ticket, nil
}

// Get loads one ticket.
func (s *TicketService) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Update applies an operator patch. Status changes are audited. The write is
// rejected with a conflict when the status moved since the ticket was read.
func (s *TicketService) Update(ctx context.Context, actor *domain.User, id int64, patch TicketPatch) (*domain.Ticket, error) {
	if patch.Status != nil && !patch.Status.IsValid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *patch.Status})
	}
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	by := operatorActor(actor)
	var history []domain.TicketHistory
	oldStatus := ticket.Status
	if patch.Status != nil && *patch.Status != ticket.Status {
		history = append(history, domain.TicketHistory{
			TicketID: ticket.ID, ActorType: by.Type, ActorID: by.UserID, ChangeType: domain.ChangeTypeStatus,
			OldValue: map[string]any{"status": ticket.Status}, NewValue: map[string]any{"status": *patch.Status},
		})
		ticket.Status = *patch.Status
	}
	if patch.AIResponse != nil {
		history = append(history, domain.TicketHistory{
			TicketID: ticket.ID, ActorType: by.Type, ActorID: by.UserID, ChangeType: domain.ChangeTypeResponse,
			OldValue: map[string]any{"ai_response": ticket.AIResponse}, NewValue: map[string]any{"ai_response": *patch.AIResponse},
		})
		ticket.AIResponse = patch.AIResponse
	}
	if patch.AssignedTo != nil {
		history = append(history, domain.TicketHistory{
			TicketID: ticket.ID, ActorType: by.Type, ActorID: by.UserID, ChangeType: domain.ChangeTypeAssignee,
			OldValue: map[string]any{"assigned_to": ticket.AssignedTo}, NewValue: map[string]any{"assigned_to": *patch.AssignedTo},
		})
		ticket.AssignedTo = patch.AssignedTo
	}
	if len(history) == 0 {
		return ticket, nil
	}

	if err := s.tickets.Update(ctx, ticket, oldStatus, history...); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, apperrors.NewConflict("ticket status changed, reload and retry", map[string]any{"ticket_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Status != oldStatus {
		publish(ctx, s.dispatcher, s.logger, events.NewEvent(events.EventTicketStatusChanged, ticket.ID, by,
			events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status}))
	}
	return ticket, nil
}

// SendResponse mails the ticket's response to the customer and closes the
// ticket. A missing relay and a failed delivery are reported differently.
func (s *TicketService) SendResponse(ctx context.Context, actor *domain.User, id int64) (*domain.Ticket, error) {
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.AIResponse == nil || strings.TrimSpace(*ticket.AIResponse) == "" {
		return nil, apperrors.NewValidationError("ticket has no response text", map[string]any{"ticket_id": id})
	}
	if ticket.Email == nil || strings.TrimSpace(*ticket.Email) == "" {
		return nil, apperrors.NewValidationError("ticket has no customer email", map[string]any{"ticket_id": id})
	}
	if s.sender == nil {
		return nil, apperrors.NewServiceUnavailable("service unavailable", mail.ErrNotConfigured)
	}

	subject := mail.ReplySubject(OriginalSubject(ticket))
	if err := s.sender.Send(ctx, *ticket.Email, subject, *ticket.AIResponse, &ticket.ID); err != nil {
		if errors.Is(err, mail.ErrNotConfigured) {
			return nil, apperrors.NewServiceUnavailable("service unavailable", err)
		}
		s.logger.Error("send response failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return nil, apperrors.NewSendFailed(err)
	}

	if err := s.status.change(ctx, ticket, domain.TicketStatusClosed, operatorActor(actor), "response sent"); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Chat lists the ticket conversation in order.
func (s *TicketService) Chat(ctx context.Context, id int64) ([]domain.ChatMessage, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	msgs, err := s.chat.ListByTicket(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return msgs, nil
}

// AddChatMessage appends a message. User messages asking for an operator
// escalate open tickets.
func (s *TicketService) AddChatMessage(ctx context.Context, actor *domain.User, id int64, role domain.ChatRole, text string) (*domain.ChatMessage, error) {
	if role == "" {
		role = domain.ChatRoleUser
	}
	if !role.IsValid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text is required", nil)
	}
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	msg := &domain.ChatMessage{TicketID: ticket.ID, Role: role, Text: text}
	if err := s.chat.Append(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	by := operatorActor(actor)
	publish(ctx, s.dispatcher, s.logger, chatAddedEvent(msg, by))

	if role == domain.ChatRoleUser && !ticket.IsClosed() && RequestsOperator(text) {
		if err := s.status.change(ctx, ticket, domain.TicketStatusNeedsOperator, by, "operator requested in chat"); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	return msg, nil
}

// GenerateReply asks the assistant for the next bot turn and stores it.
func (s *TicketService) GenerateReply(ctx context.Context, actor *domain.User, id int64) (*domain.ChatMessage, error) {
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.chat.ListByTicket(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var original string
	if ticket.OriginalEmail != nil {
		original = *ticket.OriginalEmail
	}
	reply := s.replier.GenerateReply(ctx, original, history)

	msg := &domain.ChatMessage{TicketID: ticket.ID, Role: domain.ChatRoleBot, Text: reply}
	if err := s.chat.Append(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	publish(ctx, s.dispatcher, s.logger, chatAddedEvent(msg, operatorActor(actor)))
	return msg, nil
}

// History returns the audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, id int64) ([]domain.TicketHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// Stats aggregates ticket counts.
func (s *TicketService) Stats(ctx context.Context) (*repository.TicketStats, error) {
	stats, err := s.tickets.Stats(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return stats, nil
}

// OriginalSubject recovers the subject line from the stored original text.
func OriginalSubject(ticket *domain.Ticket) string {
	if ticket == nil || ticket.OriginalEmail == nil {
		return ""
	}
	for _, line := range strings.Split(*ticket.OriginalEmail, "\n") {
		if rest, ok := strings.CutPrefix(line, "Тема: "); ok {
			return strings.TrimSpace(rest)
		}
		if line == "" {
			break
		}
	}
	return ""
}

func operatorActor(user *domain.User) events.Actor {
	if user == nil {
		return events.SystemActor
	}
	id := user.ID
	return events.Actor{Type: domain.ActorTypeOperator, UserID: &id}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
