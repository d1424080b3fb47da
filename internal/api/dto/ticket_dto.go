package dto

import (
	"time"

	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/repository"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	DateReceived  *time.Time          `json:"date_received"`
	FullName      *string             `json:"full_name"`
	Company       *string             `json:"company"`
	Phone         *string             `json:"phone"`
	Email         *string             `json:"email"`
	DeviceSerials []string            `json:"device_serials"`
	DeviceType    *string             `json:"device_type"`
	Sentiment     *domain.Sentiment   `json:"sentiment"`
	Category      *domain.Category    `json:"category"`
	Summary       *string             `json:"summary"`
	OriginalEmail *string             `json:"original_email"`
	AIResponse    *string             `json:"ai_response"`
	Status        domain.TicketStatus `json:"status"`
}

// UpdateTicketRequest payload; omitted fields are left unchanged.
type UpdateTicketRequest struct {
	Status     *domain.TicketStatus `json:"status"`
	AIResponse *string              `json:"ai_response"`
	AssignedTo *int64               `json:"assigned_to"`
}

// TicketResponse is the full operator view of a ticket.
type TicketResponse struct {
	ID            int64               `json:"id"`
	DateReceived  time.Time           `json:"date_received"`
	FullName      *string             `json:"full_name"`
	Company       *string             `json:"company"`
	Phone         *string             `json:"phone"`
	Email         *string             `json:"email"`
	DeviceSerials []string            `json:"device_serials"`
	DeviceType    *string             `json:"device_type"`
	Sentiment     *domain.Sentiment   `json:"sentiment"`
	Category      *domain.Category    `json:"category"`
	Summary       *string             `json:"summary"`
	OriginalEmail *string             `json:"original_email"`
	AIResponse    *string             `json:"ai_response"`
	Status        domain.TicketStatus `json:"status"`
	AssignedTo    *int64              `json:"assigned_to"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	serials := t.DeviceSerials
	if serials == nil {
		serials = []string{}
	}
	return TicketResponse{
		ID:            t.ID,
		DateReceived:  t.DateReceived,
		FullName:      t.FullName,
		Company:       t.Company,
		Phone:         t.Phone,
		Email:         t.Email,
		DeviceSerials: serials,
		DeviceType:    t.DeviceType,
		Sentiment:     t.Sentiment,
		Category:      t.Category,
		Summary:       t.Summary,
		OriginalEmail: t.OriginalEmail,
		AIResponse:    t.AIResponse,
		Status:        t.Status,
		AssignedTo:    t.AssignedTo,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// ChatMessageRequest payload. Role defaults to user.
type ChatMessageRequest struct {
	Role domain.ChatRole `json:"role"`
	Text string          `json:"text"`
}

// ChatMessageResponse is one conversation turn.
type ChatMessageResponse struct {
	ID        int64           `json:"id"`
	TicketID  int64           `json:"ticket_id"`
	Role      domain.ChatRole `json:"role"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewChatMessageResponse maps a domain chat message.
func NewChatMessageResponse(m *domain.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{ID: m.ID, TicketID: m.TicketID, Role: m.Role, Text: m.Text, CreatedAt: m.CreatedAt}
}

// HistoryEntryResponse is one audit record.
type HistoryEntryResponse struct {
	ID         int64                   `json:"id"`
	ActorType  domain.ActorType        `json:"actor_type"`
	ActorID    *int64                  `json:"actor_id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}

// NewHistoryEntryResponse maps a history entry.
func NewHistoryEntryResponse(h *domain.TicketHistory) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:         h.ID,
		ActorType:  h.ActorType,
		ActorID:    h.ActorID,
		ChangeType: h.ChangeType,
		OldValue:   h.OldValue,
		NewValue:   h.NewValue,
		CreatedAt:  h.CreatedAt,
	}
}

// StatsResponse aggregates ticket counts.
type StatsResponse struct {
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"by_status"`
	BySentiment map[string]int64 `json:"by_sentiment"`
	ByCategory  map[string]int64 `json:"by_category"`
}

// NewStatsResponse maps repository stats.
func NewStatsResponse(s *repository.TicketStats) StatsResponse {
	return StatsResponse{Total: s.Total, ByStatus: s.ByStatus, BySentiment: s.BySentiment, ByCategory: s.ByCategory}
}
