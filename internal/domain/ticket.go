package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen          TicketStatus = "open"
	TicketStatusInProgress    TicketStatus = "in_progress"
	TicketStatusNeedsOperator TicketStatus = "needs_operator"
	TicketStatusClosed        TicketStatus = "closed"
)

// IsValid reports whether s is a known status.
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusNeedsOperator, TicketStatusClosed:
		return true
	}
	return false
}

// Sentiment is the AI-derived tone of the customer message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// IsValid reports whether s is a known sentiment.
func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// Category classifies the nature of the request.
type Category string

const (
	CategoryMalfunction   Category = "malfunction"
	CategoryCalibration   Category = "calibration"
	CategoryDocumentation Category = "documentation"
	CategoryOther         Category = "other"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryMalfunction, CategoryCalibration, CategoryDocumentation, CategoryOther:
		return true
	}
	return false
}

// Ticket is the aggregate for a single customer support case.
type Ticket struct {
	ID            int64
	DateReceived  time.Time
	FullName      *string
	Company       *string
	Phone         *string
	Email         *string
	DeviceSerials []string
	DeviceType    *string
	Sentiment     *Sentiment
	Category      *Category
	Summary       *string
	OriginalEmail *string
	AIResponse    *string
	Status        TicketStatus
	AssignedTo    *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsClosed reports whether the ticket accepts no further inbound replies.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

// Enrichment holds the AI-derived fields written onto a ticket.
type Enrichment struct {
	Sentiment     Sentiment
	Category      Category
	FullName      *string
	Company       *string
	Phone         *string
	DeviceSerials []string
	DeviceType    *string
	Summary       *string
	DraftResponse string
}

// Apply overwrites the ticket's AI-derived fields. Last write wins.
func (e Enrichment) Apply(t *Ticket) {
	sentiment := e.Sentiment
	category := e.Category
	draft := e.DraftResponse
	t.Sentiment = &sentiment
	t.Category = &category
	t.AIResponse = &draft
	t.FullName = e.FullName
	t.Company = e.Company
	t.Phone = e.Phone
	t.DeviceSerials = e.DeviceSerials
	if t.DeviceSerials == nil {
		t.DeviceSerials = []string{}
	}
	t.DeviceType = e.DeviceType
	t.Summary = e.Summary
}
