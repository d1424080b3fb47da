package notify

import "github.com/eris-support/support-desk/internal/domain"

// TicketPayload is the ticket card consumed by the notification bot.
type TicketPayload struct {
	ID         int64    `json:"id"`
	Sentiment  string   `json:"sentiment"`
	Category   string   `json:"category"`
	FullName   string   `json:"full_name"`
	Company    string   `json:"company"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	DeviceType string   `json:"device_type"`
	DeviceSN   []string `json:"device_sn"`
	Summary    string   `json:"summary"`
	Status     string   `json:"status"`
}

// NewTicketPayload flattens a ticket; missing values render as "—".
func NewTicketPayload(t domain.Ticket) TicketPayload {
	p := TicketPayload{
		ID:         t.ID,
		Sentiment:  string(domain.SentimentNeutral),
		Category:   string(domain.CategoryOther),
		FullName:   orDash(t.FullName),
		Company:    orDash(t.Company),
		Email:      orDash(t.Email),
		Phone:      orDash(t.Phone),
		DeviceType: orDash(t.DeviceType),
		DeviceSN:   t.DeviceSerials,
		Summary:    orDash(t.Summary),
		Status:     string(t.Status),
	}
	if t.Sentiment != nil {
		p.Sentiment = string(*t.Sentiment)
	}
	if t.Category != nil {
		p.Category = string(*t.Category)
	}
	if p.DeviceSN == nil {
		p.DeviceSN = []string{}
	}
	return p
}

func orDash(v *string) string {
	if v == nil || *v == "" {
		return "—"
	}
	return *v
}
