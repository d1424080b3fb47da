package dto

import "github.com/eris-support/support-desk/internal/domain"

// AllowedUsersResponse lists chat ids the bot may talk to.
type AllowedUsersResponse struct {
	Users  []int64 `json:"users"`
	Admins []int64 `json:"admins"`
}

// ContactsResponse is the customer contact card for a ticket.
type ContactsResponse struct {
	FullName      *string  `json:"full_name"`
	Email         *string  `json:"email"`
	Phone         *string  `json:"phone"`
	Company       *string  `json:"company"`
	DeviceSerials []string `json:"device_serials"`
	DeviceType    *string  `json:"device_type"`
}

// NewContactsResponse maps ticket contact fields.
func NewContactsResponse(t *domain.Ticket) ContactsResponse {
	serials := t.DeviceSerials
	if serials == nil {
		serials = []string{}
	}
	return ContactsResponse{
		FullName:      t.FullName,
		Email:         t.Email,
		Phone:         t.Phone,
		Company:       t.Company,
		DeviceSerials: serials,
		DeviceType:    t.DeviceType,
	}
}

// GeneratedAnswerResponse carries the ticket's response text.
type GeneratedAnswerResponse struct {
	AIResponse string `json:"ai_response"`
}
