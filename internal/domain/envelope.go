package domain

import "time"

// Envelope is the decoded form of one inbound email.
type Envelope struct {
	UID         uint32
	MessageID   string
	Subject     string
	FromHeader  string
	FromName    string
	FromAddress string
	Body        string
	ReceivedAt  time.Time
	TicketRef   *int64
}

// HasTicketRef reports whether the subject carried a back-reference.
func (e Envelope) HasTicketRef() bool {
	return e.TicketRef != nil
}
