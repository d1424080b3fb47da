package domain

import "time"

// ChatRole identifies who authored a chat turn.
type ChatRole string

const (
	ChatRoleUser ChatRole = "user"
	ChatRoleBot  ChatRole = "bot"
)

// IsValid reports whether r is a known role.
func (r ChatRole) IsValid() bool {
	return r == ChatRoleUser || r == ChatRoleBot
}

// ChatMessage is one append-only turn in a ticket's conversation.
type ChatMessage struct {
	ID        int64
	TicketID  int64
	Role      ChatRole
	Text      string
	CreatedAt time.Time
}
