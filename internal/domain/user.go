package domain

import "time"

// UserRole enumerates operator roles.
type UserRole string

const (
	UserRoleOperator UserRole = "operator"
	UserRoleAdmin    UserRole = "admin"
)

// User is a support operator with access to the ticket desk.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FullName     string
	Role         UserRole
	TelegramIDs  []int64
	CreatedAt    time.Time
}

// IsAdmin reports whether the operator has administrative rights.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}
