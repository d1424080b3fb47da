package dto

import (
	"time"

	"github.com/eris-support/support-desk/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest payload.
type RegisterRequest struct {
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	FullName    string          `json:"full_name"`
	Role        domain.UserRole `json:"role"`
	TelegramIDs []int64         `json:"telegram_ids"`
}

// TokenResponse is returned on successful login.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

// UserResponse is the public view of an operator.
type UserResponse struct {
	ID          int64           `json:"id"`
	Email       string          `json:"email"`
	FullName    string          `json:"full_name"`
	Role        domain.UserRole `json:"role"`
	TelegramIDs []int64         `json:"telegram_ids"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewUserResponse maps a domain user without its password hash.
func NewUserResponse(u *domain.User) UserResponse {
	ids := u.TelegramIDs
	if ids == nil {
		ids = []int64{}
	}
	return UserResponse{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role, TelegramIDs: ids, CreatedAt: u.CreatedAt}
}
