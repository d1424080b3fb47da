package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/eris-support/support-desk/internal/api/dto"
	"github.com/eris-support/support-desk/internal/auth"
	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/service"
	apperrors "github.com/eris-support/support-desk/pkg/util"
)

// Authenticator issues sessions and manages operator accounts.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Register(ctx context.Context, actor *domain.User, input service.RegisterInput) (*domain.User, error)
	Me(ctx context.Context, id int64) (*domain.User, error)
}

// AuthHandler exposes login, registration and profile endpoints.
type AuthHandler struct {
	service Authenticator
}

// NewAuthHandler constructs handler.
func NewAuthHandler(svc Authenticator) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Login POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	session, err := h.service.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresAt:   session.ExpiresAt,
		User:        dto.NewUserResponse(session.User),
	}})
}

// Register POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	operator, _ := auth.OperatorFromContext(c)
	user, err := h.service.Register(c.UserContext(), operator, service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		Role:        req.Role,
		TelegramIDs: req.TelegramIDs,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Me GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	operator, ok := auth.OperatorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	user, err := h.service.Me(c.UserContext(), operator.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}
