package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/eris-support/support-desk/internal/domain"
	apperrors "github.com/eris-support/support-desk/pkg/util"
)

// RequireRole ensures the operator has one of the allowed roles. With no
// roles given, any authenticated operator passes.
func RequireRole(allowed ...domain.UserRole) fiber.Handler {
	allowedSet := make(map[domain.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		user, ok := OperatorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[user.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
