package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/eris-support/support-desk/internal/api/http/handlers"
	"github.com/eris-support/support-desk/internal/auth"
	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Bot            *handlers.BotHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")
	api.Post("/auth/login", cfg.Auth.Login)

	bot := api.Group("/telegram", cfg.Bot.RequireSecret)
	bot.Get("/allowed-users", cfg.Bot.AllowedUsers)
	bot.Get("/tickets/:id/contacts", cfg.Bot.Contacts)
	bot.Get("/tickets/:id/generated-answer", cfg.Bot.GeneratedAnswer)

	protected := api.Group("", cfg.AuthMiddleware.Handle, auth.RequireRole())
	protected.Get("/auth/me", cfg.Auth.Me)
	protected.Post("/auth/register", auth.RequireRole(domain.UserRoleAdmin), cfg.Auth.Register)

	protected.Get("/stats", cfg.Tickets.Stats)
	tickets := protected.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/send", cfg.Tickets.SendResponse)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Get("/:id/chat", cfg.Tickets.ListChat)
	tickets.Post("/:id/chat", cfg.Tickets.AddChatMessage)
	tickets.Post("/:id/chat/generate", cfg.Tickets.GenerateReply)
}
