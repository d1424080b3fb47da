package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/eris-support/support-desk/internal/api/http"
	"github.com/eris-support/support-desk/internal/api/http/handlers"
	"github.com/eris-support/support-desk/internal/auth"
	"github.com/eris-support/support-desk/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the mail poller",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.wire(ctx); err != nil {
		return err
	}
	logger := a.logger

	var (
		poller *worker.Poller
		status handlers.PollerStatus
		wg     sync.WaitGroup
	)
	if a.cfg.Poller.Enabled {
		poller = worker.NewPoller(a.ingestion, a.cfg.Poller.Interval(), a.redis, a.metrics, logger)
		status = poller
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	} else {
		logger.Info("mail poller disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:               a.cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           a.cfg.App.RequestTimeout() + 5*time.Second,
	})
	httptransport.RegisterMiddlewares(app, logger, a.metrics, a.cfg.App.RequestTimeout(), a.cfg.App.CORSOrigins)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(a.cfg.App.Name, a.cfg.App.Version, a.postgres, a.redis, status),
		Auth:           handlers.NewAuthHandler(a.auth),
		Tickets:        handlers.NewTicketsHandler(a.tickets),
		Bot:            handlers.NewBotHandler(a.bot, a.cfg.Bot.Secret),
		AuthMiddleware: auth.NewAuthMiddleware(a.tokens, a.users),
		Metrics:        a.metrics,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", a.cfg.App.Addr()))
		listenErr <- app.Listen(a.cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-listenErr:
		stop()
	}

	if shutdownErr := app.ShutdownWithTimeout(10 * time.Second); shutdownErr != nil {
		logger.Warn("http shutdown", zap.Error(shutdownErr))
	}
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
