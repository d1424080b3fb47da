package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/ai"
	"github.com/eris-support/support-desk/internal/auth"
	"github.com/eris-support/support-desk/internal/config"
	"github.com/eris-support/support-desk/internal/events"
	"github.com/eris-support/support-desk/internal/mail"
	"github.com/eris-support/support-desk/internal/notify"
	"github.com/eris-support/support-desk/internal/observability"
	"github.com/eris-support/support-desk/internal/persistence"
	"github.com/eris-support/support-desk/internal/repository"
	"github.com/eris-support/support-desk/internal/service"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	postgres *persistence.Postgres
	redis    *persistence.Redis
	stream   *notify.EventStream

	users     repository.UserRepository
	tokens    *auth.TokenManager
	auth      *service.AuthService
	tickets   *service.TicketService
	bot       *service.BotService
	ingestion *service.IngestionService
}

// bootstrap loads configuration and connects to the database. Callers must
// call close when done.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.postgres = pg
	if pg.PoolHandle() == nil {
		a.close()
		return nil, errors.New("POSTGRES_DSN is required")
	}
	return a, nil
}

// wire builds repositories, clients and services.
func (a *app) wire(ctx context.Context) error {
	if a.cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, a.postgres.PoolHandle(), a.logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	a.redis = persistence.NewRedis(a.cfg.Redis, a.logger)

	pool := a.postgres.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	chatRepo := repository.NewChatMessageRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	a.users = repository.NewUserRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	a.stream = notify.NewEventStream(a.cfg.Kafka, a.logger)
	var stream service.EventPublisher
	if a.stream.Enabled() {
		stream = a.stream
	}
	var bot service.TicketNotifier
	if webhook := notify.NewBotWebhook(a.cfg.Bot, a.logger); webhook.Enabled() {
		bot = webhook
	}
	service.NewNotificationService(dispatcher, bot, stream, a.logger).RegisterHandlers()

	aiClient := ai.NewClient(a.cfg.AI, a.logger, a.metrics)
	sender := mail.NewSender(a.cfg.Mail, a.logger, a.metrics)

	a.tokens = auth.NewTokenManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.AccessTokenTTLMinutes)
	a.auth = service.NewAuthService(a.cfg.Auth, a.users, a.tokens, a.logger)
	a.tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		ChatRepo:    chatRepo,
		HistoryRepo: historyRepo,
		Sender:      sender,
		Replier:     aiClient,
		Dispatcher:  dispatcher,
		Logger:      a.logger,
	})
	a.bot = service.NewBotService(a.users, a.tickets)
	a.ingestion = service.NewIngestionService(service.IngestionDependencies{
		Source:     mail.NewFetcher(a.cfg.Mail, a.logger),
		TicketRepo: ticketRepo,
		ChatRepo:   chatRepo,
		Analyzer:   aiClient,
		Sender:     sender,
		Claimer:    a.redis,
		DedupeTTL:  a.cfg.Mail.DedupeTTL(),
		Dispatcher: dispatcher,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
	return nil
}

// close releases whatever was opened so far; it is safe after a partial
// bootstrap or wire.
func (a *app) close() {
	if err := a.stream.Close(); err != nil {
		a.logger.Warn("close event stream", zap.Error(err))
	}
	a.redis.Close()
	a.postgres.Close()
	_ = a.logger.Sync()
}
