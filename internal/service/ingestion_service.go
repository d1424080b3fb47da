package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/ai"
	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/events"
	"github.com/eris-support/support-desk/internal/mail"
	"github.com/eris-support/support-desk/internal/observability"
	"github.com/eris-support/support-desk/internal/repository"
)

// Outcome describes what happened to one inbound envelope.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeAppended  Outcome = "appended"
	OutcomeDropped   Outcome = "dropped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// EnvelopeSource yields unseen inbound mail.
type EnvelopeSource interface {
	FetchUnseen(ctx context.Context) []domain.Envelope
}

// Analyzer enriches ticket text. Implementations never fail.
type Analyzer interface {
	Analyze(ctx context.Context, text string) ai.Analysis
}

// ReplySender delivers outbound mail.
type ReplySender interface {
	Send(ctx context.Context, to, subject, body string, ticketID *int64) error
}

// MessageClaimer remembers processed Message-IDs.
type MessageClaimer interface {
	ClaimMessage(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	ReleaseMessage(ctx context.Context, messageID string) error
}

// PassStats counts envelope outcomes for one pass.
type PassStats struct {
	Fetched    int
	Created    int
	Appended   int
	Dropped    int
	Duplicates int
	Failed     int
}

func (p *PassStats) add(outcome Outcome) {
	switch outcome {
	case OutcomeCreated:
		p.Created++
	case OutcomeAppended:
		p.Appended++
	case OutcomeDropped:
		p.Dropped++
	case OutcomeDuplicate:
		p.Duplicates++
	default:
		p.Failed++
	}
}

// IngestionDependencies bundles collaborators for the ingestion service.
type IngestionDependencies struct {
	Source     EnvelopeSource
	TicketRepo repository.TicketRepository
	ChatRepo   repository.ChatMessageRepository
	Analyzer   Analyzer
	Sender     ReplySender
	Claimer    MessageClaimer
	DedupeTTL  time.Duration
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// IngestionService turns inbound mail into tickets and chat messages.
type IngestionService struct {
	source     EnvelopeSource
	tickets    repository.TicketRepository
	chat       repository.ChatMessageRepository
	analyzer   Analyzer
	sender     ReplySender
	claimer    MessageClaimer
	dedupeTTL  time.Duration
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	status     statusChanger

	// mu serializes passes so envelopes touching the same ticket never interleave.
	mu sync.Mutex
}

// NewIngestionService constructs the service.
func NewIngestionService(deps IngestionDependencies) *IngestionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ingestion")
	return &IngestionService{
		source:     deps.Source,
		tickets:    deps.TicketRepo,
		chat:       deps.ChatRepo,
		analyzer:   deps.Analyzer,
		sender:     deps.Sender,
		claimer:    deps.Claimer,
		dedupeTTL:  deps.DedupeTTL,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		status:     statusChanger{tickets: deps.TicketRepo, dispatcher: deps.Dispatcher, logger: logger},
	}
}

// RunPass fetches unseen mail and processes it one envelope at a time. A
// failing envelope is logged and does not affect the rest of the batch.
func (s *IngestionService) RunPass(ctx context.Context) PassStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	envelopes := s.source.FetchUnseen(ctx)
	stats := PassStats{Fetched: len(envelopes)}
	for _, env := range envelopes {
		if ctx.Err() != nil {
			break
		}
		stats.add(s.safeProcess(ctx, env))
	}

	if stats.Fetched > 0 {
		s.logger.Info("ingestion pass finished",
			zap.Int("fetched", stats.Fetched),
			zap.Int("created", stats.Created),
			zap.Int("appended", stats.Appended),
			zap.Int("dropped", stats.Dropped),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats
}

// ProcessEnvelope handles a single envelope outside of a pass.
func (s *IngestionService) ProcessEnvelope(ctx context.Context, env domain.Envelope) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process(ctx, env)
}

func (s *IngestionService) safeProcess(ctx context.Context, env domain.Envelope) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing envelope",
				zap.Uint32("uid", env.UID),
				zap.String("message_id", env.MessageID),
				zap.Any("panic", r),
			)
			s.metrics.RecordEnvelope(string(OutcomeFailed))
			outcome = OutcomeFailed
		}
	}()

	outcome, err := s.process(ctx, env)
	if err != nil {
		s.logger.Error("envelope processing failed",
			zap.Uint32("uid", env.UID),
			zap.String("message_id", env.MessageID),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
	return outcome
}

func (s *IngestionService) process(ctx context.Context, env domain.Envelope) (Outcome, error) {
	claimed := false
	if s.claimer != nil && env.MessageID != "" && s.dedupeTTL > 0 {
		ok, err := s.claimer.ClaimMessage(ctx, env.MessageID, s.dedupeTTL)
		switch {
		case err != nil:
			s.logger.Warn("dedupe store unavailable, processing anyway",
				zap.String("message_id", env.MessageID),
				zap.Error(err),
			)
		case !ok:
			s.logger.Info("duplicate envelope skipped", zap.String("message_id", env.MessageID))
			s.metrics.RecordEnvelope(string(OutcomeDuplicate))
			return OutcomeDuplicate, nil
		default:
			claimed = true
		}
	}

	var (
		outcome Outcome
		err     error
	)
	if env.HasTicketRef() {
		outcome, err = s.appendReply(ctx, env)
	} else {
		outcome, err = s.createTicket(ctx, env)
	}
	if err != nil {
		outcome = OutcomeFailed
		if claimed {
			if relErr := s.claimer.ReleaseMessage(ctx, env.MessageID); relErr != nil {
				s.logger.Warn("release dedupe claim failed", zap.String("message_id", env.MessageID), zap.Error(relErr))
			}
		}
	}
	s.metrics.RecordEnvelope(string(outcome))
	return outcome, err
}

// appendReply threads a customer reply onto an existing ticket. Replies to
// unknown or closed tickets are discarded; tickets are never reopened.
func (s *IngestionService) appendReply(ctx context.Context, env domain.Envelope) (Outcome, error) {
	ticketID := *env.TicketRef
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("reply to unknown ticket dropped", zap.Int64("ticket_id", ticketID))
		return OutcomeDropped, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load ticket %d: %w", ticketID, err)
	}
	if ticket.IsClosed() {
		s.logger.Debug("reply to closed ticket dropped", zap.Int64("ticket_id", ticketID))
		return OutcomeDropped, nil
	}

	msg := &domain.ChatMessage{TicketID: ticket.ID, Role: domain.ChatRoleUser, Text: env.Body}
	if err := s.chat.Append(ctx, msg); err != nil {
		return OutcomeFailed, fmt.Errorf("append reply to ticket %d: %w", ticket.ID, err)
	}
	customer := events.Actor{Type: domain.ActorTypeCustomer}
	publish(ctx, s.dispatcher, s.logger, chatAddedEvent(msg, customer))

	if RequestsOperator(env.Body) {
		if err := s.status.change(ctx, ticket, domain.TicketStatusNeedsOperator, customer, "customer requested operator"); err != nil {
			return OutcomeFailed, err
		}
	}

	s.logger.Info("reply appended", zap.Int64("ticket_id", ticket.ID), zap.String("status", string(ticket.Status)))
	return OutcomeAppended, nil
}

// createTicket opens a ticket for a new conversation, enriches it and sends the
// automatic first reply.
func (s *IngestionService) createTicket(ctx context.Context, env domain.Envelope) (Outcome, error) {
	from := env.FromHeader
	if from == "" {
		from = env.FromAddress
	}
	original := FormatOriginal(from, env.Subject, env.Body)

	ticket := &domain.Ticket{
		DateReceived:  env.ReceivedAt,
		Email:         nonEmpty(env.FromAddress),
		OriginalEmail: &original,
		DeviceSerials: []string{},
		Status:        domain.TicketStatusOpen,
	}
	if ticket.DateReceived.IsZero() {
		ticket.DateReceived = time.Now().UTC()
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return OutcomeFailed, fmt.Errorf("create ticket: %w", err)
	}

	// No transaction is open while the completion service is called.
	analysis := s.analyzer.Analyze(ctx, original)
	analysis.Enrichment().Apply(ticket)
	if err := s.tickets.ApplyEnrichment(ctx, ticket); err != nil {
		return OutcomeFailed, fmt.Errorf("enrich ticket %d: %w", ticket.ID, err)
	}

	botText := analysis.DraftResponse + OperatorHint
	userMsg := &domain.ChatMessage{TicketID: ticket.ID, Role: domain.ChatRoleUser, Text: original}
	botMsg := &domain.ChatMessage{TicketID: ticket.ID, Role: domain.ChatRoleBot, Text: botText}
	if err := s.chat.Append(ctx, userMsg, botMsg); err != nil {
		return OutcomeFailed, fmt.Errorf("append chat to ticket %d: %w", ticket.ID, err)
	}

	if ticket.Email != nil && s.sender != nil {
		err := s.sender.Send(ctx, *ticket.Email, mail.ReplySubject(env.Subject), botText, &ticket.ID)
		switch {
		case errors.Is(err, mail.ErrNotConfigured):
			s.logger.Warn("smtp not configured, automatic reply skipped", zap.Int64("ticket_id", ticket.ID))
		case err != nil:
			s.logger.Error("automatic reply failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	publish(ctx, s.dispatcher, s.logger, events.NewEvent(events.EventTicketCreated, ticket.ID, events.SystemActor,
		events.TicketCreatedPayload{Ticket: *ticket}))

	s.logger.Info("ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("category", string(analysis.Category)),
		zap.String("sentiment", string(analysis.Sentiment)),
		zap.Float64("confidence", analysis.Confidence),
	)
	return OutcomeCreated, nil
}

// FormatOriginal renders the stored original text of an inbound message.
func FormatOriginal(from, subject, body string) string {
	return fmt.Sprintf("От: %s\nТема: %s\n\n%s", from, subject, body)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
