package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eris-support/support-desk/internal/ai"
	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/events"
	"github.com/eris-support/support-desk/internal/repository"
)

type memTicketRepo struct {
	mu      sync.Mutex
	nextID  int64
	tickets map[int64]domain.Ticket
	history []domain.TicketHistory

	createErr error
	enrichErr error
	updateErr error

	// afterGet runs after every GetByID, outside the lock.
	afterGet func()
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: map[int64]domain.Ticket{}}
}

// seed stores a ticket with a fixed id.
func (r *memTicketRepo) seed(t domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.ID] = t
	if t.ID > r.nextID {
		r.nextID = t.ID
	}
}

func (r *memTicketRepo) get(id int64) (domain.Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	return t, ok
}

func (r *memTicketRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickets)
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ticket.ID = r.nextID
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	r.mu.Lock()
	t, ok := r.tickets[id]
	r.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.afterGet != nil {
		r.afterGet()
	}
	return &t, nil
}

func (r *memTicketRepo) ApplyEnrichment(_ context.Context, ticket *domain.Ticket) error {
	if r.enrichErr != nil {
		return r.enrichErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return repository.ErrNotFound
	}
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) Update(_ context.Context, ticket *domain.Ticket, expected domain.TicketStatus, history ...domain.TicketHistory) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrStatusConflict
	}
	stored.Status = ticket.Status
	stored.AIResponse = ticket.AIResponse
	stored.AssignedTo = ticket.AssignedTo
	r.tickets[ticket.ID] = stored
	r.appendHistory(history)
	return nil
}

func (r *memTicketRepo) TransitionStatus(_ context.Context, id int64, from, to domain.TicketStatus, history ...domain.TicketHistory) (time.Time, error) {
	if r.updateErr != nil {
		return time.Time{}, r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return time.Time{}, repository.ErrNotFound
	}
	if stored.Status != from {
		return time.Time{}, repository.ErrStatusConflict
	}
	stored.Status = to
	stored.UpdatedAt = time.Now()
	r.tickets[id] = stored
	r.appendHistory(history)
	return stored.UpdatedAt, nil
}

// setStatus changes a stored status directly, standing in for another writer.
func (r *memTicketRepo) setStatus(id int64, status domain.TicketStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tickets[id]
	t.Status = status
	r.tickets[id] = t
}

func (r *memTicketRepo) appendHistory(history []domain.TicketHistory) {
	for _, h := range history {
		h.ID = int64(len(r.history) + 1)
		r.history = append(r.history, h)
	}
}

func (r *memTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Category != nil && (t.Category == nil || *t.Category != *filter.Category) {
			continue
		}
		if filter.Sentiment != nil && (t.Sentiment == nil || *t.Sentiment != *filter.Sentiment) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateReceived.After(out[j].DateReceived) })
	return out, nil
}

func (r *memTicketRepo) Stats(_ context.Context) (*repository.TicketStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repository.TicketStats{
		ByStatus:    map[string]int64{},
		BySentiment: map[string]int64{},
		ByCategory:  map[string]int64{},
	}
	for _, t := range r.tickets {
		stats.Total++
		stats.ByStatus[string(t.Status)]++
		if t.Sentiment != nil {
			stats.BySentiment[string(*t.Sentiment)]++
		}
		if t.Category != nil {
			stats.ByCategory[string(*t.Category)]++
		}
	}
	return stats, nil
}

type memHistoryRepo struct {
	tickets *memTicketRepo
}

func (r memHistoryRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	r.tickets.mu.Lock()
	defer r.tickets.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range r.tickets.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memChatRepo struct {
	mu     sync.Mutex
	nextID int64
	msgs   []domain.ChatMessage
	err    error

	// afterAppend runs once a message is stored, outside the lock.
	afterAppend func()
}

func (r *memChatRepo) Append(_ context.Context, msgs ...*domain.ChatMessage) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	for _, m := range msgs {
		r.nextID++
		m.ID = r.nextID
		m.CreatedAt = time.Now()
		r.msgs = append(r.msgs, *m)
	}
	r.mu.Unlock()
	if r.afterAppend != nil {
		r.afterAppend()
	}
	return nil
}

func (r *memChatRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range r.msgs {
		if m.TicketID == ticketID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memChatRepo) forTicket(id int64) []domain.ChatMessage {
	out, _ := r.ListByTicket(context.Background(), id)
	return out
}

type memUserRepo struct {
	mu    sync.Mutex
	users []domain.User
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = int64(len(r.users) + 1)
	user.CreatedAt = time.Now()
	r.users = append(r.users, *user)
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) ListWithTelegram(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		if len(u.TelegramIDs) > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    []string
	analysis ai.Analysis
	panicMsg string
}

func (a *fakeAnalyzer) Analyze(_ context.Context, text string) ai.Analysis {
	a.mu.Lock()
	a.calls = append(a.calls, text)
	a.mu.Unlock()
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	return a.analysis
}

type sentMail struct {
	To       string
	Subject  string
	Body     string
	TicketID *int64
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string, ticketID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{To: to, Subject: subject, Body: body, TicketID: ticketID})
	return nil
}

type fakeClaimer struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
	err      error
}

func newFakeClaimer() *fakeClaimer {
	return &fakeClaimer{claimed: map[string]bool{}}
}

func (c *fakeClaimer) ClaimMessage(_ context.Context, id string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.claimed[id] {
		return false, nil
	}
	c.claimed[id] = true
	return true, nil
}

func (c *fakeClaimer) ReleaseMessage(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimed, id)
	c.released = append(c.released, id)
	return nil
}

type staticSource struct {
	envelopes []domain.Envelope
}

func (s staticSource) FetchUnseen(context.Context) []domain.Envelope {
	return s.envelopes
}

type fakeReplier struct {
	reply   string
	context string
	history []domain.ChatMessage
}

func (r *fakeReplier) GenerateReply(_ context.Context, ticketContext string, history []domain.ChatMessage) string {
	r.context = ticketContext
	r.history = history
	return r.reply
}

// recorder collects every published event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func newRecordingDispatcher() (events.Dispatcher, *recorder) {
	d := events.NewInMemoryDispatcher()
	rec := &recorder{}
	d.SubscribeAll(func(_ context.Context, e events.Event) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, e)
		return nil
	})
	return d, rec
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }
