package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/api/http/handlers"
	"github.com/eris-support/support-desk/internal/auth"
	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/mail"
	"github.com/eris-support/support-desk/internal/observability"
	"github.com/eris-support/support-desk/internal/repository"
	"github.com/eris-support/support-desk/internal/service"
	"github.com/eris-support/support-desk/internal/worker"
	apperrors "github.com/eris-support/support-desk/pkg/util"
)

type stubUsers map[int64]*domain.User

func (s stubUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type stubTickets struct {
	ticket  *domain.Ticket
	sendErr error
	gotList service.TicketListFilter
	gotRole domain.ChatRole
	actor   *domain.User
}

func (s *stubTickets) List(_ context.Context, f service.TicketListFilter) ([]domain.Ticket, error) {
	s.gotList = f
	if f.Status != nil && !f.Status.IsValid() {
		return nil, apperrors.NewValidationError("invalid filter", nil)
	}
	return []domain.Ticket{*s.ticket}, nil
}

func (s *stubTickets) Create(_ context.Context, actor *domain.User, in service.TicketCreateInput) (*domain.Ticket, error) {
	s.actor = actor
	t := *s.ticket
	t.Email = in.Email
	return &t, nil
}

func (s *stubTickets) Get(_ context.Context, id int64) (*domain.Ticket, error) {
	if id != s.ticket.ID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return s.ticket, nil
}

func (s *stubTickets) Update(_ context.Context, actor *domain.User, id int64, p service.TicketPatch) (*domain.Ticket, error) {
	t, err := s.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	return t, nil
}

func (s *stubTickets) SendResponse(_ context.Context, actor *domain.User, id int64) (*domain.Ticket, error) {
	if s.sendErr != nil {
		if errors.Is(s.sendErr, mail.ErrNotConfigured) {
			return nil, apperrors.NewServiceUnavailable("service unavailable", s.sendErr)
		}
		return nil, apperrors.NewSendFailed(s.sendErr)
	}
	s.ticket.Status = domain.TicketStatusClosed
	return s.ticket, nil
}

func (s *stubTickets) Chat(_ context.Context, id int64) ([]domain.ChatMessage, error) {
	return []domain.ChatMessage{{ID: 1, TicketID: id, Role: domain.ChatRoleUser, Text: "hi"}}, nil
}

func (s *stubTickets) AddChatMessage(_ context.Context, actor *domain.User, id int64, role domain.ChatRole, text string) (*domain.ChatMessage, error) {
	s.gotRole = role
	return &domain.ChatMessage{ID: 2, TicketID: id, Role: domain.ChatRoleUser, Text: text}, nil
}

func (s *stubTickets) GenerateReply(_ context.Context, actor *domain.User, id int64) (*domain.ChatMessage, error) {
	return &domain.ChatMessage{ID: 3, TicketID: id, Role: domain.ChatRoleBot, Text: "ok"}, nil
}

func (s *stubTickets) History(context.Context, int64) ([]domain.TicketHistory, error) {
	return nil, nil
}

func (s *stubTickets) Stats(context.Context) (*repository.TicketStats, error) {
	return &repository.TicketStats{Total: 1, ByStatus: map[string]int64{"open": 1}}, nil
}

type stubAuth struct{}

func (stubAuth) Login(_ context.Context, email, password string) (*service.Session, error) {
	if password != "secret-pass" {
		return nil, apperrors.NewUnauthorized("Неверный email или пароль")
	}
	return &service.Session{User: &domain.User{ID: 1, Email: email}, Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (stubAuth) Register(_ context.Context, actor *domain.User, in service.RegisterInput) (*domain.User, error) {
	return &domain.User{ID: 9, Email: in.Email, Role: domain.UserRoleOperator}, nil
}

func (stubAuth) Me(_ context.Context, id int64) (*domain.User, error) {
	return &domain.User{ID: id, Email: "op@example.com"}, nil
}

type stubBot struct{}

func (stubBot) AllowedUsers(context.Context) (*service.AllowedUsers, error) {
	return &service.AllowedUsers{Users: []int64{100, 200}, Admins: []int64{100}}, nil
}

func (stubBot) Contacts(_ context.Context, id int64) (*domain.Ticket, error) {
	name := "Иван"
	return &domain.Ticket{ID: id, FullName: &name}, nil
}

func (stubBot) GeneratedAnswer(context.Context, int64) (string, error) {
	return service.AnswerNotReady, nil
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	tickets *stubTickets
}

func newTestServer(t *testing.T, poller handlers.PollerStatus, pgErr error) *testServer {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", 60)
	users := stubUsers{
		1: {ID: 1, Email: "op@example.com", Role: domain.UserRoleOperator},
		2: {ID: 2, Email: "admin@example.com", Role: domain.UserRoleAdmin},
	}
	tickets := &stubTickets{ticket: &domain.Ticket{ID: 42, Status: domain.TicketStatusOpen}}

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), time.Second, "")
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", okPinger{err: pgErr}, okPinger{}, poller),
		Auth:           handlers.NewAuthHandler(stubAuth{}),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Bot:            handlers.NewBotHandler(stubBot{}, "bot-secret"),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, users),
		Metrics:        observability.NewMetrics(),
	})
	return &testServer{app: app, tokens: tokens, tickets: tickets}
}

func (s *testServer) token(t *testing.T, user *domain.User) string {
	t.Helper()
	tok, _, err := s.tokens.GenerateToken(user)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, body, token string, headers ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", body)
	return e["code"].(string)
}

func TestTicketRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t, nil, nil)

	status, body := s.do(t, http.MethodGet, "/api/tickets", "", "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHORIZED", errorCode(t, body))

	status, _ = s.do(t, http.MethodGet, "/api/tickets", "", "garbage")
	require.Equal(t, http.StatusUnauthorized, status)

	ghost := s.token(t, &domain.User{ID: 77})
	status, _ = s.do(t, http.MethodGet, "/api/tickets", "", ghost)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestListTicketsPassesFilters(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tok := s.token(t, &domain.User{ID: 1})

	status, body := s.do(t, http.MethodGet, "/api/tickets?status=open&category=malfunction&limit=5", "", tok)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["data"], 1)
	require.Equal(t, domain.TicketStatusOpen, *s.tickets.gotList.Status)
	require.Equal(t, domain.CategoryMalfunction, *s.tickets.gotList.Category)
	require.Nil(t, s.tickets.gotList.Sentiment)
	require.Equal(t, 5, s.tickets.gotList.Limit)

	status, body = s.do(t, http.MethodGet, "/api/tickets?status=archived", "", tok)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
}

func TestGetTicketNotFoundAndBadID(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tok := s.token(t, &domain.User{ID: 1})

	status, body := s.do(t, http.MethodGet, "/api/tickets/7", "", tok)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", errorCode(t, body))

	status, _ = s.do(t, http.MethodGet, "/api/tickets/abc", "", tok)
	require.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodGet, "/api/tickets/42", "", tok)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	require.EqualValues(t, 42, data["id"])
	require.Equal(t, []any{}, data["device_serials"])
}

func TestSendResponseErrorSignals(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tok := s.token(t, &domain.User{ID: 1})

	s.tickets.sendErr = mail.ErrNotConfigured
	status, body := s.do(t, http.MethodPost, "/api/tickets/42/send", "", tok)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "SERVICE_UNAVAILABLE", errorCode(t, body))

	s.tickets.sendErr = errors.New("535 auth failed")
	status, body = s.do(t, http.MethodPost, "/api/tickets/42/send", "", tok)
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "SEND_FAILED", errorCode(t, body))

	s.tickets.sendErr = nil
	status, body = s.do(t, http.MethodPost, "/api/tickets/42/send", "", tok)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "closed", body["data"].(map[string]any)["status"])
}

func TestChatEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tok := s.token(t, &domain.User{ID: 1})

	status, body := s.do(t, http.MethodPost, "/api/tickets/42/chat", `{"text":"вызвать оператора"}`, tok)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "вызвать оператора", body["data"].(map[string]any)["text"])
	require.Equal(t, domain.ChatRole(""), s.tickets.gotRole)

	status, body = s.do(t, http.MethodGet, "/api/tickets/42/chat", "", tok)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["data"], 1)

	status, body = s.do(t, http.MethodPost, "/api/tickets/42/chat/generate", "", tok)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "bot", body["data"].(map[string]any)["role"])
}

func TestRegisterIsAdminOnly(t *testing.T) {
	s := newTestServer(t, nil, nil)
	payload := `{"email":"new@example.com","password":"long enough"}`

	status, body := s.do(t, http.MethodPost, "/api/auth/register", payload, s.token(t, &domain.User{ID: 1}))
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "FORBIDDEN", errorCode(t, body))

	status, _ = s.do(t, http.MethodPost, "/api/auth/register", payload, s.token(t, &domain.User{ID: 2, Role: domain.UserRoleAdmin}))
	require.Equal(t, http.StatusCreated, status)
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t, nil, nil)

	status, body := s.do(t, http.MethodPost, "/api/auth/login", `{"email":"op@example.com","password":"wrong"}`, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHORIZED", errorCode(t, body))

	status, body = s.do(t, http.MethodPost, "/api/auth/login", `{"email":"op@example.com","password":"secret-pass"}`, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "tok", body["data"].(map[string]any)["access_token"])

	status, body = s.do(t, http.MethodGet, "/api/auth/me", "", s.token(t, &domain.User{ID: 1}))
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["data"].(map[string]any)["id"])
}

func TestBotEndpointsRequireSecret(t *testing.T) {
	s := newTestServer(t, nil, nil)

	status, _ := s.do(t, http.MethodGet, "/api/telegram/allowed-users", "", "")
	require.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodGet, "/api/telegram/allowed-users", "", "", "X-Bot-Secret", "nope")
	require.Equal(t, http.StatusForbidden, status)

	status, body := s.do(t, http.MethodGet, "/api/telegram/allowed-users", "", "", "X-Bot-Secret", "bot-secret")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []any{float64(100), float64(200)}, body["users"])
	require.Equal(t, []any{float64(100)}, body["admins"])

	status, body = s.do(t, http.MethodGet, "/api/telegram/tickets/5/contacts", "", "", "X-Bot-Secret", "bot-secret")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Иван", body["full_name"])

	status, body = s.do(t, http.MethodGet, "/api/telegram/tickets/5/generated-answer", "", "", "X-Bot-Secret", "bot-secret")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, service.AnswerNotReady, body["ai_response"])
}

type stalePoller struct{ stale bool }

func (p stalePoller) State() worker.State { return worker.State{Running: true, Passes: 3} }
func (p stalePoller) Stale() bool         { return p.stale }

func TestReadiness(t *testing.T) {
	s := newTestServer(t, stalePoller{}, nil)
	status, body := s.do(t, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ready", body["status"])

	s = newTestServer(t, stalePoller{stale: true}, nil)
	status, body = s.do(t, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(t, body))

	s = newTestServer(t, nil, errors.New("connection refused"))
	status, _ = s.do(t, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, status)

	status, body = s.do(t, http.MethodGet, "/health/live", "", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alive", body["status"])
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	s := newTestServer(t, nil, nil)
	status, body := s.do(t, http.MethodGet, "/nowhere", "", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", errorCode(t, body))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
