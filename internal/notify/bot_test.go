package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eris-support/support-desk/internal/config"
	"github.com/eris-support/support-desk/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestNotifyTicketPostsCardWithSecret(t *testing.T) {
	var (
		gotSecret string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get(SecretHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sentiment := domain.SentimentNegative
	ticket := domain.Ticket{
		ID:            12,
		Sentiment:     &sentiment,
		FullName:      strPtr("Иван Петров"),
		Email:         strPtr("ivan@example.com"),
		DeviceSerials: []string{"230111222"},
		Status:        domain.TicketStatusOpen,
	}

	hook := NewBotWebhook(config.BotConfig{WebhookURL: srv.URL, Secret: "s3cret"}, nil)
	require.NoError(t, hook.NotifyTicket(context.Background(), NewTicketPayload(ticket)))

	require.Equal(t, "s3cret", gotSecret)
	require.EqualValues(t, 12, gotBody["id"])
	require.Equal(t, "negative", gotBody["sentiment"])
	require.Equal(t, "other", gotBody["category"])
	require.Equal(t, "—", gotBody["company"])
	require.Equal(t, []any{"230111222"}, gotBody["device_sn"])
}

func TestNotifyTicketReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	hook := NewBotWebhook(config.BotConfig{WebhookURL: srv.URL}, nil)
	err := hook.NotifyTicket(context.Background(), TicketPayload{ID: 1})
	require.ErrorContains(t, err, "403")
}

func TestNotifyTicketDisabledWithoutURL(t *testing.T) {
	hook := NewBotWebhook(config.BotConfig{}, nil)
	require.False(t, hook.Enabled())
	require.NoError(t, hook.NotifyTicket(context.Background(), TicketPayload{ID: 1}))
}
