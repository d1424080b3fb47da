package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/config"
	"github.com/eris-support/support-desk/internal/domain"
)

func completionServer(t *testing.T, status int, content string, inspect func(completionRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if inspect != nil {
			inspect(req)
		}

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(baseURL string) *Client {
	return NewClient(config.AIConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "test-model",
		Temperature: 0.3,
		MaxTokens:   256,
	}, zap.NewNop(), nil)
}

func TestAnalyzeNormalizesResponse(t *testing.T) {
	content := `{
		"sentiment": "NEGATIVE",
		"category": "Malfunction",
		"full_name": "Иван Петров",
		"company": "  ",
		"phone": null,
		"device_serials": [230111222, "230111223", null],
		"device_type": "230 series",
		"summary": "Motors do not start",
		"draft_response": "Здравствуйте! Мы разберёмся.",
		"confidence": 1.7
	}`
	var captured completionRequest
	srv := completionServer(t, http.StatusOK, content, func(req completionRequest) { captured = req })

	got := newTestClient(srv.URL).Analyze(context.Background(), "моторы не запускаются, зав. номер 230111222")

	require.Equal(t, domain.SentimentNegative, got.Sentiment)
	require.Equal(t, domain.CategoryMalfunction, got.Category)
	require.Equal(t, "Иван Петров", *got.FullName)
	require.Nil(t, got.Company)
	require.Nil(t, got.Phone)
	require.Equal(t, []string{"230111222", "230111223"}, got.DeviceSerials)
	require.Equal(t, "230 series", *got.DeviceType)
	require.Equal(t, "Здравствуйте! Мы разберёмся.", got.DraftResponse)
	require.Equal(t, 1.0, got.Confidence)

	require.Equal(t, "test-model", captured.Model)
	require.NotNil(t, captured.ResponseFormat)
	require.Equal(t, "json_object", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 2)
	require.Equal(t, "system", captured.Messages[0].Role)
	require.Contains(t, captured.Messages[1].Content, "230111222")
}

func TestAnalyzeClampsUnknownEnumsAndDefaultsConfidence(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"sentiment":"angry","category":"billing","device_serials":"230111222","draft_response":"ok"}`, nil)

	got := newTestClient(srv.URL).Analyze(context.Background(), "text")

	require.Equal(t, domain.SentimentNeutral, got.Sentiment)
	require.Equal(t, domain.CategoryOther, got.Category)
	require.Empty(t, got.DeviceSerials)
	require.NotNil(t, got.DeviceSerials)
	require.Equal(t, 1.0, got.Confidence)
}

func TestAnalyzeCoercesLooselyTypedFields(t *testing.T) {
	cases := map[string]struct {
		content    string
		sentiment  domain.Sentiment
		category   domain.Category
		confidence float64
	}{
		"string confidence": {
			content:    `{"sentiment":"positive","category":"Calibration","confidence":"0.9","draft_response":"ok"}`,
			sentiment:  domain.SentimentPositive,
			category:   domain.CategoryCalibration,
			confidence: 0.9,
		},
		"non-string enums": {
			content:    `{"sentiment":3,"category":["malfunction"],"confidence":0.4,"draft_response":"ok"}`,
			sentiment:  domain.SentimentNeutral,
			category:   domain.CategoryOther,
			confidence: 0.4,
		},
		"garbage confidence": {
			content:    `{"sentiment":"negative","confidence":{"value":1},"draft_response":"ok"}`,
			sentiment:  domain.SentimentNegative,
			category:   domain.CategoryOther,
			confidence: 1.0,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := completionServer(t, http.StatusOK, tc.content, nil)

			got := newTestClient(srv.URL).Analyze(context.Background(), "text")

			require.Equal(t, "ok", got.DraftResponse)
			require.Equal(t, tc.sentiment, got.Sentiment)
			require.Equal(t, tc.category, got.Category)
			require.InDelta(t, tc.confidence, got.Confidence, 1e-9)
		})
	}
}

func TestAnalyzeFallsBackOnFailures(t *testing.T) {
	cases := map[string]*httptest.Server{
		"non-2xx":       completionServer(t, http.StatusTooManyRequests, `{"draft_response":"x"}`, nil),
		"malformed":     completionServer(t, http.StatusOK, `not json`, nil),
		"schema":        completionServer(t, http.StatusOK, `{"sentiment":"neutral","draft_response":42}`, nil),
		"missing draft": completionServer(t, http.StatusOK, `{"sentiment":"neutral"}`, nil),
	}
	for name, srv := range cases {
		t.Run(name, func(t *testing.T) {
			got := newTestClient(srv.URL).Analyze(context.Background(), "text")
			require.Equal(t, FallbackAnalysis(), got)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		got := newTestClient("http://127.0.0.1:1").Analyze(context.Background(), "text")
		require.Equal(t, FallbackAnalysis(), got)
	})

	t.Run("not configured", func(t *testing.T) {
		c := NewClient(config.AIConfig{BaseURL: "http://127.0.0.1:1"}, zap.NewNop(), nil)
		got := c.Analyze(context.Background(), "text")
		require.Equal(t, domain.SentimentNeutral, got.Sentiment)
		require.Equal(t, domain.CategoryOther, got.Category)
		require.Equal(t, 0.0, got.Confidence)
		require.Equal(t, FallbackDraft, got.DraftResponse)
	})
}

func TestGenerateReplyMapsRoles(t *testing.T) {
	var captured completionRequest
	srv := completionServer(t, http.StatusOK, "  Попробуйте перезапустить прибор.  ", func(req completionRequest) { captured = req })

	history := []domain.ChatMessage{
		{Role: domain.ChatRoleUser, Text: "не работает"},
		{Role: domain.ChatRoleBot, Text: "уточните номер"},
		{Role: domain.ChatRoleUser, Text: "230111222"},
	}
	reply := newTestClient(srv.URL).GenerateReply(context.Background(), "original text", history)

	require.Equal(t, "Попробуйте перезапустить прибор.", reply)
	require.Nil(t, captured.ResponseFormat)
	require.Len(t, captured.Messages, 5)
	require.Contains(t, captured.Messages[1].Content, "original text")
	require.Equal(t, "user", captured.Messages[2].Role)
	require.Equal(t, "assistant", captured.Messages[3].Role)
	require.Equal(t, "user", captured.Messages[4].Role)
	require.Equal(t, "230111222", captured.Messages[4].Content)
}

func TestGenerateReplyFallback(t *testing.T) {
	srv := completionServer(t, http.StatusInternalServerError, "boom", nil)
	require.Equal(t, UnavailableReply, newTestClient(srv.URL).GenerateReply(context.Background(), "ctx", nil))

	empty := completionServer(t, http.StatusOK, "   ", nil)
	require.Equal(t, UnavailableReply, newTestClient(empty.URL).GenerateReply(context.Background(), "ctx", nil))
}

func TestAnalysisEnrichment(t *testing.T) {
	name := "Иван"
	a := Analysis{Sentiment: domain.SentimentPositive, Category: domain.CategoryCalibration, FullName: &name, DraftResponse: "d"}
	e := a.Enrichment()

	ticket := &domain.Ticket{}
	e.Apply(ticket)
	require.Equal(t, domain.SentimentPositive, *ticket.Sentiment)
	require.Equal(t, "d", *ticket.AIResponse)
	require.Equal(t, "Иван", *ticket.FullName)
	require.Equal(t, []string{}, ticket.DeviceSerials)
}
