package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/config"
	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/observability"
)

var errNotConfigured = errors.New("ai api key not configured")

// Analysis is the normalized result of classifying one ticket text.
type Analysis struct {
	Sentiment     domain.Sentiment
	Category      domain.Category
	FullName      *string
	Company       *string
	Phone         *string
	DeviceSerials []string
	DeviceType    *string
	Summary       *string
	DraftResponse string
	Confidence    float64
}

// FallbackAnalysis is returned whenever the completion service cannot produce
// a valid result.
func FallbackAnalysis() Analysis {
	return Analysis{
		Sentiment:     domain.SentimentNeutral,
		Category:      domain.CategoryOther,
		DeviceSerials: []string{},
		DraftResponse: FallbackDraft,
		Confidence:    0,
	}
}

// Enrichment converts the analysis into ticket fields.
func (a Analysis) Enrichment() domain.Enrichment {
	return domain.Enrichment{
		Sentiment:     a.Sentiment,
		Category:      a.Category,
		FullName:      a.FullName,
		Company:       a.Company,
		Phone:         a.Phone,
		DeviceSerials: a.DeviceSerials,
		DeviceType:    a.DeviceType,
		Summary:       a.Summary,
		DraftResponse: a.DraftResponse,
	}
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg        config.AIConfig
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewClient builds a Client. metrics may be nil.
func NewClient(cfg config.AIConfig, logger *zap.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger.Named("ai"),
		metrics:    metrics,
	}
}

// Analyze classifies text and drafts a reply. It never fails: any error is
// logged and replaced by FallbackAnalysis.
func (c *Client) Analyze(ctx context.Context, text string) Analysis {
	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: analyzeSystemPrompt},
		{Role: "user", Content: text},
	}, true)
	if err == nil {
		var analysis Analysis
		if analysis, err = decodeAnalysis(content); err == nil {
			return analysis
		}
	}

	c.logger.Error("ticket analysis failed, using fallback", zap.Error(err))
	c.metrics.RecordAIFallback("analyze")
	return FallbackAnalysis()
}

// GenerateReply continues the conversation about a ticket. ticketContext is
// the original customer text; history is the chat in chronological order.
func (c *Client) GenerateReply(ctx context.Context, ticketContext string, history []domain.ChatMessage) string {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages,
		chatMessage{Role: "system", Content: replySystemPrompt},
		chatMessage{Role: "system", Content: ticketContextPrefix + ticketContext},
	)
	for _, msg := range history {
		role := "user"
		if msg.Role == domain.ChatRoleBot {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: msg.Text})
	}

	reply, err := c.complete(ctx, messages, false)
	if err == nil {
		if reply = strings.TrimSpace(reply); reply != "" {
			return reply
		}
		err = errors.New("empty completion")
	}

	c.logger.Error("reply generation failed", zap.Error(err))
	c.metrics.RecordAIFallback("reply")
	return UnavailableReply
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, messages []chatMessage, jsonMode bool) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errNotConfigured
	}

	reqBody := completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion api error %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
