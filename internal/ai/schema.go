package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/eris-support/support-desk/internal/domain"
)

const analysisSchemaJSON = `{
  "type": "object",
  "required": ["draft_response"],
  "properties": {
    "sentiment":      {},
    "category":       {},
    "full_name":      {"type": ["string", "null"]},
    "company":        {"type": ["string", "null"]},
    "phone":          {"type": ["string", "null"]},
    "device_type":    {"type": ["string", "null"]},
    "summary":        {"type": ["string", "null"]},
    "draft_response": {"type": "string", "minLength": 1},
    "confidence":     {}
  }
}`

var analysisSchema = mustSchema(analysisSchemaJSON)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("ai: invalid analysis schema: %v", err))
	}
	return schema
}

type rawAnalysis struct {
	Sentiment     any             `json:"sentiment"`
	Category      any             `json:"category"`
	FullName      *string         `json:"full_name"`
	Company       *string         `json:"company"`
	Phone         *string         `json:"phone"`
	DeviceSerials json.RawMessage `json:"device_serials"`
	DeviceType    *string         `json:"device_type"`
	Summary       *string         `json:"summary"`
	DraftResponse string          `json:"draft_response"`
	Confidence    any             `json:"confidence"`
}

// decodeAnalysis validates content against the analysis schema and normalizes
// it. Any validation failure is returned as an error.
func decodeAnalysis(content string) (Analysis, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Analysis{}, errors.New("empty completion")
	}

	result, err := analysisSchema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return Analysis{}, fmt.Errorf("decode completion: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Analysis{}, fmt.Errorf("completion does not match schema: %s", strings.Join(msgs, "; "))
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Analysis{}, fmt.Errorf("decode completion: %w", err)
	}

	return Analysis{
		Sentiment:     clampSentiment(raw.Sentiment),
		Category:      clampCategory(raw.Category),
		FullName:      optional(raw.FullName),
		Company:       optional(raw.Company),
		Phone:         optional(raw.Phone),
		DeviceSerials: coerceSerials(raw.DeviceSerials),
		DeviceType:    optional(raw.DeviceType),
		Summary:       optional(raw.Summary),
		DraftResponse: strings.TrimSpace(raw.DraftResponse),
		Confidence:    clampConfidence(raw.Confidence),
	}, nil
}

// Sentiment, category and confidence accept any JSON type; values that do not
// normalize fall back to their defaults instead of failing the analysis.
func clampSentiment(v any) domain.Sentiment {
	if str, ok := v.(string); ok {
		s := domain.Sentiment(strings.ToLower(strings.TrimSpace(str)))
		if s.IsValid() {
			return s
		}
	}
	return domain.SentimentNeutral
}

func clampCategory(v any) domain.Category {
	if str, ok := v.(string); ok {
		c := domain.Category(strings.ToLower(strings.TrimSpace(str)))
		if c.IsValid() {
			return c
		}
	}
	return domain.CategoryOther
}

func clampConfidence(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 1.0
		}
		f = parsed
	case bool:
		if n {
			f = 1
		}
	default:
		return 1.0
	}
	if math.IsNaN(f) {
		return 1.0
	}
	return math.Max(0, math.Min(1, f))
}

func optional(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

// coerceSerials turns any list into strings. Anything not list-shaped yields
// an empty list.
func coerceSerials(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return out
	}
	for _, item := range items {
		var s string
		switch v := item.(type) {
		case nil:
			continue
		case string:
			s = v
		case json.Number:
			s = v.String()
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			s = string(encoded)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
