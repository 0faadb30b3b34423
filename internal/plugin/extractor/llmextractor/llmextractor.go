// Package llmextractor implements EntityExtractor by prompting a chat
// completion model for a structured list of entity mentions, grounded on
// the plain net/http request shape the teacher uses for its OpenAI
// embedder.
package llmextractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/model"
	"github.com/corenexus/memory-service/internal/registry/extractor"
)

func init() {
	extractor.Register(extractor.Plugin{
		Name:   "llm",
		Loader: load,
	})
}

func load(ctx context.Context) (extractor.Extractor, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.LLMExtractorAPIKey == "" {
		return nil, fmt.Errorf("llmextractor: API key is required")
	}
	model := cfg.LLMExtractorModelName
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Extractor{
		apiKey:  cfg.LLMExtractorAPIKey,
		baseURL: strings.TrimRight(cfg.LLMExtractorBaseURL, "/"),
		model:   model,
	}, nil
}

// Extractor implements extractor.Extractor via a chat completion request
// asking the model to return entity mentions as JSON.
type Extractor struct {
	apiKey  string
	baseURL string
	model   string
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type extractedMention struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	CharStart  int     `json:"charStart"`
	CharEnd    int     `json:"charEnd"`
	Confidence float64 `json:"confidence"`
}

const systemPrompt = `You extract named entity mentions from text. Respond with JSON of the form
{"mentions": [{"type": "PERSON|ORGANIZATION|TECHNOLOGY|LOCATION|CONCEPT|EVENT|PRODUCT|OTHER", "text": "...", "charStart": 0, "charEnd": 0, "confidence": 0.0}]}.
charStart and charEnd are 0-based byte offsets into the original text.`

func (e *Extractor) ExtractMentions(ctx context.Context, text string) ([]extractor.Mention, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llmextractor: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llmextractor: read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("llmextractor: parse response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("llmextractor: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("llmextractor: empty response")
	}

	var parsed struct {
		Mentions []extractedMention `json:"mentions"`
	}
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("llmextractor: parse mentions: %w", err)
	}

	mentions := make([]extractor.Mention, 0, len(parsed.Mentions))
	for _, m := range parsed.Mentions {
		mentions = append(mentions, extractor.Mention{
			EntityType: model.EntityType(strings.ToUpper(m.Type)),
			Text:       m.Text,
			CharStart:  m.CharStart,
			CharEnd:    m.CharEnd,
			Confidence: m.Confidence,
		})
	}
	return mentions, nil
}

var _ extractor.Extractor = (*Extractor)(nil)
