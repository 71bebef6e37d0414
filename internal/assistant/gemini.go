package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiTimeout = 30 * time.Second

var errMissingAPIKey = errors.New("gemini api key is required")

// GeminiConfig selects the Gemini API host and credentials.
type GeminiConfig struct {
	BaseURL    string
	APIVersion string
	Model      string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GeminiClient generates text with the Gemini generateContent API.
type GeminiClient struct {
	models *genai.Models
	model  string
}

// NewGeminiClient builds a client that authenticates with the API key header.
// An empty key is rejected so the SDK never falls back to the environment.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errMissingAPIKey
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultGeminiTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{models: client.Models, model: cfg.Model}, nil
}

// Generate sends prompt as a single user turn. A response without candidates
// yields a nil result.
func (c *GeminiClient) Generate(ctx context.Context, prompt Prompt) (*string, error) {
	response, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt.Text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if response == nil || len(response.Candidates) == 0 {
		return nil, nil
	}
	candidate := response.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return nil, nil
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	result := text.String()
	return &result, nil
}
