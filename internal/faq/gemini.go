package faq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.0-flash"

	// DefaultGenerateTimeout bounds one model call.
	DefaultGenerateTimeout = 30 * time.Second

	geminiTemperature     = 0.7
	geminiMaxOutputTokens = 1000
)

type generateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiGenerator produces FAQ text with a Gemini model.
type GeminiGenerator struct {
	model    string
	timeout  time.Duration
	generate generateContentFunc
}

// NewGeminiGenerator creates a generator using the Gemini API with apiKey.
// Each call is cut off after timeout (DefaultGenerateTimeout when zero).
func NewGeminiGenerator(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	return &GeminiGenerator{model: model, timeout: timeout, generate: client.Models.GenerateContent}, nil
}

func (g *GeminiGenerator) Name() string { return "gemini" }

func (g *GeminiGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](geminiTemperature),
		MaxOutputTokens:   geminiMaxOutputTokens,
	}

	resp, err := g.generate(ctx, g.model, genai.Text(buildPrompt(p)), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}
