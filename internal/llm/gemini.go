package llm

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"ragkit/internal/embedding/provider"
	ragerrors "ragkit/pkg/errors"
)

type GeminiOptions struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	HTTPClient  *http.Client
}

// Gemini completes prompts with GenerateContent.
type Gemini struct {
	model       string
	temperature float32
	client      *genai.Client
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &ragerrors.AuthenticationError{Provider: provider.GeminiName, Message: "api key is not set"}
	}
	client, err := provider.NewGeminiClient(ctx, opts.APIKey, opts.BaseURL, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{model: model, temperature: float32(opts.Temperature), client: client}, nil
}

func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", provider.MapGeminiError(err)
	}
	return result.Text(), nil
}
