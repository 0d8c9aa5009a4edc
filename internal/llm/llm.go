// Package llm adapts chat completion backends behind a single Complete call.
package llm

import (
	"context"
	"fmt"

	"ragkit/internal/azauth"
	"ragkit/internal/config"
	ragerrors "ragkit/pkg/errors"
)

// LLM completes a single prompt.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// New builds the LLM selected by cfg.LLM.Provider. Provider "none" returns a
// nil LLM and no error.
func New(ctx context.Context, cfg *config.Config) (LLM, error) {
	lc := cfg.LLM
	switch lc.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		return NewOpenAI(OpenAIOptions{
			APIKey:      lc.APIKey,
			Model:       lc.Model,
			BaseURL:     lc.BaseURL,
			Temperature: lc.Temperature,
		})
	case "azure":
		az := cfg.AzureOpenAI
		opts := AzureOptions{
			Endpoint:    az.Endpoint,
			APIVersion:  az.APIVersion,
			APIKey:      az.APIKey,
			Deployment:  az.Deployment,
			Temperature: lc.Temperature,
		}
		if az.UseDefaultCredential {
			cred, err := azauth.DefaultCredential()
			if err != nil {
				return nil, err
			}
			opts.Credential = cred
		}
		return NewAzureOpenAI(opts)
	case "gemini":
		model := lc.Model
		if model == "" {
			model = cfg.Gemini.Model
		}
		apiKey := lc.APIKey
		if apiKey == "" {
			apiKey = cfg.Gemini.APIKey
		}
		return NewGemini(ctx, GeminiOptions{
			APIKey:      apiKey,
			Model:       model,
			BaseURL:     lc.BaseURL,
			Temperature: lc.Temperature,
		})
	default:
		return nil, fmt.Errorf("%w: llm %q", ragerrors.ErrUnsupportedProvider, lc.Provider)
	}
}
