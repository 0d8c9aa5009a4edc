package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"ragkit/internal/embedding"
	ragerrors "ragkit/pkg/errors"
)

const (
	GeminiName  = "gemini"
	GeminiModel = "text-embedding-004"
)

// GeminiOptions configure a GeminiEmbeddingProvider.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiEmbeddingProvider embeds through the Gemini API.
type GeminiEmbeddingProvider struct {
	model  string
	client *genai.Client
}

func NewGeminiEmbeddingProvider(ctx context.Context, opts GeminiOptions) (*GeminiEmbeddingProvider, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" || key == PlaceholderToken {
		return nil, &ragerrors.AuthenticationError{Provider: GeminiName, Message: "api key is not set"}
	}
	client, err := NewGeminiClient(ctx, key, opts.BaseURL, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = GeminiModel
	}
	return &GeminiEmbeddingProvider{model: model, client: client}, nil
}

// NewGeminiClient builds a Gemini API client. It is shared with the LLM
// adapter.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, &ragerrors.ProviderError{Provider: GeminiName, Message: "create client", Err: err}
	}
	return client, nil
}

func (e *GeminiEmbeddingProvider) Name() string  { return GeminiName }
func (e *GeminiEmbeddingProvider) Model() string { return e.model }

func (e *GeminiEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) (*embedding.Response, error) {
	if err := embedding.ValidateTexts(texts); err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, MapGeminiError(err)
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb != nil {
			vecs[i] = emb.Values
		}
	}
	if err := embedding.CheckResponse(GeminiName, len(texts), vecs); err != nil {
		return nil, err
	}
	return &embedding.Response{Embeddings: vecs}, nil
}

// MapGeminiError converts a genai failure into the error taxonomy.
func MapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ragerrors.FromStatus(GeminiName, apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return ragerrors.FromStatus(GeminiName, apiErrPtr.Code, apiErrPtr.Message)
	}
	return ragerrors.FromTransport(GeminiName, err)
}
