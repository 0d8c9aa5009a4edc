package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ragkit/internal/embedding"
	ragerrors "ragkit/pkg/errors"
)

const (
	DeepInfraName       = "deepinfra"
	DeepInfraBaseURL    = "https://api.deepinfra.com/v1/inference"
	DeepInfraModel      = "BAAI/bge-large-en-v1.5"
	deepInfraMaxErrBody = 4 << 10
)

// DeepInfraRequest is the body of the native inference endpoint.
type DeepInfraRequest struct {
	Inputs []string `json:"inputs"`
}

// DeepInfraResponse is the native inference endpoint's embedding payload.
type DeepInfraResponse struct {
	Embeddings      [][]float32 `json:"embeddings"`
	InputTokens     int         `json:"input_tokens"`
	RequestID       string      `json:"request_id"`
	InferenceStatus struct {
		Status          string  `json:"status"`
		RuntimeMS       int     `json:"runtime_ms"`
		Cost            float64 `json:"cost"`
		TokensInput     int     `json:"tokens_input"`
		TokensGenerated int     `json:"tokens_generated"`
	} `json:"inference_status"`
}

type deepInfraErrorBody struct {
	Detail any `json:"detail"`
}

// DeepInfraOptions configure a DeepInfraEmbeddingProvider.
type DeepInfraOptions struct {
	APIToken   string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// DeepInfraEmbeddingProvider calls POST {base}/{model} with bearer auth.
type DeepInfraEmbeddingProvider struct {
	apiToken string
	model    string
	apiURL   string
	client   *http.Client
}

// NewDeepInfraEmbeddingProvider validates the token eagerly: an empty or
// placeholder token fails here rather than on the first request.
func NewDeepInfraEmbeddingProvider(opts DeepInfraOptions) (*DeepInfraEmbeddingProvider, error) {
	token := strings.TrimSpace(opts.APIToken)
	if token == "" || token == PlaceholderToken {
		return nil, &ragerrors.AuthenticationError{Provider: DeepInfraName, Message: "api token is not set"}
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DeepInfraModel
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DeepInfraBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &DeepInfraEmbeddingProvider{
		apiToken: token,
		model:    model,
		apiURL:   base + "/" + model,
		client:   client,
	}, nil
}

func (e *DeepInfraEmbeddingProvider) Name() string  { return DeepInfraName }
func (e *DeepInfraEmbeddingProvider) Model() string { return e.model }

// GetEmbeddings sends one request and returns the raw response.
func (e *DeepInfraEmbeddingProvider) GetEmbeddings(ctx context.Context, inputs []string) (*DeepInfraResponse, error) {
	body, err := json.Marshal(&DeepInfraRequest{Inputs: inputs})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiToken))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, ragerrors.FromTransport(DeepInfraName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, deepInfraMaxErrBody))
		return nil, ragerrors.FromStatus(DeepInfraName, resp.StatusCode, deepInfraErrorMessage(respBody))
	}

	var embeddingResp DeepInfraResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, &ragerrors.ProviderError{Provider: DeepInfraName, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	return &embeddingResp, nil
}

func (e *DeepInfraEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) (*embedding.Response, error) {
	if err := embedding.ValidateTexts(texts); err != nil {
		return nil, err
	}
	resp, err := e.GetEmbeddings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := embedding.CheckResponse(DeepInfraName, len(texts), resp.Embeddings); err != nil {
		return nil, err
	}
	tokens := resp.InputTokens
	if tokens == 0 {
		tokens = resp.InferenceStatus.TokensInput
	}
	return &embedding.Response{
		Embeddings: resp.Embeddings,
		Usage:      embedding.Usage{InputTokens: tokens},
	}, nil
}

func deepInfraErrorMessage(body []byte) string {
	var parsed deepInfraErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail != nil {
		switch d := parsed.Detail.(type) {
		case string:
			return d
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
	}
	return strings.TrimSpace(string(body))
}
