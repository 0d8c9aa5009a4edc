package provider

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"

	"ragkit/internal/embedding"
	ragerrors "ragkit/pkg/errors"
)

const (
	OpenAIName = "openai"
	AzureName  = "azure"
	// DashScopeCompatibleURL serves the OpenAI wire format for Aliyun models.
	DashScopeCompatibleURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
)

// OpenAIOptions configure an OpenAIEmbeddingProvider against api.openai.com
// or any OpenAI compatible endpoint.
type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AzureOpenAIOptions configure an OpenAIEmbeddingProvider against an Azure
// OpenAI deployment. Credential takes precedence over APIKey.
type AzureOpenAIOptions struct {
	Endpoint   string
	APIVersion string
	APIKey     string
	Deployment string
	Credential azcore.TokenCredential
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIEmbeddingProvider embeds through the official OpenAI SDK. Retries are
// left to the batch client.
type OpenAIEmbeddingProvider struct {
	name   string
	model  string
	client openai.Client
}

func NewOpenAIEmbeddingProvider(opts OpenAIOptions) (*OpenAIEmbeddingProvider, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" || key == PlaceholderToken {
		return nil, &ragerrors.AuthenticationError{Provider: OpenAIName, Message: "api key is not set"}
	}
	if opts.Model == "" {
		return nil, ragerrors.Validation("model", "required")
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(key)}
	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}
	requestOpts = append(requestOpts, commonOptions(opts.Timeout, opts.HTTPClient)...)

	return &OpenAIEmbeddingProvider{
		name:   OpenAIName,
		model:  opts.Model,
		client: openai.NewClient(requestOpts...),
	}, nil
}

func NewAzureOpenAIEmbeddingProvider(opts AzureOpenAIOptions) (*OpenAIEmbeddingProvider, error) {
	if opts.Endpoint == "" {
		return nil, ragerrors.Validation("endpoint", "required for azure openai")
	}
	if opts.Deployment == "" {
		return nil, ragerrors.Validation("deployment", "required for azure openai")
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "2024-09-01-preview"
	}

	requestOpts := []option.RequestOption{
		azure.WithEndpoint(strings.TrimSuffix(opts.Endpoint, "/"), opts.APIVersion),
	}
	switch {
	case opts.Credential != nil:
		requestOpts = append(requestOpts, azure.WithTokenCredential(opts.Credential))
	case strings.TrimSpace(opts.APIKey) != "":
		requestOpts = append(requestOpts, azure.WithAPIKey(opts.APIKey))
	default:
		return nil, &ragerrors.AuthenticationError{Provider: AzureName, Message: "api key or credential required"}
	}
	requestOpts = append(requestOpts, commonOptions(opts.Timeout, opts.HTTPClient)...)

	return &OpenAIEmbeddingProvider{
		name:   AzureName,
		model:  opts.Deployment,
		client: openai.NewClient(requestOpts...),
	}, nil
}

func commonOptions(timeout time.Duration, client *http.Client) []option.RequestOption {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if client != nil {
		opts = append(opts, option.WithHTTPClient(client))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return opts
}

func (e *OpenAIEmbeddingProvider) Name() string  { return e.name }
func (e *OpenAIEmbeddingProvider) Model() string { return e.model }

func (e *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) (*embedding.Response, error) {
	if err := embedding.ValidateTexts(texts); err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	params.Input.OfArrayOfStrings = append(params.Input.OfArrayOfStrings, texts...)

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, e.mapError(err)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, item := range data {
		vecs[i] = embedding.ToFloat32(item.Embedding)
	}
	if err := embedding.CheckResponse(e.name, len(texts), vecs); err != nil {
		return nil, err
	}
	return &embedding.Response{
		Embeddings: vecs,
		Usage:      embedding.Usage{InputTokens: int(resp.Usage.PromptTokens)},
	}, nil
}

func (e *OpenAIEmbeddingProvider) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ragerrors.FromStatus(e.name, apiErr.StatusCode, apiErr.Message)
	}
	return ragerrors.FromTransport(e.name, err)
}
