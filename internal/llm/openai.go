package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	ragerrors "ragkit/pkg/errors"
)

const systemPrompt = "You are a helpful assistant that answers questions using the provided context."

type OpenAIOptions struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	HTTPClient  *http.Client
}

type AzureOptions struct {
	Endpoint    string
	APIVersion  string
	APIKey      string
	Deployment  string
	Credential  azcore.TokenCredential
	Temperature float64
	HTTPClient  *http.Client
}

// OpenAI completes prompts with the chat completions API.
type OpenAI struct {
	name        string
	model       string
	temperature float64
	client      openai.Client
}

func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &ragerrors.AuthenticationError{Provider: "openai", Message: "api key is not set"}
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	requestOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}
	if opts.HTTPClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &OpenAI{
		name:        "openai",
		model:       model,
		temperature: opts.Temperature,
		client:      openai.NewClient(requestOpts...),
	}, nil
}

func NewAzureOpenAI(opts AzureOptions) (*OpenAI, error) {
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
	case opts.APIKey != "":
		requestOpts = append(requestOpts, azure.WithAPIKey(opts.APIKey))
	default:
		return nil, &ragerrors.AuthenticationError{Provider: "azure", Message: "api key or credential required"}
	}
	if opts.HTTPClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &OpenAI{
		name:        "azure",
		model:       opts.Deployment,
		temperature: opts.Temperature,
		client:      openai.NewClient(requestOpts...),
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: param.NewOpt(o.temperature),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", ragerrors.FromStatus(o.name, apiErr.StatusCode, apiErr.Message)
		}
		return "", ragerrors.FromTransport(o.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", &ragerrors.ProviderError{Provider: o.name, Message: "no choices returned"}
	}
	return resp.Choices[0].Message.Content, nil
}
