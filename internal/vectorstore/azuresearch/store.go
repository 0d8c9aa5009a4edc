// Package azuresearch stores nodes in an Azure AI Search index through its
// REST API.
package azuresearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ragkit/internal/azauth"
	"ragkit/internal/metrics"
	ragerrors "ragkit/pkg/errors"
	"ragkit/pkg/logger"
)

var tracer = otel.Tracer("ragkit/internal/vectorstore/azuresearch")

const (
	providerName      = "azure_search"
	moduleName        = "ragkit/azuresearch"
	moduleVersion     = "v1.0.0"
	defaultAPIVersion = "2024-07-01"
	uploadBatchSize   = 1000
	lookupPageSize    = 1000
)

// IndexManagement controls what New does about the target index.
type IndexManagement string

const (
	CreateIfNotExists IndexManagement = "create_if_not_exists"
	ValidateIndex     IndexManagement = "validate_index"
	NoValidation      IndexManagement = "no_validation"
)

// Options configure a Store. Credential takes precedence over APIKey.
type Options struct {
	Endpoint                string
	APIKey                  string
	APIVersion              string
	IndexName               string
	IndexManagement         IndexManagement
	IDFieldKey              string
	ChunkFieldKey           string
	EmbeddingFieldKey       string
	MetadataStringFieldKey  string
	DocIDFieldKey           string
	EmbeddingDimensionality int
	LanguageAnalyzer        string
	VectorAlgorithm         string
	Compression             string
	FilterableMetadata      map[string]MetadataField
	SemanticConfiguration   string
	Credential              azcore.TokenCredential
	MaxRetries              int
	HTTPClient              *http.Client
	Metrics                 *metrics.Metrics
}

// Store is a vectorstore.VectorStore backed by Azure AI Search.
type Store struct {
	opts     Options
	endpoint string
	pipeline runtime.Pipeline
}

// New builds a Store and applies the index management policy.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Endpoint == "" {
		return nil, ragerrors.Validation("endpoint", "required for azure ai search")
	}
	if opts.IndexName == "" {
		return nil, ragerrors.Validation("index_name", "required")
	}
	if opts.Credential == nil && opts.APIKey == "" {
		return nil, &ragerrors.AuthenticationError{Provider: providerName, Message: "api key or credential required"}
	}
	applyDefaults(&opts)

	var perRetry []policy.Policy
	if opts.Credential != nil {
		perRetry = append(perRetry, runtime.NewBearerTokenPolicy(opts.Credential, []string{azauth.SearchScope}, nil))
	} else {
		perRetry = append(perRetry, apiKeyPolicy{key: opts.APIKey})
	}

	clientOpts := &policy.ClientOptions{
		Retry:     policy.RetryOptions{MaxRetries: int32(opts.MaxRetries)},
		Telemetry: policy.TelemetryOptions{ApplicationID: "ragkit"},
	}
	if opts.MaxRetries <= 0 {
		clientOpts.Retry.MaxRetries = -1
	}
	if opts.HTTPClient != nil {
		clientOpts.Transport = opts.HTTPClient
	}

	s := &Store{
		opts:     opts,
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		pipeline: runtime.NewPipeline(moduleName, moduleVersion, runtime.PipelineOptions{PerRetry: perRetry}, clientOpts),
	}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func applyDefaults(o *Options) {
	if o.APIVersion == "" {
		o.APIVersion = defaultAPIVersion
	}
	if o.IndexManagement == "" {
		o.IndexManagement = CreateIfNotExists
	}
	defaults := []struct {
		field *string
		value string
	}{
		{&o.IDFieldKey, "id"},
		{&o.ChunkFieldKey, "chunk"},
		{&o.EmbeddingFieldKey, "embedding"},
		{&o.MetadataStringFieldKey, "metadata"},
		{&o.DocIDFieldKey, "doc_id"},
		{&o.LanguageAnalyzer, "en.lucene"},
		{&o.VectorAlgorithm, AlgorithmExhaustiveKNN},
		{&o.Compression, CompressionNone},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = d.value
		}
	}
	if o.EmbeddingDimensionality <= 0 {
		o.EmbeddingDimensionality = 1536
	}
	if o.Compression != CompressionNone && o.VectorAlgorithm != AlgorithmHNSW {
		logger.Warn("vector compression requires the hnsw algorithm, ignoring it",
			"compression", o.Compression, "algorithm", o.VectorAlgorithm)
		o.Compression = CompressionNone
	}
	fields := make(map[string]MetadataField, len(o.FilterableMetadata))
	for key, mf := range o.FilterableMetadata {
		if mf.Field == "" {
			mf.Field = key
		}
		if mf.Type == "" {
			mf.Type = FieldString
		}
		fields[key] = mf
	}
	o.FilterableMetadata = fields
}

// IndexName returns the target index.
func (s *Store) IndexName() string {
	return s.opts.IndexName
}

func (s *Store) ensureIndex(ctx context.Context) error {
	if s.opts.IndexManagement == NoValidation {
		return nil
	}
	exists, err := s.IndexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if s.opts.IndexManagement == ValidateIndex {
		return fmt.Errorf("%w: %s", ragerrors.ErrIndexNotFound, s.opts.IndexName)
	}
	return s.CreateIndex(ctx)
}

// IndexExists reports whether the index is present.
func (s *Store) IndexExists(ctx context.Context) (bool, error) {
	resp, err := s.do(ctx, http.MethodGet, "/indexes/"+url.PathEscape(s.opts.IndexName), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch {
	case runtime.HasStatusCode(resp, http.StatusOK):
		return true, nil
	case runtime.HasStatusCode(resp, http.StatusNotFound):
		return false, nil
	default:
		return false, responseError(resp)
	}
}

// CreateIndex creates or updates the index schema.
func (s *Store) CreateIndex(ctx context.Context) error {
	def := s.indexDefinition()
	resp, err := s.do(ctx, http.MethodPut, "/indexes/"+url.PathEscape(s.opts.IndexName), def)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusCreated, http.StatusNoContent) {
		return responseError(resp)
	}
	logger.Info("created search index", "index", s.opts.IndexName,
		"algorithm", s.opts.VectorAlgorithm, "compression", s.opts.Compression,
		"dimensions", s.opts.EmbeddingDimensionality)
	return nil
}

// DeleteIndex drops the index. A missing index is not an error.
func (s *Store) DeleteIndex(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodDelete, "/indexes/"+url.PathEscape(s.opts.IndexName), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !runtime.HasStatusCode(resp, http.StatusNoContent, http.StatusNotFound, http.StatusOK) {
		return responseError(resp)
	}
	return nil
}

func (s *Store) docsPath(op string) string {
	return "/indexes/" + url.PathEscape(s.opts.IndexName) + "/docs/" + op
}

func (s *Store) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	req, err := runtime.NewRequest(ctx, method, s.endpoint+path)
	if err != nil {
		return nil, err
	}
	q := req.Raw().URL.Query()
	q.Set("api-version", s.opts.APIVersion)
	req.Raw().URL.RawQuery = q.Encode()
	req.Raw().Header.Set("Accept", "application/json")
	if body != nil {
		if err := runtime.MarshalAsJSON(req, body); err != nil {
			return nil, err
		}
	}
	resp, err := s.pipeline.Do(req)
	if err != nil {
		return nil, ragerrors.FromTransport(providerName, err)
	}
	return resp, nil
}

type apiKeyPolicy struct {
	key string
}

func (p apiKeyPolicy) Do(req *policy.Request) (*http.Response, error) {
	req.Raw().Header.Set("api-key", p.key)
	return req.Next()
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func responseError(resp *http.Response) error {
	payload, _ := runtime.Payload(resp)
	msg := strings.TrimSpace(string(payload))
	var body errorBody
	if err := json.Unmarshal(payload, &body); err == nil && body.Error.Message != "" {
		msg = body.Error.Message
		if body.Error.Code != "" {
			msg = body.Error.Code + ": " + msg
		}
	}
	return ragerrors.FromStatus(providerName, resp.StatusCode, msg)
}

// begin starts a span for op; the returned func ends it and records metrics.
func (s *Store) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "azuresearch."+op, trace.WithAttributes(
		attribute.String("azuresearch.index", s.opts.IndexName),
	))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.observe(op, start, err)
	}
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.opts.Metrics.ObserveVectorStore(op, err)
	if err != nil {
		logger.Warn("search request failed", "operation", op, "index", s.opts.IndexName, "error", err)
		return
	}
	logger.Debug("search request done", "operation", op, "index", s.opts.IndexName, "elapsed", time.Since(start).String())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
