package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	ragerrors "ragkit/pkg/errors"
)

// PlaceholderToken is the value example setups ship with in place of a real
// API token. It is treated as missing.
const PlaceholderToken = "YOUR_API_TOKEN"

// Config captures the runtime configuration of ragkit.
type Config struct {
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	AzureOpenAI AzureOpenAIConfig `mapstructure:"azure_openai" yaml:"azure_openai"`
	Gemini      GeminiConfig      `mapstructure:"gemini" yaml:"gemini"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store" yaml:"vector_store"`
	DocStore    DocStoreConfig    `mapstructure:"docstore" yaml:"docstore"`
	Ingest      IngestConfig      `mapstructure:"ingest" yaml:"ingest"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error fatal"`
	File   string `mapstructure:"file" yaml:"file"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=console json"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type EmbeddingConfig struct {
	Provider             string        `mapstructure:"provider" yaml:"provider" validate:"oneof=deepinfra openai azure gemini"`
	Model                string        `mapstructure:"model" yaml:"model"`
	APIToken             string        `mapstructure:"api_token" yaml:"api_token"`
	BaseURL              string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	TextPrefix           string        `mapstructure:"text_prefix" yaml:"text_prefix"`
	QueryPrefix          string        `mapstructure:"query_prefix" yaml:"query_prefix"`
	BatchSize            int           `mapstructure:"batch_size" yaml:"batch_size" validate:"min=1"`
	MaxRetries           int           `mapstructure:"max_retries" yaml:"max_retries" validate:"min=0"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" yaml:"retry_max_interval"`
	Timeout              time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Breaker              BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold" validate:"min=1"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
}

type AzureOpenAIConfig struct {
	Endpoint             string `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	APIVersion           string `mapstructure:"api_version" yaml:"api_version"`
	APIKey               string `mapstructure:"api_key" yaml:"api_key"`
	Deployment           string `mapstructure:"deployment" yaml:"deployment"`
	EmbeddingDeployment  string `mapstructure:"embedding_deployment" yaml:"embedding_deployment"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential" yaml:"use_default_credential"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider" validate:"oneof=none openai azure gemini"`
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"min=0,max=2"`
}

type CacheConfig struct {
	Backend  string        `mapstructure:"backend" yaml:"backend" validate:"oneof=none memory redis"`
	Size     int           `mapstructure:"size" yaml:"size" validate:"min=0"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url"`
}

type VectorStoreConfig struct {
	Backend     string            `mapstructure:"backend" yaml:"backend" validate:"oneof=memory azure_search"`
	Similarity  string            `mapstructure:"similarity" yaml:"similarity" validate:"oneof=cosine dot_product euclidean"`
	AzureSearch AzureSearchConfig `mapstructure:"azure_search" yaml:"azure_search"`
}

// MetadataField maps a metadata key onto a filterable index field.
type MetadataField struct {
	Field string `mapstructure:"field" yaml:"field"`
	Type  string `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=string collection int32 int64 double boolean"`
}

type AzureSearchConfig struct {
	Endpoint                string                   `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	APIKey                  string                   `mapstructure:"api_key" yaml:"api_key"`
	APIVersion              string                   `mapstructure:"api_version" yaml:"api_version"`
	IndexName               string                   `mapstructure:"index_name" yaml:"index_name" validate:"required"`
	IndexManagement         string                   `mapstructure:"index_management" yaml:"index_management" validate:"oneof=create_if_not_exists validate_index no_validation"`
	IDFieldKey              string                   `mapstructure:"id_field_key" yaml:"id_field_key" validate:"required"`
	ChunkFieldKey           string                   `mapstructure:"chunk_field_key" yaml:"chunk_field_key" validate:"required"`
	EmbeddingFieldKey       string                   `mapstructure:"embedding_field_key" yaml:"embedding_field_key" validate:"required"`
	MetadataStringFieldKey  string                   `mapstructure:"metadata_string_field_key" yaml:"metadata_string_field_key" validate:"required"`
	DocIDFieldKey           string                   `mapstructure:"doc_id_field_key" yaml:"doc_id_field_key" validate:"required"`
	EmbeddingDimensionality int                      `mapstructure:"embedding_dimensionality" yaml:"embedding_dimensionality" validate:"min=1"`
	LanguageAnalyzer        string                   `mapstructure:"language_analyzer" yaml:"language_analyzer"`
	VectorAlgorithm         string                   `mapstructure:"vector_algorithm" yaml:"vector_algorithm" validate:"oneof=exhaustive_knn hnsw"`
	Compression             string                   `mapstructure:"compression" yaml:"compression" validate:"oneof=none scalar binary"`
	FilterableMetadata      map[string]MetadataField `mapstructure:"filterable_metadata" yaml:"filterable_metadata" validate:"dive"`
	SemanticConfiguration   string                   `mapstructure:"semantic_configuration" yaml:"semantic_configuration"`
	UseDefaultCredential    bool                     `mapstructure:"use_default_credential" yaml:"use_default_credential"`
	MaxRetries              int                      `mapstructure:"max_retries" yaml:"max_retries"`
}

type DocStoreConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend" validate:"oneof=memory redis"`
	Strategy string `mapstructure:"strategy" yaml:"strategy" validate:"oneof=upserts duplicates_only none"`
}

type IngestConfig struct {
	ChunkSize    int      `mapstructure:"chunk_size" yaml:"chunk_size" validate:"min=1"`
	ChunkOverlap int      `mapstructure:"chunk_overlap" yaml:"chunk_overlap" validate:"min=0,ltfield=ChunkSize"`
	Extensions   []string `mapstructure:"extensions" yaml:"extensions" validate:"min=1"`
	Recursive    bool     `mapstructure:"recursive" yaml:"recursive"`
}

// Options control where Load looks for configuration.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// wellKnownEnv binds the variable names used by provider SDK setups.
var wellKnownEnv = map[string][]string{
	"embedding.api_token":                {"DEEPINFRA_API_TOKEN", "OPENAI_API_KEY"},
	"embedding.model":                    {"EMBEDDING_MODEL"},
	"azure_openai.endpoint":              {"AZURE_OPENAI_ENDPOINT"},
	"azure_openai.api_key":               {"AZURE_OPENAI_API_KEY"},
	"azure_openai.api_version":           {"AZURE_API_VERSION"},
	"azure_openai.deployment":            {"AZURE_DEPLOYMENT_NAME"},
	"azure_openai.embedding_deployment":  {"EMBEDDING_MODEL"},
	"gemini.api_key":                     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"vector_store.azure_search.endpoint": {"AZURE_AI_SEARCH_ENDPOINT"},
	"vector_store.azure_search.api_key":  {"AZURE_AI_SEARCH_KEY"},
	"cache.redis_url":                    {"REDIS_URL"},
	"llm.api_key":                        {"OPENAI_API_KEY"},
}

// Load reads .env, the optional YAML file and the environment, then validates
// the result. A missing default config file is not an error.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("ragkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("RAGKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range wellKnownEnv {
		args := append([]string{key, "RAGKIT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	mergeFilterableMetadata(v, &cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.format", "")

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("embedding.provider", "deepinfra")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.text_prefix", "")
	v.SetDefault("embedding.query_prefix", "")
	v.SetDefault("embedding.batch_size", 10)
	v.SetDefault("embedding.max_retries", 5)
	v.SetDefault("embedding.retry_initial_interval", "500ms")
	v.SetDefault("embedding.retry_max_interval", "10s")
	v.SetDefault("embedding.timeout", "60s")
	v.SetDefault("embedding.breaker.enabled", true)
	v.SetDefault("embedding.breaker.failure_threshold", 5)
	v.SetDefault("embedding.breaker.open_timeout", "30s")

	v.SetDefault("azure_openai.api_version", "2024-09-01-preview")
	v.SetDefault("azure_openai.use_default_credential", false)

	v.SetDefault("gemini.model", "gemini-2.0-flash")

	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.1)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.size", 10000)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis_url", "")

	v.SetDefault("vector_store.backend", "azure_search")
	v.SetDefault("vector_store.similarity", "cosine")
	v.SetDefault("vector_store.azure_search.api_version", "2024-07-01")
	v.SetDefault("vector_store.azure_search.index_name", "llamaindex-vector-store")
	v.SetDefault("vector_store.azure_search.index_management", "create_if_not_exists")
	v.SetDefault("vector_store.azure_search.id_field_key", "id")
	v.SetDefault("vector_store.azure_search.chunk_field_key", "chunk")
	v.SetDefault("vector_store.azure_search.embedding_field_key", "embedding")
	v.SetDefault("vector_store.azure_search.metadata_string_field_key", "metadata")
	v.SetDefault("vector_store.azure_search.doc_id_field_key", "doc_id")
	v.SetDefault("vector_store.azure_search.embedding_dimensionality", 1536)
	v.SetDefault("vector_store.azure_search.language_analyzer", "en.lucene")
	v.SetDefault("vector_store.azure_search.vector_algorithm", "exhaustive_knn")
	v.SetDefault("vector_store.azure_search.compression", "none")
	v.SetDefault("vector_store.azure_search.semantic_configuration", "ragkit-semantic-config")
	v.SetDefault("vector_store.azure_search.max_retries", 3)
	v.SetDefault("vector_store.azure_search.use_default_credential", false)

	v.SetDefault("docstore.backend", "memory")
	v.SetDefault("docstore.strategy", "upserts")

	v.SetDefault("ingest.chunk_size", 1024)
	v.SetDefault("ingest.chunk_overlap", 20)
	v.SetDefault("ingest.extensions", []string{".txt", ".md", ".pdf"})
	v.SetDefault("ingest.recursive", true)
}

// mergeFilterableMetadata restores filterable metadata keys declared with an
// empty body (author: {}), which viper drops while unmarshalling.
func mergeFilterableMetadata(v *viper.Viper, cfg *Config) {
	raw := v.GetStringMap("vector_store.azure_search.filterable_metadata")
	if len(raw) == 0 {
		return
	}
	fields := cfg.VectorStore.AzureSearch.FilterableMetadata
	if fields == nil {
		fields = make(map[string]MetadataField, len(raw))
	}
	for key := range raw {
		if _, ok := fields[key]; !ok {
			fields[key] = MetadataField{}
		}
	}
	cfg.VectorStore.AzureSearch.FilterableMetadata = fields
}

// DefaultModels per embedding provider.
var DefaultModels = map[string]string{
	"deepinfra": "BAAI/bge-large-en-v1.5",
	"openai":    "text-embedding-3-small",
	"azure":     "text-embedding-ada-002",
	"gemini":    "text-embedding-004",
}

func (c *Config) normalize() {
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	if c.Embedding.Model == "" {
		c.Embedding.Model = DefaultModels[c.Embedding.Provider]
	}
	if c.Embedding.APIToken == PlaceholderToken {
		c.Embedding.APIToken = ""
	}
	if c.AzureOpenAI.EmbeddingDeployment == "" {
		c.AzureOpenAI.EmbeddingDeployment = c.Embedding.Model
	}
	for key, field := range c.VectorStore.AzureSearch.FilterableMetadata {
		if field.Field == "" {
			field.Field = key
		}
		if field.Type == "" {
			field.Type = "string"
		}
		c.VectorStore.AzureSearch.FilterableMetadata[key] = field
	}
	for i, ext := range c.Ingest.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Ingest.Extensions[i] = ext
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and credential requirements. Credential
// problems are reported as authentication errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ragerrors.Validation(fe.Namespace(), fmt.Sprintf("failed %q constraint", fe.Tag()))
		}
		return ragerrors.Validation("config", err.Error())
	}
	if _, ok := DefaultModels[c.Embedding.Provider]; ok && c.Embedding.Model == "" {
		return ragerrors.Validation("Config.Embedding.Model", "required")
	}
	return nil
}

// RequireEmbeddingCredentials reports a missing credential for the selected
// embedding provider.
func (c *Config) RequireEmbeddingCredentials() error {
	switch c.Embedding.Provider {
	case "deepinfra", "openai":
		if c.Embedding.APIToken == "" {
			return &ragerrors.AuthenticationError{Provider: c.Embedding.Provider, Message: "api token is not set"}
		}
	case "azure":
		if c.AzureOpenAI.Endpoint == "" {
			return ragerrors.Validation("Config.AzureOpenAI.Endpoint", "required for the azure provider")
		}
		if c.AzureOpenAI.APIKey == "" && !c.AzureOpenAI.UseDefaultCredential {
			return &ragerrors.AuthenticationError{Provider: "azure", Message: "api key is not set and default credential is disabled"}
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return &ragerrors.AuthenticationError{Provider: "gemini", Message: "api key is not set"}
		}
	}
	return nil
}

// Dump renders the configuration as YAML with secrets masked.
func (c *Config) Dump() ([]byte, error) {
	masked := *c
	masked.Embedding.APIToken = mask(c.Embedding.APIToken)
	masked.AzureOpenAI.APIKey = mask(c.AzureOpenAI.APIKey)
	masked.Gemini.APIKey = mask(c.Gemini.APIKey)
	masked.LLM.APIKey = mask(c.LLM.APIKey)
	masked.VectorStore.AzureSearch.APIKey = mask(c.VectorStore.AzureSearch.APIKey)
	masked.Cache.RedisURL = maskURL(c.Cache.RedisURL)
	return yaml.Marshal(&masked)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

func maskURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "****" + raw[at:]
}
