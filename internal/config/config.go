package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/wa-mentor/backend/internal/provider/openai"
)

// Config aggregates every option recognised by the service and the indexer.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	AI        AIConfig
	Session   SessionConfig
	Retrieval RetrievalConfig
	Embedding EmbeddingConfig
	Indexer   IndexerConfig
	Persona   PersonaConfig
	Twilio    TwilioConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	retrieval, err := loadRetrievalConfig()
	if err != nil {
		return nil, err
	}

	emb, err := loadEmbeddingConfig()
	if err != nil {
		return nil, err
	}

	indexer, err := loadIndexerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Log:       loadLogConfig(),
		AI:        ai,
		Session:   session,
		Retrieval: retrieval,
		Embedding: emb,
		Indexer:   indexer,
		Persona: PersonaConfig{
			ID:   getEnvOrDefault("PERSONA_ID", "siti-rahman"),
			File: strings.TrimSpace(os.Getenv("PERSONA_FILE")),
		},
		Twilio: TwilioConfig{
			AccountSID:  strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
			AuthToken:   strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
			PhoneNumber: strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER")),
		},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are accepted as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the completion provider. Generation parameters are fixed
// per deployment.
type AIConfig struct {
	Provider string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Enabled reports whether the selected provider has credentials and a model.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIModel != "" && (c.OpenAIAPIKey != "" || c.OpenAIBaseURL != "")
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	default:
		return false
	}
}

// NewChatModel creates the configured provider's chat model.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s provider credentials or model missing", c.Provider)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	if c.Provider == ProviderOpenAI {
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.OpenAIAPIKey,
			BaseURL:     c.OpenAIBaseURL,
			Model:       c.OpenAIModel,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
		if err != nil {
			return nil, err
		}
		return cm, nil
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       c.ArkModel,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}
	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		def := 0.7
		temperature = &def
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		def := 300
		maxTokens = &def
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 20*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	openAIKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER")))
	if provider == "" {
		provider = ProviderArk
		if openAIKey != "" {
			provider = ProviderOpenAI
		}
	}
	if provider != ProviderOpenAI && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value: %q", provider)
	}

	return AIConfig{
		Provider:      provider,
		OpenAIAPIKey:  openAIKey,
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		ArkAPIKey:     strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:  strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:  strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:      strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:    getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:     getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		Timeout:       timeout,
	}, nil
}

// SessionConfig bounds the in-memory session store.
type SessionConfig struct {
	MaxMessages    int
	MaxSessions    int
	TTL            time.Duration
	SweepHighWater int
	HistoryWindow  int
}

func loadSessionConfig() (SessionConfig, error) {
	maxMessages, err := parsePositiveIntEnv("MAX_MESSAGES_PER_SESSION", 10)
	if err != nil {
		return SessionConfig{}, err
	}
	maxSessions, err := parsePositiveIntEnv("MAX_SESSIONS", 1000)
	if err != nil {
		return SessionConfig{}, err
	}
	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}
	highWater, err := parsePositiveIntEnv("SESSION_SWEEP_HIGH_WATER", maxSessions*8/10)
	if err != nil {
		return SessionConfig{}, err
	}
	if highWater > maxSessions {
		highWater = maxSessions
	}
	window, err := parsePositiveIntEnv("HISTORY_WINDOW", 10)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		MaxMessages:    maxMessages,
		MaxSessions:    maxSessions,
		TTL:            ttl,
		SweepHighWater: highWater,
		HistoryWindow:  window,
	}, nil
}

// RetrievalConfig drives the per-message index query.
type RetrievalConfig struct {
	IndexPath         string
	K                 int
	ChunkTextBudget   int
	ReplyLengthBudget int
}

func loadRetrievalConfig() (RetrievalConfig, error) {
	k, err := parsePositiveIntEnv("RETRIEVAL_K", 3)
	if err != nil {
		return RetrievalConfig{}, err
	}
	chunkBudget, err := parsePositiveIntEnv("CHUNK_TEXT_BUDGET", 500)
	if err != nil {
		return RetrievalConfig{}, err
	}
	replyBudget, err := parsePositiveIntEnv("REPLY_LENGTH_BUDGET", 1500)
	if err != nil {
		return RetrievalConfig{}, err
	}

	return RetrievalConfig{
		IndexPath:         getEnvOrDefault("INDEX_PATH", "./data/index.gob.gz"),
		K:                 k,
		ChunkTextBudget:   chunkBudget,
		ReplyLengthBudget: replyBudget,
	}, nil
}

// EmbeddingConfig selects the embedding function shared by the indexer and
// the query path.
type EmbeddingConfig struct {
	Model       string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Concurrency int
	RetryMax    int
}

// Enabled reports whether an embedding endpoint can be called.
func (c EmbeddingConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || c.BaseURL != "")
}

// NewEmbedder builds the embedding function. A nil client gets a plain
// client bounded by Timeout.
func (c EmbeddingConfig) NewEmbedder(hc *http.Client) (embedding.Embedder, error) {
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	emb, err := openai.NewEmbedder(&openai.EmbedderConfig{
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Model:      c.Model,
		HTTPClient: hc,
	})
	if err != nil {
		return nil, err
	}
	return emb, nil
}

func loadEmbeddingConfig() (EmbeddingConfig, error) {
	timeout, err := parseDurationEnv("EMBEDDING_TIMEOUT", 10*time.Second)
	if err != nil {
		return EmbeddingConfig{}, err
	}
	concurrency, err := parsePositiveIntEnv("EMBEDDING_CONCURRENCY", 4)
	if err != nil {
		return EmbeddingConfig{}, err
	}
	retryMax, err := parsePositiveIntEnv("EMBEDDING_RETRY_MAX", 3)
	if err != nil {
		return EmbeddingConfig{}, err
	}

	apiKey := strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	return EmbeddingConfig{
		Model:       getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		BaseURL:     strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")),
		APIKey:      apiKey,
		Timeout:     timeout,
		Concurrency: concurrency,
		RetryMax:    retryMax,
	}, nil
}

// IndexerConfig is only read by the offline indexer.
type IndexerConfig struct {
	SourceGlob   string
	ChunkSize    int
	ChunkOverlap int
}

func loadIndexerConfig() (IndexerConfig, error) {
	size, err := parsePositiveIntEnv("CHUNK_SIZE", 800)
	if err != nil {
		return IndexerConfig{}, err
	}
	overlap, err := parseNonNegativeIntEnv("CHUNK_OVERLAP", 100)
	if err != nil {
		return IndexerConfig{}, err
	}
	if overlap >= size {
		return IndexerConfig{}, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", overlap, size)
	}

	return IndexerConfig{
		SourceGlob:   getEnvOrDefault("DOCS_GLOB", "./docs/*"),
		ChunkSize:    size,
		ChunkOverlap: overlap,
	}, nil
}

// PersonaConfig selects the active persona.
type PersonaConfig struct {
	ID   string
	File string
}

// TwilioConfig is only reported by the configuration probe endpoint.
type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

// Configured reports whether Twilio credentials were supplied.
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parsePositiveIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
	}
	return *val, nil
}

func parseNonNegativeIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val < 0 {
		return 0, fmt.Errorf("invalid %s value %d: must not be negative", key, *val)
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
