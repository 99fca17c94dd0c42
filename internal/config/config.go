package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is the whole configuration tree loaded from config.yaml.
type AppConfig struct {
	App          AppInfo            `yaml:"app"`
	Server       ServerConfig       `yaml:"server"`
	Auth         AuthConfig         `yaml:"auth"`
	Backend      BackendConfig      `yaml:"backend"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	RAG          RAGConfig          `yaml:"rag"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Sentiment    SentimentConfig    `yaml:"sentiment"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Logger       LoggerConfig       `yaml:"logger"`
	Databases    DatabaseConfigs    `yaml:"databases"`
	Middleware   MiddlewareConfig   `yaml:"middleware"`
}

type AppInfo struct {
	Name        string `yaml:"name" validate:"required"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"` // "development" or "production"
}

type ServerConfig struct {
	HTTPAddress     string `yaml:"httpAddress"`
	GRPCAddress     string `yaml:"grpcAddress"`
	MCPAddress      string `yaml:"mcpAddress"`
	MCPTransport    string `yaml:"mcpTransport" validate:"omitempty,oneof=stdio sse httpstream"`
	ShutdownTimeout string `yaml:"shutdownTimeout"`
}

// AuthConfig holds the shared secret callers present per request.
// APIKeyHash is a bcrypt hash of the key, used instead of APIKey when the
// plain secret should not sit in the config file.
type AuthConfig struct {
	Header     string `yaml:"header"`
	APIKey     string `yaml:"apiKey" validate:"required_without=APIKeyHash"`
	APIKeyHash string `yaml:"apiKeyHash"`
	// JwtSecret, when set, also accepts HS256 bearer tokens signed with it.
	JwtSecret string `yaml:"jwtSecret"`
}

// BackendConfig points at the price/news REST API.
type BackendConfig struct {
	BaseURL      string `yaml:"baseURL" validate:"required,url"`
	APIKey       string `yaml:"apiKey"`
	Timeout      string `yaml:"timeout"`
	PriceSource  string `yaml:"priceSource" validate:"oneof=backend yahoo mysql"`
	NewsSource   string `yaml:"newsSource" validate:"oneof=backend mysql"`
	NewsPageSize int    `yaml:"newsPageSize" validate:"gte=1"`
	NewsMaxPages int    `yaml:"newsMaxPages" validate:"gte=1"`
	// YahooSuffix is appended to bare symbols for Yahoo Finance, e.g. ".NS".
	YahooSuffix string `yaml:"yahooSuffix"`
}

type EmbeddingConfig struct {
	Provider          string  `yaml:"provider" validate:"oneof=openai gemini ollama huggingface"`
	Model             string  `yaml:"model" validate:"required"`
	APIKey            string  `yaml:"apiKey"`
	BaseURL           string  `yaml:"baseURL"`
	Dimension         int     `yaml:"dimension" validate:"gte=1"`
	MaxChars          int     `yaml:"maxChars" validate:"gte=1"`
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond" validate:"gt=0"`
	Burst             int     `yaml:"burst" validate:"gte=1"`
	MaxRetries        int     `yaml:"maxRetries" validate:"gte=0"`
	RetryBackoff      string  `yaml:"retryBackoff"`
}

type RAGConfig struct {
	VectorBackend       string  `yaml:"vectorBackend" validate:"oneof=memory badger milvus"`
	SimilarityThreshold float64 `yaml:"similarityThreshold" validate:"gt=0,lte=1"`
	TopK                int     `yaml:"topK" validate:"gte=1,lte=100"`
	// Adaptive enables threshold step-down, recency weighting and fallback search.
	Adaptive            bool      `yaml:"adaptive"`
	AdaptiveThresholds  []float64 `yaml:"adaptiveThresholds" validate:"dive,gt=0,lte=1"`
	MinResults          int       `yaml:"minResults"`
	RecencyHalfLifeDays float64   `yaml:"recencyHalfLifeDays"`
	FallbackThreshold   float64   `yaml:"fallbackThreshold" validate:"gte=0,lte=1"`
}

type OrchestratorConfig struct {
	SubCallTimeout       string `yaml:"subCallTimeout"`
	MinCorrelationPoints int    `yaml:"minCorrelationPoints" validate:"gte=2"`
	EvidenceTopK         int    `yaml:"evidenceTopK" validate:"gte=1"`
	HistoricalPriceLimit int    `yaml:"historicalPriceLimit" validate:"gte=0"`
	MaxRangeDays         int    `yaml:"maxRangeDays" validate:"gte=1"`
}

// SentimentConfig bounds the news window one aggregation reads.
type SentimentConfig struct {
	WindowLimit int `yaml:"windowLimit" validate:"gte=0"`
}

type IngestConfig struct {
	Schedule        string   `yaml:"schedule"` // cron expression, e.g. "@every 1h"
	BackfillDays    int      `yaml:"backfillDays"`
	Concurrency     int      `yaml:"concurrency" validate:"gte=1"`
	SourceAllowlist []string `yaml:"sourceAllowlist"` // glob patterns; empty allows all
	ArchiveRaw      bool     `yaml:"archiveRaw"`
	BloomCapacity   uint     `yaml:"bloomCapacity"`
	// BloomPath persists the seen-id filter across restarts; empty keeps it in memory.
	BloomPath string `yaml:"bloomPath"`
	// Symbols are backfilled one by one; empty backfills market-wide news.
	Symbols []string `yaml:"symbols"`
	// BatchSize caps how many Kafka messages are indexed together.
	BatchSize  int    `yaml:"batchSize" validate:"gte=1"`
	FlushEvery string `yaml:"flushEvery"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

type MilvusConfig struct {
	Address        string                 `yaml:"address"`
	CollectionName string                 `yaml:"collectionName"`
	IndexType      string                 `yaml:"indexType"`
	IndexParams    map[string]interface{} `yaml:"indexParams"`
	SearchEf       int                    `yaml:"searchEf"`
	// CandidateFactor widens the ANN candidate pool before client-side ranking.
	CandidateFactor int `yaml:"candidateFactor"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      string `yaml:"ttl"`
}

type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
	AutoMigrate     bool   `yaml:"autoMigrate"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

type EtcdConfig struct {
	Endpoints   []string `yaml:"endpoints"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	ServiceName string   `yaml:"serviceName"`
	LeaseTTL    int64    `yaml:"leaseTTL"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupID"`
}

type BadgerConfig struct {
	Path string `yaml:"path"`
}

type DatabaseConfigs struct {
	Milvus MilvusConfig `yaml:"milvus"`
	Redis  RedisConfig  `yaml:"redis"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	MinIO  MinIOConfig  `yaml:"minio"`
	Etcd   EtcdConfig   `yaml:"etcd"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Badger BadgerConfig `yaml:"badger"`
}

type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

type RateLimiterConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Algorithm      string               `yaml:"algorithm"` // fixedWindow, slidingLog, slidingCounter, leakyBucket or tokenBucket
	FixedWindow    FixedWindowConfig    `yaml:"fixedWindow"`
	SlidingLog     SlidingLogConfig     `yaml:"slidingLog"`
	SlidingCounter SlidingCounterConfig `yaml:"slidingCounter"`
	LeakyBucket    LeakyBucketConfig    `yaml:"leakyBucket"`
	TokenBucket    TokenBucketConfig    `yaml:"tokenBucket"`
}

type FixedWindowConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

type SlidingLogConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

type SlidingCounterConfig struct {
	Limit      int    `yaml:"limit"`
	Window     string `yaml:"window"`
	NumBuckets int    `yaml:"numBuckets"`
}

type LeakyBucketConfig struct {
	Rate     float64 `yaml:"rate"` // per second
	Capacity int     `yaml:"capacity"`
}

type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // per second
	Capacity int     `yaml:"capacity"`
}

type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"`
}

// LoadConfig reads .env (if present) and the YAML file at path, applies
// environment overrides and defaults, and validates the result.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML file '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse decodes raw YAML into a validated AppConfig.
func Parse(raw []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and duration strings.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for name, d := range map[string]string{
		"server.shutdownTimeout":      c.Server.ShutdownTimeout,
		"backend.timeout":             c.Backend.Timeout,
		"embedding.timeout":           c.Embedding.Timeout,
		"embedding.retryBackoff":      c.Embedding.RetryBackoff,
		"orchestrator.subCallTimeout": c.Orchestrator.SubCallTimeout,
		"databases.redis.ttl":         c.Databases.Redis.TTL,
		"ingest.flushEvery":           c.Ingest.FlushEvery,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	setString(&c.Auth.APIKey, "SENTIMATIX_API_KEY")
	setString(&c.Auth.JwtSecret, "SENTIMATIX_JWT_SECRET")
	setString(&c.Backend.BaseURL, "BACKEND_API_URL")
	setString(&c.Backend.APIKey, "BACKEND_API_KEY")
	setString(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "EMBEDDING_MODEL")
	setString(&c.RAG.VectorBackend, "VECTOR_BACKEND")
	setString(&c.Logger.Level, "LOG_LEVEL")
	setString(&c.Databases.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Databases.MySQL.Password, "MYSQL_PASSWORD")
	setString(&c.Databases.MinIO.SecretKey, "MINIO_SECRET_KEY")

	switch c.Embedding.Provider {
	case "openai":
		setString(&c.Embedding.APIKey, "OPENAI_API_KEY")
	case "gemini":
		setString(&c.Embedding.APIKey, "GEMINI_API_KEY")
	case "huggingface":
		setString(&c.Embedding.APIKey, "HUGGINGFACE_API_KEY")
	}
	if v, ok := os.LookupEnv("RAG_MIN_SIMILARITY"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RAG.SimilarityThreshold = f
		}
	}
	if v, ok := os.LookupEnv("RAG_TOP_K"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.RAG.TopK = n
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func (c *AppConfig) applyDefaults() {
	defaultString(&c.App.Name, "sentimatix")
	defaultString(&c.Server.HTTPAddress, ":8080")
	defaultString(&c.Server.GRPCAddress, ":9090")
	defaultString(&c.Server.MCPAddress, ":8001")
	defaultString(&c.Server.MCPTransport, "stdio")
	defaultString(&c.Server.ShutdownTimeout, "5s")
	defaultString(&c.Auth.Header, "X-API-Key")

	defaultString(&c.Backend.Timeout, "30s")
	defaultString(&c.Backend.PriceSource, "backend")
	defaultString(&c.Backend.NewsSource, "backend")
	defaultInt(&c.Backend.NewsPageSize, 100)
	defaultInt(&c.Backend.NewsMaxPages, 50)

	defaultString(&c.Embedding.Provider, "openai")
	defaultString(&c.Embedding.Model, "text-embedding-3-small")
	defaultInt(&c.Embedding.Dimension, 1536)
	defaultInt(&c.Embedding.MaxChars, 30000)
	defaultString(&c.Embedding.Timeout, "15s")
	if c.Embedding.RequestsPerSecond == 0 {
		c.Embedding.RequestsPerSecond = 5
	}
	defaultInt(&c.Embedding.Burst, 5)
	defaultInt(&c.Embedding.MaxRetries, 3)
	defaultString(&c.Embedding.RetryBackoff, "500ms")

	defaultString(&c.RAG.VectorBackend, "memory")
	if c.RAG.SimilarityThreshold == 0 {
		c.RAG.SimilarityThreshold = 0.7
	}
	defaultInt(&c.RAG.TopK, 6)
	if len(c.RAG.AdaptiveThresholds) == 0 {
		c.RAG.AdaptiveThresholds = []float64{0.7, 0.65, 0.6, 0.55, 0.5}
	}
	defaultInt(&c.RAG.MinResults, 3)
	if c.RAG.RecencyHalfLifeDays == 0 {
		c.RAG.RecencyHalfLifeDays = 30
	}
	if c.RAG.FallbackThreshold == 0 {
		c.RAG.FallbackThreshold = 0.5
	}

	defaultString(&c.Orchestrator.SubCallTimeout, "10s")
	defaultInt(&c.Orchestrator.MinCorrelationPoints, 3)
	defaultInt(&c.Orchestrator.EvidenceTopK, 6)
	defaultInt(&c.Orchestrator.HistoricalPriceLimit, 14)
	defaultInt(&c.Orchestrator.MaxRangeDays, 366)

	defaultInt(&c.Sentiment.WindowLimit, 100)

	defaultString(&c.Ingest.Schedule, "@every 1h")
	defaultInt(&c.Ingest.BackfillDays, 7)
	defaultInt(&c.Ingest.Concurrency, 4)
	defaultInt(&c.Ingest.BatchSize, 50)
	defaultString(&c.Ingest.FlushEvery, "2s")
	if c.Ingest.BloomCapacity == 0 {
		c.Ingest.BloomCapacity = 100000
	}

	defaultString(&c.Logger.Level, "info")
	defaultString(&c.Databases.Redis.TTL, "5m")
	defaultString(&c.Databases.Milvus.CollectionName, "news_embeddings")
	defaultString(&c.Databases.Milvus.IndexType, "HNSW")
	defaultInt(&c.Databases.Milvus.SearchEf, 64)
	defaultInt(&c.Databases.Milvus.CandidateFactor, 4)
	defaultString(&c.Databases.Kafka.Topic, "news.processed")
	defaultString(&c.Databases.Kafka.GroupID, "sentimatix-ingest")
	defaultString(&c.Databases.Badger.Path, "data/vectors")
	defaultString(&c.Databases.Etcd.ServiceName, "sentimatix")
	if c.Databases.Etcd.LeaseTTL == 0 {
		c.Databases.Etcd.LeaseTTL = 10
	}
}

func defaultString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func defaultInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

// Duration parses s, returning def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
