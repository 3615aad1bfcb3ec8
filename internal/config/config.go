package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModel             = "claude-sonnet-4-5-20250929"
	DefaultGeminiModel       = "gemini-2.0-flash"
	DefaultMaxTokens         = 4096
	DefaultMaxToolIterations = 8

	DefaultMaxAttempts = 3
	DefaultTaxRate     = 0.18
	DefaultCyclePause  = "1s"

	DefaultTextEmbeddingModel      = "all-MiniLM-L6-v2"
	DefaultTextEmbeddingDimension  = 384
	DefaultImageEmbeddingModel     = "clip-ViT-B-32"
	DefaultImageEmbeddingDimension = 512
	DefaultEmbeddingTimeoutMs      = 30000

	DefaultVectorBackend = "qdrant"
	DefaultQdrantHost    = "localhost"
	DefaultQdrantPort    = 6334
	DefaultCollection    = "civic_audit_evidence"

	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultProjectID    = "P1"
	DefaultContractorID = "C_99"

	geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

type Config struct {
	Provider    ProviderConfig    `json:"provider" yaml:"provider"`
	Agent       AgentConfig       `json:"agent" yaml:"agent"`
	Audit       AuditConfig       `json:"audit" yaml:"audit"`
	Embedding   EmbeddingConfig   `json:"embedding" yaml:"embedding"`
	VectorStore VectorStoreConfig `json:"vectorStore" yaml:"vectorStore"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty" yaml:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey" yaml:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
}

type AgentConfig struct {
	Model             string `json:"model" yaml:"model"`
	VisionModel       string `json:"visionModel,omitempty" yaml:"visionModel,omitempty"`
	MaxTokens         int    `json:"maxTokens" yaml:"maxTokens"`
	MaxToolIterations int    `json:"maxToolIterations" yaml:"maxToolIterations"`
	Workspace         string `json:"workspace,omitempty" yaml:"workspace,omitempty"`
}

type AuditConfig struct {
	MaxAttempts int     `json:"maxAttempts" yaml:"maxAttempts"`
	TaxRate     float64 `json:"taxRate" yaml:"taxRate"`
	CyclePause  string  `json:"cyclePause" yaml:"cyclePause"`
}

type EmbeddingConfig struct {
	Text  EmbedderConfig `json:"text" yaml:"text"`
	Image EmbedderConfig `json:"image" yaml:"image"`
}

type EmbedderConfig struct {
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty"` // "api" (default) or "ollama"
	BaseURL   string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	APIKey    string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model     string `json:"model" yaml:"model"`
	Dimension int    `json:"dimension" yaml:"dimension"`
	TimeoutMs int    `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

type VectorStoreConfig struct {
	Backend    string `json:"backend" yaml:"backend"` // "qdrant" (default) or "sqlite"
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	APIKey     string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	UseTLS     bool   `json:"useTls,omitempty" yaml:"useTls,omitempty"`
	Collection string `json:"collection" yaml:"collection"`
	DBPath     string `json:"dbPath,omitempty" yaml:"dbPath,omitempty"`
}

type IngestConfig struct {
	DataDir      string `json:"dataDir" yaml:"dataDir"`
	ChunkSize    int    `json:"chunkSize" yaml:"chunkSize"`
	ChunkOverlap int    `json:"chunkOverlap" yaml:"chunkOverlap"`
	ProjectID    string `json:"projectId" yaml:"projectId"`
	ContractorID string `json:"contractorId" yaml:"contractorId"`
	Schedule     string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{},
		Agent: AgentConfig{
			Model:             DefaultModel,
			MaxTokens:         DefaultMaxTokens,
			MaxToolIterations: DefaultMaxToolIterations,
			Workspace:         filepath.Join(ConfigDir(), "workspace"),
		},
		Audit: AuditConfig{
			MaxAttempts: DefaultMaxAttempts,
			TaxRate:     DefaultTaxRate,
			CyclePause:  DefaultCyclePause,
		},
		Embedding: EmbeddingConfig{
			Text: EmbedderConfig{
				Model:     DefaultTextEmbeddingModel,
				Dimension: DefaultTextEmbeddingDimension,
				TimeoutMs: DefaultEmbeddingTimeoutMs,
			},
			Image: EmbedderConfig{
				Model:     DefaultImageEmbeddingModel,
				Dimension: DefaultImageEmbeddingDimension,
				TimeoutMs: DefaultEmbeddingTimeoutMs,
			},
		},
		VectorStore: VectorStoreConfig{
			Backend:    DefaultVectorBackend,
			Host:       DefaultQdrantHost,
			Port:       DefaultQdrantPort,
			Collection: DefaultCollection,
			DBPath:     filepath.Join(ConfigDir(), "evidence.db"),
		},
		Ingest: IngestConfig{
			DataDir:      "data",
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			ProjectID:    DefaultProjectID,
			ContractorID: DefaultContractorID,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".vouchvault")
}

// ConfigPath honours VOUCHVAULT_CONFIG, which may point at a .json or .yaml file.
func ConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("VOUCHVAULT_CONFIG")); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.json")
}

// ContractsDir is where ingestion looks for contract PDFs.
func (c *Config) ContractsDir() string {
	return filepath.Join(c.Ingest.DataDir, "contracts")
}

// PhotosDir is where ingestion and the visual auditor look for site photos.
func (c *Config) PhotosDir() string {
	return filepath.Join(c.Ingest.DataDir, "site_photos")
}

// CyclePauseDuration parses Audit.CyclePause, falling back to the default on bad input.
func (c *Config) CyclePauseDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Audit.CyclePause))
	if err != nil || d < 0 {
		d, _ = time.ParseDuration(DefaultCyclePause)
	}
	return d
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// loadDotEnv reads VOUCHVAULT_ENV_FILE (default .env) without overriding variables
// that are already set.
func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("VOUCHVAULT_ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("VOUCHVAULT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	// Gemini is reached through its OpenAI-compatible endpoint.
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
		if cfg.Provider.BaseURL == "" {
			cfg.Provider.BaseURL = geminiOpenAIBaseURL
		}
		if cfg.Agent.Model == DefaultModel {
			cfg.Agent.Model = DefaultGeminiModel
		}
	}
	if t := os.Getenv("VOUCHVAULT_PROVIDER"); t != "" {
		cfg.Provider.Type = t
	}
	if url := os.Getenv("VOUCHVAULT_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("VOUCHVAULT_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if model := os.Getenv("VOUCHVAULT_VISION_MODEL"); model != "" {
		cfg.Agent.VisionModel = model
	}
	if attempts := os.Getenv("VOUCHVAULT_MAX_ATTEMPTS"); attempts != "" {
		if parsed, err := strconv.Atoi(attempts); err == nil {
			cfg.Audit.MaxAttempts = parsed
		}
	}
	if rate := os.Getenv("VOUCHVAULT_TAX_RATE"); rate != "" {
		if parsed, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Audit.TaxRate = parsed
		}
	}
	if pause := os.Getenv("VOUCHVAULT_CYCLE_PAUSE"); pause != "" {
		cfg.Audit.CyclePause = pause
	}
	if url := os.Getenv("VOUCHVAULT_EMBEDDING_BASE_URL"); url != "" {
		cfg.Embedding.Text.BaseURL = url
		cfg.Embedding.Image.BaseURL = url
	}
	if key := os.Getenv("VOUCHVAULT_EMBEDDING_API_KEY"); key != "" {
		cfg.Embedding.Text.APIKey = key
		cfg.Embedding.Image.APIKey = key
	}
	if backend := os.Getenv("VOUCHVAULT_VECTOR_BACKEND"); backend != "" {
		cfg.VectorStore.Backend = backend
	}
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		cfg.VectorStore.Host = host
	}
	if port := os.Getenv("QDRANT_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.VectorStore.Port = parsed
		}
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		cfg.VectorStore.APIKey = key
	}
	if dbPath := os.Getenv("VOUCHVAULT_EVIDENCE_DB"); dbPath != "" {
		cfg.VectorStore.DBPath = dbPath
	}
	if dir := os.Getenv("VOUCHVAULT_DATA_DIR"); dir != "" {
		cfg.Ingest.DataDir = dir
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = defaults.Agent.Model
	}
	if cfg.Agent.VisionModel == "" {
		cfg.Agent.VisionModel = cfg.Agent.Model
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = defaults.Agent.MaxTokens
	}
	if cfg.Agent.MaxToolIterations <= 0 {
		cfg.Agent.MaxToolIterations = defaults.Agent.MaxToolIterations
	}
	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = defaults.Agent.Workspace
	}
	if cfg.Audit.MaxAttempts <= 0 {
		cfg.Audit.MaxAttempts = defaults.Audit.MaxAttempts
	}
	if cfg.Audit.TaxRate <= 0 {
		cfg.Audit.TaxRate = defaults.Audit.TaxRate
	}
	if cfg.Audit.CyclePause == "" {
		cfg.Audit.CyclePause = defaults.Audit.CyclePause
	}
	if cfg.Embedding.Text.Dimension <= 0 {
		cfg.Embedding.Text.Dimension = defaults.Embedding.Text.Dimension
	}
	if cfg.Embedding.Image.Dimension <= 0 {
		cfg.Embedding.Image.Dimension = defaults.Embedding.Image.Dimension
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = defaults.VectorStore.Backend
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = defaults.VectorStore.Collection
	}
	if cfg.VectorStore.DBPath == "" {
		cfg.VectorStore.DBPath = defaults.VectorStore.DBPath
	}
	if cfg.Ingest.DataDir == "" {
		cfg.Ingest.DataDir = defaults.Ingest.DataDir
	}
	if cfg.Ingest.ChunkSize <= 0 {
		cfg.Ingest.ChunkSize = defaults.Ingest.ChunkSize
	}
	if cfg.Ingest.ChunkOverlap < 0 || cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		cfg.Ingest.ChunkOverlap = defaults.Ingest.ChunkOverlap
		if cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
			cfg.Ingest.ChunkOverlap = 0
		}
	}
}

func SaveConfig(cfg *Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
