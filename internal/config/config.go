package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMConfig describes one model endpoint (embedding or chat).
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Key       string        `yaml:"key"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"`
	// Temperature is only used by the chat model.
	Temperature float64 `yaml:"temperature"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type RAGConfig struct {
	ChunkSize        int      `yaml:"chunk_size"`
	ChunkOverlap     *int     `yaml:"chunk_overlap"`
	VectorSize       int      `yaml:"vector_size"`
	TopK             int      `yaml:"top_k"`
	ScoreThreshold   *float32 `yaml:"score_threshold"`
	MaxHistoryTurns  int      `yaml:"max_history_turns"`
	CondenseQuestion bool     `yaml:"condense_question"`
	FallbackOnEmpty  *bool    `yaml:"fallback_on_empty"`
	FallbackAnswer   string   `yaml:"fallback_answer"`
	SystemPrompt     string   `yaml:"system_prompt"`
}

type VectorStoreConfig struct {
	// Type is "chromem" (default) or "pgvector".
	Type           string `yaml:"type"`
	Path           string `yaml:"path"`
	CollectionName string `yaml:"collection_name"`
	Compress       bool   `yaml:"compress"`
	EncryptionKey  string `yaml:"encryption_key"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SweepEvery   time.Duration `yaml:"sweep_every"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type FetchConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	Timeout     time.Duration `yaml:"timeout"`
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	UserAgent   string        `yaml:"user_agent"`
	NameColumn  string        `yaml:"name_column"`
	URLColumn   string        `yaml:"url_column"`
	DocumentDir string        `yaml:"document_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	ChatLLM     LLMConfig         `yaml:"chat_llm"`
	Database    DatabaseConfig    `yaml:"database"`
	RAG         RAGConfig         `yaml:"rag"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Server      ServerConfig      `yaml:"server"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Log         LogConfig         `yaml:"log"`
}

const (
	defaultChunkSize      = 500
	defaultChunkOverlap   = 100
	defaultVectorSize     = 768
	defaultTopK           = 10
	defaultScoreThreshold = 0.90
	defaultOllamaURL      = "http://localhost:11434"
	defaultEmbedModel     = "nomic-embed-text:latest"
	defaultChatModel      = "gemma3:1b"
	defaultVectorPath     = "./data/vector_store"
	defaultCollection     = "documents"
	defaultDocumentDir    = "./data/documents"
)

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
// Values from the environment (and a .env file, if present) override the file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if cfg.EmbedLLM.BaseURL == "" {
			cfg.EmbedLLM.BaseURL = v
		}
		if cfg.ChatLLM.BaseURL == "" {
			cfg.ChatLLM.BaseURL = v
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.EmbedLLM.Key == "" {
			cfg.EmbedLLM.Key = v
		}
		if cfg.ChatLLM.Key == "" {
			cfg.ChatLLM.Key = v
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("VECTOR_STORE_PATH"); v != "" {
		cfg.VectorStore.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// ApplyDefaults fills every zero value with its default.
func ApplyDefaults(cfg *Config) {
	applyLLMDefaults(&cfg.EmbedLLM, defaultEmbedModel, 30*time.Second)
	applyLLMDefaults(&cfg.ChatLLM, defaultChatModel, 120*time.Second)
	if cfg.EmbedLLM.BatchSize <= 0 {
		cfg.EmbedLLM.BatchSize = 32
	}

	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	overlap := defaultChunkOverlap
	if cfg.RAG.ChunkOverlap != nil {
		overlap = max(*cfg.RAG.ChunkOverlap, 0)
	}
	if overlap >= cfg.RAG.ChunkSize {
		overlap = cfg.RAG.ChunkSize / 2
	}
	cfg.RAG.ChunkOverlap = &overlap
	if cfg.RAG.VectorSize < 0 {
		cfg.RAG.VectorSize = 0
	}
	if cfg.RAG.VectorSize == 0 {
		cfg.RAG.VectorSize = defaultVectorSize
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.ScoreThreshold == nil {
		t := float32(defaultScoreThreshold)
		cfg.RAG.ScoreThreshold = &t
	}
	if cfg.RAG.FallbackOnEmpty == nil {
		on := true
		cfg.RAG.FallbackOnEmpty = &on
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	cfg.VectorStore.Type = strings.ToLower(cfg.VectorStore.Type)
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = defaultVectorPath
	}
	if cfg.VectorStore.CollectionName == "" {
		cfg.VectorStore.CollectionName = defaultCollection
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8001"
	}
	if cfg.Server.SweepEvery <= 0 {
		cfg.Server.SweepEvery = time.Minute
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 300 * time.Second
	}

	if cfg.Fetch.MaxRetries <= 0 {
		cfg.Fetch.MaxRetries = 3
	}
	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = 60 * time.Second
	}
	if cfg.Fetch.MinDelay <= 0 {
		cfg.Fetch.MinDelay = time.Second
	}
	if cfg.Fetch.MaxDelay < cfg.Fetch.MinDelay {
		cfg.Fetch.MaxDelay = 3 * cfg.Fetch.MinDelay
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	}
	if cfg.Fetch.NameColumn == "" {
		cfg.Fetch.NameColumn = "Nombre-Banco"
	}
	if cfg.Fetch.URLColumn == "" {
		cfg.Fetch.URLColumn = "Sitio-Web"
	}
	if cfg.Fetch.DocumentDir == "" {
		cfg.Fetch.DocumentDir = defaultDocumentDir
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func applyLLMDefaults(c *LLMConfig, model string, timeout time.Duration) {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	c.Provider = strings.ToLower(c.Provider)
	if c.BaseURL == "" && c.Provider == "ollama" {
		c.BaseURL = defaultOllamaURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.Timeout <= 0 {
		c.Timeout = timeout
	}
}

// Threshold returns the minimum similarity score for retrieval.
func (c RAGConfig) Threshold() float32 {
	if c.ScoreThreshold == nil {
		return defaultScoreThreshold
	}
	return *c.ScoreThreshold
}

// Overlap returns the number of characters shared by consecutive chunks.
func (c RAGConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return defaultChunkOverlap
	}
	return *c.ChunkOverlap
}

// FallbackEnabled reports whether an empty retrieval short-circuits to the fallback answer.
func (c RAGConfig) FallbackEnabled() bool {
	return c.FallbackOnEmpty == nil || *c.FallbackOnEmpty
}
