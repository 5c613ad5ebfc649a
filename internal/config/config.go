package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Documents    []string       `yaml:"documents"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	OCRLLM       LLMConfig      `yaml:"ocr_llm"`
	RAG          RAGConfig      `yaml:"rag"`
	Store        StoreConfig    `yaml:"store"`
	Database     DatabaseConfig `yaml:"database"`
}

type LLMConfig struct {
	Provider    string `yaml:"provider" validate:"omitempty,oneof=ollama openai"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Key         string `yaml:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
}

type RAGConfig struct {
	TopK          int    `yaml:"top_k" validate:"gte=0"`
	ChunkSize     int    `yaml:"chunk_size" validate:"gte=0"`
	ChunkOverlap  int    `yaml:"chunk_overlap" validate:"gte=0"`
	Metric        string `yaml:"metric" validate:"oneof=l2 cosine"`
	EncryptionKey string `yaml:"encryption_key" validate:"omitempty,len=32"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file postgres"`
	Dir     string `yaml:"dir"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver" validate:"oneof=pgdriver pq"`
	Table    string `yaml:"table"`
	Debug    bool   `yaml:"debug"`
}

const (
	defaultProvider     = "ollama"
	defaultOllamaURL    = "http://localhost:11434"
	defaultEmbedModel   = "all-minilm"
	defaultInferModel   = "mistral"
	defaultOCRModel     = "llava"
	defaultTimeoutSecs  = 120
	defaultStoreDir     = "./index"
	defaultTable        = "chunks"
	defaultDriver       = "pgdriver"
	defaultStoreBackend = "file"
)

// LoadConfig reads a YAML config, expanding ${VAR} references from the
// environment, then fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Store.Backend == "postgres" && cfg.Database.URL == "" {
		return nil, fmt.Errorf("invalid config: database.url is required for the postgres store")
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	applyLLMDefaults(&cfg.EmbedLLM, defaultEmbedModel)
	applyLLMDefaults(&cfg.InferenceLLM, defaultInferModel)
	applyLLMDefaults(&cfg.OCRLLM, defaultOCRModel)

	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 3
	}
	if cfg.RAG.Metric == "" {
		cfg.RAG.Metric = "l2"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = defaultStoreBackend
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = defaultStoreDir
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaultDriver
	}
	if cfg.Database.Table == "" {
		cfg.Database.Table = defaultTable
	}
}

func applyLLMDefaults(c *LLMConfig, model string) {
	if c.Provider == "" {
		c.Provider = defaultProvider
	}
	if c.BaseURL == "" && c.Provider == "ollama" {
		c.BaseURL = defaultOllamaURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = defaultTimeoutSecs
	}
}
