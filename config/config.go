package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	StoreSQLite   = "sqlite"
	StoreWeaviate = "weaviate"
)

const DefaultSystemPrompt = `You are the teaching assistant for this course. Answer students' questions from the course material you are given. Answering strategy:
1. Prefer the provided [Course material] when answering.
2. If the [Course material] is not enough to answer fully, you may supplement it with general knowledge, but say so clearly.
3. When quoting course material, cite the source (file name, page or position) where possible.
4. Keep a warm, encouraging tone, like a patient teacher.
5. If a question is unrelated to the course, politely steer the student back to the course topics.`

type Config struct {
	Host         string            `mapstructure:"host"`
	Port         string            `mapstructure:"port"`
	DataDir      string            `mapstructure:"data_dir"`
	LogLevel     string            `mapstructure:"log_level"`
	LLM          LLMConfig         `mapstructure:"llm"`
	Embedding    EmbeddingConfig   `mapstructure:"embedding"`
	VectorStore  VectorStoreConfig `mapstructure:"vector_store"`
	ChunkSize    int               `mapstructure:"chunk_size"`
	ChunkOverlap int               `mapstructure:"chunk_overlap"`
	TopK         int               `mapstructure:"top_k"`
	Temperature  float32           `mapstructure:"temperature"`
	MaxTokens    int               `mapstructure:"max_tokens"`
	BatchSize    int               `mapstructure:"batch_size"`
	OCRFallback  bool              `mapstructure:"ocr_fallback"`
	SystemPrompt string            `mapstructure:"system_prompt"`
}

type LLMConfig struct {
	Provider     string `mapstructure:"provider"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
}

type EmbeddingConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type VectorStoreConfig struct {
	Type       string              `mapstructure:"type"`
	Path       string              `mapstructure:"path"`
	Collection string              `mapstructure:"collection"`
	Weaviate   WeaviateStoreConfig `mapstructure:"weaviate"`
}

type WeaviateStoreConfig struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"WEAVIATE_APIKEY"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", "8848")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("llm.model", "qwen-plus")
	v.SetDefault("embedding.model", "text-embedding-v1")
	v.SetDefault("vector_store.type", StoreSQLite)
	v.SetDefault("vector_store.path", "./vector_db")
	v.SetDefault("vector_store.collection", "course_knowledge")
	v.SetDefault("vector_store.weaviate.host", "http://localhost:8080")
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 50)
	v.SetDefault("top_k", 3)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 1500)
	v.SetDefault("batch_size", 32)
	v.SetDefault("ocr_fallback", false)
	v.SetDefault("system_prompt", DefaultSystemPrompt)
}

// LoadConfig reads configPath (optional when empty or missing) and the
// environment. Secrets are only ever taken from the environment or .env.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.BindEnv("llm.OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("llm.GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("vector_store.weaviate.WEAVIATE_APIKEY", "WEAVIATE_APIKEY")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings that would otherwise fail late, halfway through a rebuild.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, c.LLM.Provider)
	}
	switch c.VectorStore.Type {
	case StoreSQLite, StoreWeaviate:
	default:
		return fmt.Errorf("%w: unknown vector store %q", ErrInvalidConfig, c.VectorStore.Type)
	}
	if strings.TrimSpace(c.VectorStore.Collection) == "" {
		return fmt.Errorf("%w: vector_store.collection is required", ErrInvalidConfig)
	}
	return nil
}

// EmbeddingBaseURL falls back to the completion endpoint, which serves both on
// OpenAI-compatible gateways.
func (c *Config) EmbeddingBaseURL() string {
	if c.Embedding.BaseURL != "" {
		return c.Embedding.BaseURL
	}
	return c.LLM.BaseURL
}
