package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type LogConfig struct {
	Level string
}

// LLMConfig selects the chat provider and its model chain. Provider is
// "gemini" or "groq"; FallbackModels are tried in order after Model when a
// generation call fails.
type LLMConfig struct {
	Provider       string
	GeminiAPIKey   string
	GeminiModel    string
	GroqAPIKey     string
	GroqBaseURL    string
	GroqModel      string
	FallbackModels []string
}

type EmbeddingConfig struct {
	Model string
	// Dimensions must match the collection the corpus was ingested with.
	Dimensions int
}

type VectorConfig struct {
	Collection string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK int
}

type IngestConfig struct {
	DocsDir      string
	ChunkSize    int
	ChunkOverlap int
}

type AdminConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			GeminiModel: "gemini-2.5-flash",
			GroqBaseURL: "https://api.groq.com/openai/v1",
			GroqModel:   "llama-3.3-70b-versatile",
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-004",
			Dimensions: 768,
		},
		Vector: VectorConfig{
			Collection: "physical_ai_book",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Ingest: IngestConfig{
			DocsDir:      "docs",
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bookworm"
	}
	return home + "/.bookworm"
}

// Load reads configuration from a .env file (if present) and BOOKWORM_*
// environment variables, applied on top of the defaults. The API key for
// the selected LLM provider is required; everything else has a default.
func Load() (Config, error) {
	// Missing .env is fine; env vars may come from the environment proper.
	_ = godotenv.Load()
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()

	setString(getenv, "BOOKWORM_HOST", &cfg.Server.Host)
	setInt(getenv, "BOOKWORM_PORT", &cfg.Server.Port)
	setString(getenv, "BOOKWORM_LOG_LEVEL", &cfg.Log.Level)

	setString(getenv, "BOOKWORM_LLM_PROVIDER", &cfg.LLM.Provider)
	setString(getenv, "BOOKWORM_GEMINI_API_KEY", &cfg.LLM.GeminiAPIKey)
	setString(getenv, "BOOKWORM_GEMINI_MODEL", &cfg.LLM.GeminiModel)
	setString(getenv, "BOOKWORM_GROQ_API_KEY", &cfg.LLM.GroqAPIKey)
	setString(getenv, "BOOKWORM_GROQ_BASE_URL", &cfg.LLM.GroqBaseURL)
	setString(getenv, "BOOKWORM_GROQ_MODEL", &cfg.LLM.GroqModel)
	if v := getenv("BOOKWORM_FALLBACK_MODELS"); v != "" {
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				cfg.LLM.FallbackModels = append(cfg.LLM.FallbackModels, m)
			}
		}
	}

	setString(getenv, "BOOKWORM_EMBED_MODEL", &cfg.Embedding.Model)
	setInt(getenv, "BOOKWORM_EMBED_DIMENSIONS", &cfg.Embedding.Dimensions)
	setString(getenv, "BOOKWORM_COLLECTION", &cfg.Vector.Collection)
	setString(getenv, "BOOKWORM_DATA_DIR", &cfg.Storage.DataDir)
	setInt(getenv, "BOOKWORM_TOP_K", &cfg.Retrieval.TopK)
	setString(getenv, "BOOKWORM_DOCS_DIR", &cfg.Ingest.DocsDir)
	setInt(getenv, "BOOKWORM_CHUNK_SIZE", &cfg.Ingest.ChunkSize)
	setInt(getenv, "BOOKWORM_CHUNK_OVERLAP", &cfg.Ingest.ChunkOverlap)
	setString(getenv, "BOOKWORM_ADMIN_TOKEN", &cfg.Admin.Token)

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("missing required config: Gemini API key. Set BOOKWORM_GEMINI_API_KEY")
		}
	case "groq":
		if cfg.LLM.GroqAPIKey == "" {
			return Config{}, fmt.Errorf("missing required config: Groq API key. Set BOOKWORM_GROQ_API_KEY")
		}
	default:
		return Config{}, fmt.Errorf("unknown LLM provider %q (expected gemini or groq)", cfg.LLM.Provider)
	}

	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Ingest.ChunkSize <= 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap < 0 || cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		cfg.Ingest.ChunkOverlap = cfg.Ingest.ChunkSize / 5
	}

	return cfg, nil
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(getenv func(string) string, key string, dst *int) {
	v := getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}
