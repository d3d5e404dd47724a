package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds all configuration settings
type Config struct {
	// Deployment mode override: development, packaged, ci
	Mode string `yaml:"mode" mapstructure:"mode"`

	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Neo4j     Neo4jConfig     `yaml:"neo4j" mapstructure:"neo4j"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "memory", "sqlite", "postgres"
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

type IngestConfig struct {
	BatchSize            int `yaml:"batch_size" mapstructure:"batch_size"`
	EmbeddingConcurrency int `yaml:"embedding_concurrency" mapstructure:"embedding_concurrency"`
	MaxTextLength        int `yaml:"max_text_length" mapstructure:"max_text_length"`
}

type EmbeddingConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // "none", "openai"
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Model             string  `yaml:"model" mapstructure:"model"`
	Dimensions        int     `yaml:"dimensions" mapstructure:"dimensions"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	CachePath         string  `yaml:"cache_path" mapstructure:"cache_path"`
}

type QueryConfig struct {
	MaxFlowDepth      int `yaml:"max_flow_depth" mapstructure:"max_flow_depth"`
	DefaultLimitEdges int `yaml:"default_limit_edges" mapstructure:"default_limit_edges"`
}

type Neo4jConfig struct {
	URI       string `yaml:"uri" mapstructure:"uri"`
	User      string `yaml:"user" mapstructure:"user"`
	Password  string `yaml:"password" mapstructure:"password"`
	Database  string `yaml:"database" mapstructure:"database"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	JSON       bool   `yaml:"json" mapstructure:"json"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageConfig{
			Type:       StorageSQLite,
			SQLitePath: filepath.Join(homeDir, ".cigraph", "graph.db"),
		},
		Ingest: IngestConfig{
			BatchSize:            500,
			EmbeddingConcurrency: 4,
			MaxTextLength:        2000,
		},
		Embedding: EmbeddingConfig{
			Provider:   "none",
			Model:      "text-embedding-3-small",
			Dimensions: 384,
		},
		Query: QueryConfig{
			MaxFlowDepth:      10,
			DefaultLimitEdges: 200,
		},
		Neo4j: Neo4jConfig{
			Database:  "neo4j",
			BatchSize: 1000,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults
	cfg := Default()
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("ingest", cfg.Ingest)
	v.SetDefault("embedding", cfg.Embedding)
	v.SetDefault("query", cfg.Query)
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("log", cfg.Log)

	v.SetEnvPrefix("CIG")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath(".cigraph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".cigraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides a variable that is already set, so earlier files win.
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".cigraph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies explicit environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if mode := os.Getenv("CIG_MODE"); mode != "" {
		cfg.Mode = mode
	}

	// Storage
	cfg.Storage.Type = GetString("CIG_STORAGE_TYPE", cfg.Storage.Type)
	if path := os.Getenv("CIG_SQLITE_PATH"); path != "" {
		cfg.Storage.SQLitePath = expandPath(path)
	}
	cfg.Storage.PostgresDSN = GetString("CIG_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	// Ingest
	cfg.Ingest.BatchSize = GetInt("CIG_BATCH_SIZE", cfg.Ingest.BatchSize)
	cfg.Ingest.EmbeddingConcurrency = GetInt("CIG_EMBEDDING_CONCURRENCY", cfg.Ingest.EmbeddingConcurrency)
	cfg.Ingest.MaxTextLength = GetInt("CIG_MAX_TEXT_LENGTH", cfg.Ingest.MaxTextLength)

	// Embedding
	// Precedence: 1. Env var (highest) 2. Config file 3. Keychain
	cfg.Embedding.Provider = GetString("CIG_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Embedding.APIKey = key
	} else if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if keychainKey, err := km.GetAPIKey(); err == nil && keychainKey != "" {
				cfg.Embedding.APIKey = keychainKey
			}
		}
	}
	cfg.Embedding.BaseURL = GetString("OPENAI_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Model = GetString("CIG_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimensions = GetInt("CIG_EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)
	cfg.Embedding.RequestsPerSecond = GetFloat("CIG_EMBEDDING_RPS", cfg.Embedding.RequestsPerSecond)
	if path := os.Getenv("CIG_EMBEDDING_CACHE"); path != "" {
		cfg.Embedding.CachePath = expandPath(path)
	}

	// Query
	cfg.Query.MaxFlowDepth = GetInt("CIG_MAX_FLOW_DEPTH", cfg.Query.MaxFlowDepth)
	cfg.Query.DefaultLimitEdges = GetInt("CIG_DEFAULT_LIMIT_EDGES", cfg.Query.DefaultLimitEdges)

	// Neo4j
	cfg.Neo4j.URI = GetString("NEO4J_URI", cfg.Neo4j.URI)
	cfg.Neo4j.User = GetString("NEO4J_USER", cfg.Neo4j.User)
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	} else if cfg.Neo4j.Password == "" && cfg.Neo4j.URI != "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if keychainPassword, err := km.GetNeo4jPassword(); err == nil && keychainPassword != "" {
				cfg.Neo4j.Password = keychainPassword
			}
		}
	}
	cfg.Neo4j.Database = GetString("NEO4J_DATABASE", cfg.Neo4j.Database)

	// Logging
	cfg.Log.Level = GetString("CIG_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.JSON = GetBool("CIG_LOG_JSON", cfg.Log.JSON)
	if file := os.Getenv("CIG_LOG_FILE"); file != "" {
		cfg.Log.File = expandPath(file)
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file. Secrets are left out; they belong in
// the environment or the keychain.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	embedding := c.Embedding
	embedding.APIKey = ""
	neo := c.Neo4j
	neo.Password = ""

	v.Set("mode", c.Mode)
	v.Set("storage", c.Storage)
	v.Set("ingest", c.Ingest)
	v.Set("embedding", embedding)
	v.Set("query", c.Query)
	v.Set("neo4j", neo)
	v.Set("log", c.Log)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
