package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/cigraph/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextIngest - ingest needs a writable store and, when enabled, an embedding provider
	ValidationContextIngest ValidationContext = "ingest"
	// ValidationContextQuery - query commands need a readable store
	ValidationContextQuery ValidationContext = "query"
	// ValidationContextExport - export commands need a store and Neo4j
	ValidationContextExport ValidationContext = "export"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("warnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Err returns the result as a config error, or nil when valid
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigErrorf("%s", strings.TrimSpace(vr.Error()))
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	return c.ValidateWithMode(ctx, ModeFor(c))
}

// ValidateWithMode validates configuration for the given context and deployment mode
func (c *Config) ValidateWithMode(ctx ValidationContext, mode DeploymentMode) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextIngest:
		c.validateStorage(result, mode)
		c.validateIngest(result)
		c.validateEmbedding(result)
	case ValidationContextQuery:
		c.validateStorage(result, mode)
		c.validateQuery(result)
	case ValidationContextExport:
		c.validateStorage(result, mode)
		c.validateNeo4j(result, true, mode)
	case ValidationContextAll:
		c.validateStorage(result, mode)
		c.validateIngest(result)
		c.validateEmbedding(result)
		c.validateQuery(result)
		c.validateNeo4j(result, false, mode)
		c.validateLog(result)
	}

	return result
}

func (c *Config) validateStorage(result *ValidationResult, mode DeploymentMode) {
	switch c.Storage.Type {
	case StorageMemory:
		result.AddWarning("memory storage keeps nothing between runs")
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			result.AddError("CIG_SQLITE_PATH is required for sqlite storage")
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			result.AddError("CIG_POSTGRES_DSN is required for postgres storage")
			return
		}
		u, err := url.Parse(c.Storage.PostgresDSN)
		if err != nil {
			result.AddError("CIG_POSTGRES_DSN is invalid: %v", err)
			return
		}
		if mode.RequiresSecureCredentials() && strings.Contains(u.Host, "localhost") {
			result.AddWarning("postgres DSN points at localhost in %s mode", mode)
		}
	default:
		result.AddError("storage type %q is not one of memory, sqlite, postgres", c.Storage.Type)
	}
}

func (c *Config) validateIngest(result *ValidationResult) {
	if c.Ingest.BatchSize < 1 {
		result.AddError("ingest batch_size must be at least 1, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.EmbeddingConcurrency < 1 {
		result.AddError("ingest embedding_concurrency must be at least 1, got %d", c.Ingest.EmbeddingConcurrency)
	}
	if c.Ingest.MaxTextLength < 16 {
		result.AddWarning("ingest max_text_length %d truncates nearly every string", c.Ingest.MaxTextLength)
	}
}

func (c *Config) validateEmbedding(result *ValidationResult) {
	switch c.Embedding.Provider {
	case "", "none":
		return
	case "openai":
		if c.Embedding.APIKey == "" {
			result.AddError("OPENAI_API_KEY is required when the embedding provider is openai")
		}
		if c.Embedding.Dimensions < 1 {
			result.AddError("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
		}
		if c.Embedding.RequestsPerSecond < 0 {
			result.AddError("embedding requests_per_second must not be negative")
		}
		if c.Embedding.BaseURL != "" {
			if _, err := url.Parse(c.Embedding.BaseURL); err != nil {
				result.AddError("embedding base_url is invalid: %v", err)
			}
		}
	default:
		result.AddError("embedding provider %q is not one of none, openai", c.Embedding.Provider)
	}
}

func (c *Config) validateQuery(result *ValidationResult) {
	if c.Query.MaxFlowDepth < 0 || c.Query.MaxFlowDepth > 10 {
		result.AddError("query max_flow_depth must be within [0, 10], got %d", c.Query.MaxFlowDepth)
	}
	if c.Query.DefaultLimitEdges < 1 || c.Query.DefaultLimitEdges > 5000 {
		result.AddError("query default_limit_edges must be within [1, 5000], got %d", c.Query.DefaultLimitEdges)
	}
}

func (c *Config) validateNeo4j(result *ValidationResult, required bool, mode DeploymentMode) {
	if c.Neo4j.URI == "" {
		if required {
			result.AddError("NEO4J_URI is required but not set")
		}
		return
	}

	if _, err := url.Parse(c.Neo4j.URI); err != nil {
		result.AddError("NEO4J_URI is invalid: %v", err)
	}
	if strings.Contains(c.Neo4j.URI, "localhost") && mode.RequiresSecureCredentials() {
		result.AddWarning("NEO4J_URI uses localhost in %s mode (%s)", mode, mode.Description())
	}

	if c.Neo4j.User == "" {
		result.AddError("NEO4J_USER is required but not set")
	}

	if c.Neo4j.Password == "" {
		result.AddError("NEO4J_PASSWORD is required but not set. Set it via %s.", mode.ConfigSource())
	} else if c.Neo4j.Password == "password" || c.Neo4j.Password == "neo4j" {
		if mode.RequiresSecureCredentials() {
			result.AddError("NEO4J_PASSWORD is set to an insecure default, which is not allowed in %s mode", mode)
		} else {
			result.AddWarning("NEO4J_PASSWORD is set to a very common password")
		}
	}

	if c.Neo4j.BatchSize < 0 {
		result.AddError("neo4j batch_size must not be negative")
	}
}

func (c *Config) validateLog(result *ValidationResult) {
	switch strings.ToLower(c.Log.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		result.AddError("log level %q is not recognized", c.Log.Level)
	}
}

// RequireNeo4j checks if Neo4j configuration is valid and returns error if not
func (c *Config) RequireNeo4j() error {
	result := &ValidationResult{Valid: true}
	c.validateNeo4j(result, true, ModeFor(c))
	return result.Err()
}
