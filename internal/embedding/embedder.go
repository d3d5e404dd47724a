package embedding

import (
	"context"
	"strings"
)

// Dimensions is the vector length every embedder in this package produces
const Dimensions = 384

// Embedder maps text to a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts a plain function to the Embedder interface
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed calls f
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Provider names accepted by New
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
)

// Config selects and tunes the embedder built by New
type Config struct {
	Provider          string
	APIKey            string
	BaseURL           string
	Model             string
	Dimensions        int
	RequestsPerSecond float64
	CachePath         string
}

// New builds the configured embedder. A "none" provider (or an empty one)
// returns nil, which ingestion treats as "no enrichment". The returned close
// function releases the cache file when one is opened.
func New(cfg Config) (Embedder, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderNone:
		return nil, noop, nil
	case ProviderOpenAI:
	default:
		return nil, noop, &UnknownProviderError{Provider: cfg.Provider}
	}

	var e Embedder = NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	if cfg.RequestsPerSecond > 0 {
		e = NewRateLimited(e, cfg.RequestsPerSecond)
	}
	if cfg.CachePath == "" {
		return e, noop, nil
	}

	cache, err := OpenBoltCache(cfg.CachePath, cfg.Model, e)
	if err != nil {
		return nil, noop, err
	}
	return cache, cache.Close, nil
}

// UnknownProviderError reports an unsupported embedding provider
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return "unknown embedding provider: " + e.Provider
}
