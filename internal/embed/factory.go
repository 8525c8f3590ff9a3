package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/gaspardpetit/findx/internal/config"
)

// Provider identifies which Embedder implementation to construct.
type Provider string

const (
	// ProviderDisabled means no dense-vector embedder is wired; search runs
	// lexical-only.
	ProviderDisabled Provider = "disabled"

	// ProviderStatic uses the local, deterministic hash-based embedder.
	ProviderStatic Provider = "static"

	// ProviderHTTP uses a remote embedding service reachable over HTTP.
	ProviderHTTP Provider = "http"
)

// ParseProvider converts a config string to a Provider, defaulting to
// ProviderDisabled for anything unrecognized.
func ParseProvider(s string) Provider {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static":
		return ProviderStatic
	case "http":
		return ProviderHTTP
	default:
		return ProviderDisabled
	}
}

// New constructs an Embedder from cfg. The caller owns the returned
// embedder's lifecycle (and must Close it); New never stores state in a
// package-level variable, so callers are free to build more than one with
// different configs in the same process.
//
// Returns (nil, nil) when cfg.Provider is "disabled" — callers that run
// search without a dense index should treat a nil Embedder as lexical-only.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	switch ParseProvider(cfg.Provider) {
	case ProviderDisabled:
		return nil, nil

	case ProviderStatic:
		return NewCachedEmbedderWithDefaults(NewStaticEmbedder()), nil

	case ProviderHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("embedding provider %q requires a url", cfg.Provider)
		}
		httpCfg := DefaultHTTPConfig(cfg.URL)
		httpCfg.APIKey = cfg.APIKey
		httpCfg.Model = cfg.Model
		embedder, err := NewHTTPEmbedder(ctx, httpCfg)
		if err != nil {
			return nil, fmt.Errorf("http embedder unavailable: %w", err)
		}
		return NewCachedEmbedderWithDefaults(embedder), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
