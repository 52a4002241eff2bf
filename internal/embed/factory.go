package embed

import (
	"context"
	"log/slog"
	"time"
)

// Backend names.
const (
	BackendOllama = "ollama"
	BackendStatic = "static"
	BackendAuto   = "auto"
)

// FactoryConfig selects and configures the embedding backend.
type FactoryConfig struct {
	Backend    string // ollama, static, auto (default: auto)
	Model      string
	Host       string
	Dimensions int
	BatchSize  int
	CacheSize  int
	Timeout    time.Duration
}

// New creates the configured embedder wrapped in the LRU cache.
// Backend "auto" probes Ollama and falls back to the static embedder
// when unreachable, logging the reason.
func New(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	var inner Embedder

	switch cfg.Backend {
	case BackendStatic:
		inner = NewStaticEmbedder()
	case BackendOllama:
		inner = newOllama(cfg)
	case BackendAuto, "":
		candidate := newOllama(cfg)
		if candidate.Available(ctx) {
			inner = candidate
		} else {
			slog.Warn("ollama unreachable, falling back to static embedder",
				slog.String("host", candidate.config.Host))
			_ = candidate.Close()
			inner = NewStaticEmbedder()
		}
	default:
		slog.Warn("unknown embedding backend, using static",
			slog.String("backend", cfg.Backend))
		inner = NewStaticEmbedder()
	}

	return NewCachedEmbedder(inner, cfg.CacheSize)
}

func newOllama(cfg FactoryConfig) *OllamaEmbedder {
	return NewOllamaEmbedder(OllamaConfig{
		Host:       cfg.Host,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		BatchSize:  cfg.BatchSize,
		Timeout:    cfg.Timeout,
	})
}
