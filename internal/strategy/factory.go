package strategy

import (
	"time"

	"github.com/blakazulu/search-mcp/internal/config"
	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/index"
)

// New creates the configured strategy for a dual index.
func New(cfg *config.Config, dual *index.Dual, integrity *index.IntegrityEngine) (Strategy, error) {
	switch cfg.Indexing.Strategy {
	case config.StrategyRealtime, "":
		return NewRealtime(dual, time.Duration(cfg.Indexing.DebounceMs)*time.Millisecond), nil
	case config.StrategyLazy:
		return NewLazy(dual), nil
	case config.StrategyGit:
		return NewGit(dual, integrity, time.Duration(cfg.Indexing.GitDebounceMs)*time.Millisecond), nil
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid, "unknown indexing strategy: "+cfg.Indexing.Strategy, nil)
	}
}
