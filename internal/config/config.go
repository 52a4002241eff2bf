// Package config loads and validates user-tunable configuration.
// Precedence: defaults, then the project's .searchmcp.yaml, then
// SEARCHMCP_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/blakazulu/search-mcp/internal/errors"
)

// ProjectConfigName is the per-project config file name.
const ProjectConfigName = ".searchmcp.yaml"

// Strategy names for the indexing strategy selection.
const (
	StrategyRealtime = "realtime"
	StrategyLazy     = "lazy"
	StrategyGit      = "git"
)

// Config is the complete user configuration.
type Config struct {
	Version int `yaml:"version" json:"version"`

	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Compute    ComputeConfig    `yaml:"compute" json:"compute"`
}

// ChunkingConfig tunes the chunker.
type ChunkingConfig struct {
	ChunkSize        int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxChunksPerFile int `yaml:"max_chunks_per_file" json:"max_chunks_per_file"`
}

// SearchConfig tunes hybrid search defaults.
type SearchConfig struct {
	// Mode is vector, keyword, or hybrid.
	Mode string `yaml:"mode" json:"mode"`

	// Alpha is the vector weight in [0,1]; keyword gets 1-alpha.
	Alpha float64 `yaml:"alpha" json:"alpha"`

	// RRFConstant is the fusion smoothing parameter k.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// FTSBackend selects "sqlite" (default) or "bleve".
	FTSBackend string `yaml:"fts_backend" json:"fts_backend"`

	// MaxExpansionTerms caps query-expansion synonyms.
	MaxExpansionTerms int `yaml:"max_expansion_terms" json:"max_expansion_terms"`
}

// EmbeddingsConfig selects the embedding backend and models.
type EmbeddingsConfig struct {
	Backend        string `yaml:"backend" json:"backend"` // ollama, static, auto
	Host           string `yaml:"host" json:"host"`
	CodeModel      string `yaml:"code_model" json:"code_model"`
	CodeDimensions int    `yaml:"code_dimensions" json:"code_dimensions"`
	DocsModel      string `yaml:"docs_model" json:"docs_model"`
	DocsDimensions int    `yaml:"docs_dimensions" json:"docs_dimensions"`
	BatchSize      int    `yaml:"batch_size" json:"batch_size"`
}

// IndexingConfig selects and tunes the indexing strategy.
type IndexingConfig struct {
	// Strategy is realtime, lazy, or git.
	Strategy string `yaml:"strategy" json:"strategy"`

	// DebounceMs is the realtime watcher debounce in milliseconds.
	DebounceMs int `yaml:"debounce_ms" json:"debounce_ms"`

	// GitDebounceMs is the git strategy debounce in milliseconds.
	GitDebounceMs int `yaml:"git_debounce_ms" json:"git_debounce_ms"`

	// PeriodicCheckHours is the integrity check interval (0 disables).
	PeriodicCheckHours int `yaml:"periodic_check_hours" json:"periodic_check_hours"`

	// MaxDepth bounds directory traversal.
	MaxDepth int `yaml:"max_depth" json:"max_depth"`

	// MaxFiles bounds the walk result count.
	MaxFiles int `yaml:"max_files" json:"max_files"`

	// ScanTimeoutSec is the hard walk timeout.
	ScanTimeoutSec int `yaml:"scan_timeout_sec" json:"scan_timeout_sec"`
}

// PathsConfig adds user exclude patterns on top of the policy.
type PathsConfig struct {
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// ComputeConfig records device preferences for embedding backends.
// Device selection itself lives behind the Embedder interface.
type ComputeConfig struct {
	PreferGPU bool `yaml:"prefer_gpu" json:"prefer_gpu"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Chunking: ChunkingConfig{
			ChunkSize:        8000,
			ChunkOverlap:     200,
			MaxChunksPerFile: 1000,
		},
		Search: SearchConfig{
			Mode:              "hybrid",
			Alpha:             0.65,
			RRFConstant:       60,
			FTSBackend:        "sqlite",
			MaxExpansionTerms: 10,
		},
		Embeddings: EmbeddingsConfig{
			Backend:        "auto",
			CodeModel:      "nomic-embed-text",
			CodeDimensions: 384,
			DocsModel:      "nomic-embed-text",
			DocsDimensions: 768,
			BatchSize:      32,
		},
		Indexing: IndexingConfig{
			Strategy:           StrategyRealtime,
			DebounceMs:         300,
			GitDebounceMs:      2000,
			PeriodicCheckHours: 24,
			MaxDepth:           20,
			MaxFiles:           100000,
			ScanTimeoutSec:     30,
		},
	}
}

// Load reads configuration for a project root with full precedence.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(projectRoot, ProjectConfigName)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New(errors.ErrCodeConfigInvalid, "invalid "+ProjectConfigName, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SEARCHMCP_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Alpha = f
		}
	}
	if v := os.Getenv("SEARCHMCP_MODE"); v != "" {
		cfg.Search.Mode = v
	}
	if v := os.Getenv("SEARCHMCP_STRATEGY"); v != "" {
		cfg.Indexing.Strategy = v
	}
	if v := os.Getenv("SEARCHMCP_EMBED_BACKEND"); v != "" {
		cfg.Embeddings.Backend = v
	}
	if v := os.Getenv("SEARCHMCP_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.Host = v
	}
	if v := os.Getenv("SEARCHMCP_FTS_BACKEND"); v != "" {
		cfg.Search.FTSBackend = v
	}
}

// Validate checks ranges, clamping where a default is safe and
// erroring where the value is nonsense.
func (c *Config) Validate() error {
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("search.alpha must be in [0,1], got %v", c.Search.Alpha), nil)
	}
	switch c.Search.Mode {
	case "vector", "keyword", "hybrid":
	default:
		return errors.New(errors.ErrCodeConfigInvalid, "search.mode must be vector, keyword, or hybrid", nil)
	}
	switch c.Indexing.Strategy {
	case StrategyRealtime, StrategyLazy, StrategyGit:
	default:
		return errors.New(errors.ErrCodeConfigInvalid, "indexing.strategy must be realtime, lazy, or git", nil)
	}

	if c.Chunking.ChunkSize <= 0 {
		c.Chunking.ChunkSize = 8000
	}
	if c.Chunking.MaxChunksPerFile <= 0 || c.Chunking.MaxChunksPerFile > 1000 {
		c.Chunking.MaxChunksPerFile = 1000
	}
	if c.Indexing.MaxDepth <= 0 || c.Indexing.MaxDepth > 20 {
		c.Indexing.MaxDepth = 20
	}
	if c.Indexing.MaxFiles <= 0 || c.Indexing.MaxFiles > 100000 {
		c.Indexing.MaxFiles = 100000
	}
	return nil
}

// Save writes the config YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return os.WriteFile(path, data, 0o644)
}
