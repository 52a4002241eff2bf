package chunk

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/pathsafe"
)

// SymbolInfo describes one extracted symbol.
type SymbolInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Signature string `json:"signature,omitempty"`
	Docstring string `json:"docstring,omitempty"`
}

// Complexity aggregates the file's complexity measures. Score is
// 0-100 with higher meaning simpler.
type Complexity struct {
	Cyclomatic     int `json:"cyclomatic"`
	NestingDepth   int `json:"nestingDepth"`
	DecisionPoints int `json:"decisionPoints"`
	Score          int `json:"score"`
}

// FileSummary is the result of ExtractFileSummary.
type FileSummary struct {
	Path             string       `json:"path"`
	Language         string       `json:"language"`
	Lines            int          `json:"lines"`
	CodeLines        int          `json:"codeLines"`
	BlankLines       int          `json:"blankLines"`
	CommentLines     int          `json:"commentLines"`
	Functions        []SymbolInfo `json:"functions"`
	Classes          []SymbolInfo `json:"classes"`
	Imports          []string     `json:"imports"`
	Exports          []string     `json:"exports"`
	Complexity       Complexity   `json:"complexity"`
	SizeBytes        int64        `json:"sizeBytes"`
	ExtractionTimeMs int64        `json:"extractionTimeMs"`
}

// maxSummaryFileSize bounds files the extractor will read (10 MiB).
const maxSummaryFileSize = 10 * 1024 * 1024

var (
	importRe = regexp.MustCompile(`(?m)^\s*(?:import\s+(?:[\w.{}*,\s]+\s+from\s+)?["']([^"']+)["']|import\s+\(?\s*"([^"]+)"|from\s+([\w.]+)\s+import|#include\s+[<"]([^>"]+)[>"]|require\(["']([^"']+)["']\)|use\s+([\w:]+))`)
	exportRe = regexp.MustCompile(`(?m)^\s*(?:export\s+(?:default\s+)?(?:const|function|class|interface|type|enum|let|var)?\s*(\w+)|module\.exports(?:\.(\w+))?)`)

	decisionRe = regexp.MustCompile(`\b(if|else if|elif|for|while|case|when|catch|rescue|&&|\|\|)\b|\?\s*[^:]+:`)
)

// Extractor produces file summaries using the AST where a grammar
// exists and line heuristics otherwise.
type Extractor struct {
	parser   *Parser
	registry *LanguageRegistry
}

// NewExtractor creates a summary extractor.
func NewExtractor() *Extractor {
	registry := DefaultRegistry()
	return &Extractor{
		parser:   NewParser(registry),
		registry: registry,
	}
}

// Close releases parser resources.
func (e *Extractor) Close() {
	if e.parser != nil {
		e.parser.Close()
	}
}

// ExtractFileSummary reads rel under root with the standard safety
// checks and summarizes it.
func (e *Extractor) ExtractFileSummary(ctx context.Context, root, rel string) (*FileSummary, error) {
	start := time.Now()

	content, err := pathsafe.SafeRead(root, rel)
	if err != nil {
		return nil, err
	}
	if len(content) > maxSummaryFileSize {
		return nil, errors.ResourceLimit("file size for summary", maxSummaryFileSize)
	}

	summary := &FileSummary{
		Path:      filepath.ToSlash(rel),
		SizeBytes: int64(len(content)),
	}

	language := e.registry.LanguageForPath(rel)
	if language == "" {
		language = HeuristicLanguageForPath(rel)
	}
	summary.Language = language

	text := string(content)
	e.countLines(summary, text, language)
	summary.Imports = matchAllGroups(importRe, text)
	summary.Exports = matchAllGroups(exportRe, text)

	if _, hasGrammar := e.registry.GetByName(language); hasGrammar {
		if err := e.extractSymbols(ctx, summary, content, language); err != nil {
			return nil, errors.New(errors.ErrCodeExtractionFailed, "symbol extraction failed for "+summary.Path, err)
		}
	}

	e.scoreComplexity(summary, text)
	summary.ExtractionTimeMs = time.Since(start).Milliseconds()
	return summary, nil
}

func (e *Extractor) countLines(s *FileSummary, text, language string) {
	linePrefix, blockOpen := commentMarkers(language)

	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		s.Lines++
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			s.BlankLines++
		case inBlock:
			s.CommentLines++
			if strings.Contains(trimmed, "*/") {
				inBlock = false
			}
		case linePrefix != "" && strings.HasPrefix(trimmed, linePrefix):
			s.CommentLines++
		case blockOpen != "" && strings.HasPrefix(trimmed, blockOpen):
			s.CommentLines++
			if !strings.Contains(trimmed, "*/") {
				inBlock = true
			}
		default:
			s.CodeLines++
		}
	}
}

func commentMarkers(language string) (linePrefix, blockOpen string) {
	switch language {
	case "python", "ruby", "bash", "r", "elixir", "perl", "nim", "julia", "tcl", "powershell", "terraform":
		return "#", ""
	case "lua", "sql", "haskell":
		return "--", ""
	case "":
		return "#", ""
	default:
		return "//", "/*"
	}
}

func (e *Extractor) extractSymbols(ctx context.Context, s *FileSummary, content []byte, language string) error {
	cfg, _ := e.registry.GetByName(language)
	tree, err := e.parser.Parse(ctx, content, language)
	if err != nil {
		return err
	}

	kinds := cfg.declarationKinds()
	tree.Root.Walk(func(n *Node) bool {
		kind, ok := kinds[n.Type]
		if !ok {
			return true
		}
		info := SymbolInfo{
			Name:      declName(n, tree.Source),
			Kind:      string(kind),
			StartLine: int(n.StartRow) + 1,
			EndLine:   int(n.EndRow) + 1,
			Signature: signatureOf(n.Content(tree.Source)),
			Docstring: docstringBefore(n, tree, cfg),
		}
		switch kind {
		case KindFunction, KindMethod:
			s.Functions = append(s.Functions, info)
		case KindClass, KindStruct, KindInterface, KindEnum, KindTrait:
			s.Classes = append(s.Classes, info)
		}
		return true
	})
	return nil
}

// scoreComplexity weights cyclomatic complexity, nesting depth, and
// function count into a 0-100 score where higher means simpler.
func (e *Extractor) scoreComplexity(s *FileSummary, text string) {
	decisions := len(decisionRe.FindAllString(text, -1))
	s.Complexity.DecisionPoints = decisions
	s.Complexity.Cyclomatic = decisions + 1
	s.Complexity.NestingDepth = maxNesting(text)

	penalty := s.Complexity.Cyclomatic/2 + s.Complexity.NestingDepth*5 + len(s.Functions)
	score := 100 - penalty
	if score < 0 {
		score = 0
	}
	s.Complexity.Score = score
}

// maxNesting tracks the deepest brace/indent nesting in the file.
func maxNesting(text string) int {
	depth, deepest := 0, 0
	for _, r := range text {
		switch r {
		case '{':
			depth++
			if depth > deepest {
				deepest = depth
			}
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return deepest
}

func matchAllGroups(re *regexp.Regexp, text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		for _, g := range m[1:] {
			if g == "" {
				continue
			}
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}
