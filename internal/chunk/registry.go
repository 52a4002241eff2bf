package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig describes how declarations appear in one grammar.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Node types for each declaration kind.
	FunctionTypes  []string
	MethodTypes    []string
	ClassTypes     []string
	InterfaceTypes []string
	StructTypes    []string
	EnumTypes      []string
	TraitTypes     []string

	// Node types whose children hold leading doc comments.
	CommentTypes []string
}

// LanguageRegistry maps languages and extensions to tree-sitter grammars.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *LanguageRegistry
)

// DefaultRegistry returns the shared registry with all bundled grammars.
func DefaultRegistry() *LanguageRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewLanguageRegistry()
	})
	return defaultRegistry
}

// NewLanguageRegistry creates a registry with the default grammar set.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.register(&LanguageConfig{
		Name:          "go",
		Extensions:    []string{".go"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_declaration"},
		StructTypes:   []string{"type_declaration"},
		CommentTypes:  []string{"comment"},
	}, golang.GetLanguage())

	r.register(&LanguageConfig{
		Name:           "typescript",
		Extensions:     []string{".ts", ".mts", ".cts"},
		FunctionTypes:  []string{"function_declaration", "lexical_declaration", "variable_declaration"},
		MethodTypes:    []string{"method_definition"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		EnumTypes:      []string{"enum_declaration"},
		CommentTypes:   []string{"comment"},
	}, typescript.GetLanguage())

	r.register(&LanguageConfig{
		Name:           "tsx",
		Extensions:     []string{".tsx"},
		FunctionTypes:  []string{"function_declaration", "lexical_declaration", "variable_declaration"},
		MethodTypes:    []string{"method_definition"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		EnumTypes:      []string{"enum_declaration"},
		CommentTypes:   []string{"comment"},
	}, tsx.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "javascript",
		Extensions:    []string{".js", ".jsx", ".mjs", ".cjs"},
		FunctionTypes: []string{"function_declaration", "generator_function_declaration", "lexical_declaration", "variable_declaration"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
		CommentTypes:  []string{"comment"},
	}, javascript.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py", ".pyw", ".pyi"},
		FunctionTypes: []string{"function_definition"},
		ClassTypes:    []string{"class_definition"},
		CommentTypes:  []string{"comment"},
	}, python.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "rust",
		Extensions:    []string{".rs"},
		FunctionTypes: []string{"function_item"},
		StructTypes:   []string{"struct_item", "impl_item"},
		EnumTypes:     []string{"enum_item"},
		TraitTypes:    []string{"trait_item"},
		CommentTypes:  []string{"line_comment", "block_comment"},
	}, rust.GetLanguage())

	r.register(&LanguageConfig{
		Name:           "java",
		Extensions:     []string{".java"},
		MethodTypes:    []string{"method_declaration", "constructor_declaration"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		EnumTypes:      []string{"enum_declaration"},
		CommentTypes:   []string{"line_comment", "block_comment"},
	}, java.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "ruby",
		Extensions:    []string{".rb", ".rake"},
		FunctionTypes: []string{"method"},
		ClassTypes:    []string{"class"},
		TraitTypes:    []string{"module"},
		CommentTypes:  []string{"comment"},
	}, ruby.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "c",
		Extensions:    []string{".c", ".h"},
		FunctionTypes: []string{"function_definition"},
		StructTypes:   []string{"struct_specifier"},
		EnumTypes:     []string{"enum_specifier"},
		CommentTypes:  []string{"comment"},
	}, c.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "cpp",
		Extensions:    []string{".cpp", ".cc", ".cxx", ".hpp", ".hh"},
		FunctionTypes: []string{"function_definition"},
		ClassTypes:    []string{"class_specifier"},
		StructTypes:   []string{"struct_specifier"},
		EnumTypes:     []string{"enum_specifier"},
		CommentTypes:  []string{"comment"},
	}, cpp.GetLanguage())

	r.register(&LanguageConfig{
		Name:           "csharp",
		Extensions:     []string{".cs"},
		MethodTypes:    []string{"method_declaration", "constructor_declaration"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		StructTypes:    []string{"struct_declaration"},
		EnumTypes:      []string{"enum_declaration"},
		CommentTypes:   []string{"comment"},
	}, csharp.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "bash",
		Extensions:    []string{".sh", ".bash"},
		FunctionTypes: []string{"function_definition"},
		CommentTypes:  []string{"comment"},
	}, bash.GetLanguage())

	return r
}

func (r *LanguageRegistry) register(cfg *LanguageConfig, lang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.tsLanguages[cfg.Name] = lang
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

// GetByName returns the config for a language name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// GetByExtension returns the config for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.extToLang[strings.ToLower(ext)]
	if !ok {
		return nil, false
	}
	cfg, ok := r.configs[name]
	return cfg, ok
}

// GetTreeSitterLanguage returns the grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// LanguageForPath returns the registered AST language for a path, or "".
func (r *LanguageRegistry) LanguageForPath(path string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name := r.extToLang[strings.ToLower(filepath.Ext(path))]
	return name
}

// declarationKinds returns the node-type → Kind mapping for a language.
func (cfg *LanguageConfig) declarationKinds() map[string]Kind {
	kinds := make(map[string]Kind)
	for _, t := range cfg.FunctionTypes {
		kinds[t] = KindFunction
	}
	for _, t := range cfg.MethodTypes {
		kinds[t] = KindMethod
	}
	for _, t := range cfg.ClassTypes {
		kinds[t] = KindClass
	}
	for _, t := range cfg.InterfaceTypes {
		kinds[t] = KindInterface
	}
	for _, t := range cfg.StructTypes {
		kinds[t] = KindStruct
	}
	for _, t := range cfg.EnumTypes {
		kinds[t] = KindEnum
	}
	for _, t := range cfg.TraitTypes {
		kinds[t] = KindTrait
	}
	return kinds
}
