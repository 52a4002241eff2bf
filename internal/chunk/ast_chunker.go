package chunk

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// ASTChunker emits one chunk per top-level declaration recovered from a
// tree-sitter parse. Classes additionally produce one chunk per method,
// with the method's parent set to the class name.
type ASTChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	options  Options
}

// NewASTChunker creates an AST chunker with the given options.
func NewASTChunker(opts Options) *ASTChunker {
	registry := DefaultRegistry()
	return &ASTChunker{
		parser:   NewParser(registry),
		registry: registry,
		options:  opts.withDefaults(),
	}
}

// Close releases parser resources.
func (c *ASTChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// Supports reports whether a language has a registered grammar.
func (c *ASTChunker) Supports(language string) bool {
	_, ok := c.registry.GetByName(language)
	return ok
}

// Chunk splits a file along its top-level declarations.
func (c *ASTChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	cfg, ok := c.registry.GetByName(file.Language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", file.Language)
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return nil, err
	}

	kinds := cfg.declarationKinds()
	var chunks []*Chunk

	for _, node := range tree.Root.Children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		decl, exported, decorators := unwrap(node, tree.Source)
		kind, isDecl := kinds[decl.Type]
		if !isDecl {
			continue
		}
		chunks = append(chunks, c.chunksForDecl(decl, tree, file, cfg, kind, "", exported, decorators)...)

		// A class also yields one chunk per method.
		if kind == KindClass || kind == KindStruct || kind == KindTrait {
			name := declName(decl, tree.Source)
			chunks = append(chunks, c.methodChunks(decl, tree, file, cfg, name)...)
		}
	}

	// Files with no recognized declarations produce one module chunk.
	if len(chunks) == 0 {
		text := string(file.Content)
		lines := countLines(text)
		for _, piece := range c.split(text, "") {
			md := &Metadata{Kind: KindModule, Part: piece.part}
			ck := newChunk(file.Path, piece.text, 1, lines, md)
			chunks = append(chunks, ck)
		}
	}

	return chunks, nil
}

// unwrap peels wrapper nodes (export statements, decorated definitions)
// and reports export status plus any decorators found on the way.
func unwrap(n *Node, source []byte) (decl *Node, exported bool, decorators []string) {
	decl = n
	switch n.Type {
	case "export_statement":
		exported = true
		for _, child := range n.Children {
			if child.Type != "export" && child.Type != "default" {
				decl = child
			}
		}
	case "decorated_definition":
		for _, child := range n.Children {
			if child.Type == "decorator" {
				decorators = append(decorators, strings.TrimSpace(child.Content(source)))
			} else {
				decl = child
			}
		}
	}
	return decl, exported, decorators
}

// chunksForDecl builds the chunk (or sub-chunks) for one declaration.
func (c *ASTChunker) chunksForDecl(decl *Node, tree *Tree, file *FileInput, cfg *LanguageConfig, kind Kind, parent string, exported bool, decorators []string) []*Chunk {
	text := decl.Content(tree.Source)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	name := declName(decl, tree.Source)
	md := &Metadata{
		Kind:       kind,
		Name:       name,
		Signature:  signatureOf(text),
		Parent:     parent,
		Docstring:  docstringBefore(decl, tree, cfg),
		Decorators: decoratorNames(decl, tree.Source),
		Visibility: visibilityOf(text, name, file.Language),
		IsAsync:    isAsync(text),
		IsExported: exported || isExported(text, name, file.Language),
		IsStatic:   isStatic(text),
	}
	if len(decorators) > 0 {
		md.Decorators = decorators
	}

	startLine := int(decl.StartRow) + 1
	endLine := int(decl.EndRow) + 1

	pieces := c.split(text, md.Signature)
	chunks := make([]*Chunk, 0, len(pieces))
	for _, piece := range pieces {
		pm := *md
		pm.Part = piece.part
		chunks = append(chunks, newChunk(file.Path, piece.text, startLine, endLine, &pm))
	}
	return chunks
}

// methodChunks walks a class body for method declarations.
func (c *ASTChunker) methodChunks(class *Node, tree *Tree, file *FileInput, cfg *LanguageConfig, className string) []*Chunk {
	methodTypes := make(map[string]struct{})
	for _, t := range cfg.MethodTypes {
		methodTypes[t] = struct{}{}
	}
	for _, t := range cfg.FunctionTypes {
		// Python methods are function_definitions inside the class body.
		methodTypes[t] = struct{}{}
	}

	var chunks []*Chunk
	class.Walk(func(n *Node) bool {
		if n == class {
			return true
		}
		if _, ok := methodTypes[n.Type]; ok {
			chunks = append(chunks, c.chunksForDecl(n, tree, file, cfg, KindMethod, className, false, nil)...)
			return false
		}
		return true
	})
	return chunks
}

type piece struct {
	text string
	part int
}

// split sub-chunks text that exceeds MaxChunkSize, repeating the header
// line on every continuation and numbering the parts from 1.
func (c *ASTChunker) split(text, header string) []piece {
	max := c.options.MaxChunkSize
	if len(text) <= max {
		return []piece{{text: text}}
	}

	prefix := ""
	if header != "" {
		prefix = header + "\n"
	}
	body := max - len(prefix)
	if body < 1 {
		body = max
		prefix = ""
	}

	var pieces []piece
	part := 1
	for start := 0; start < len(text); start += body {
		end := start + body
		if end > len(text) {
			end = len(text)
		}
		segment := text[start:end]
		if part == 1 {
			pieces = append(pieces, piece{text: segment, part: part})
		} else {
			pieces = append(pieces, piece{text: prefix + segment, part: part})
		}
		part++
	}
	return pieces
}

// nameNodeTypes are the node types that hold a declaration's identifier.
var nameNodeTypes = []string{
	"identifier", "name", "field_identifier", "type_identifier",
	"property_identifier", "constant", "word", "type_spec",
}

// declName extracts the declared name from a node.
func declName(n *Node, source []byte) string {
	for _, t := range nameNodeTypes {
		if child := n.FindChildByType(t); child != nil {
			// Go type_spec wraps the actual identifier.
			if child.Type == "type_spec" {
				if id := child.FindChildByType("type_identifier"); id != nil {
					return id.Content(source)
				}
			}
			return child.Content(source)
		}
	}
	// One level deeper covers declarator-style grammars (C functions).
	for _, child := range n.Children {
		for _, t := range nameNodeTypes {
			if grand := child.FindChildByType(t); grand != nil {
				return grand.Content(source)
			}
		}
	}
	return ""
}

// signatureOf returns the header line of a declaration: everything up
// to the opening brace or colon, collapsed to one line.
func signatureOf(text string) string {
	end := len(text)
	if i := strings.IndexAny(text, "{:"); i > 0 {
		end = i
	}
	sig := strings.Join(strings.Fields(text[:end]), " ")
	if len(sig) > 200 {
		sig = sig[:200]
	}
	return strings.TrimSpace(sig)
}

// docstringBefore finds a comment that ends on the line directly above
// the declaration.
func docstringBefore(decl *Node, tree *Tree, cfg *LanguageConfig) string {
	commentTypes := make(map[string]struct{}, len(cfg.CommentTypes))
	for _, t := range cfg.CommentTypes {
		commentTypes[t] = struct{}{}
	}

	var found string
	tree.Root.Walk(func(n *Node) bool {
		if _, ok := commentTypes[n.Type]; ok && n.EndRow+1 == decl.StartRow {
			found = strings.TrimSpace(n.Content(tree.Source))
		}
		return n.StartRow <= decl.StartRow
	})
	if len(found) > 500 {
		found = found[:500]
	}
	return found
}

// decoratorNames collects decorator/annotation lines on a declaration.
func decoratorNames(n *Node, source []byte) []string {
	var names []string
	for _, child := range n.Children {
		if child.Type == "decorator" || child.Type == "attribute_item" || child.Type == "annotation" {
			names = append(names, strings.TrimSpace(child.Content(source)))
		}
	}
	return names
}

func visibilityOf(text, name, language string) string {
	switch language {
	case "go":
		if isExported(text, name, language) {
			return "public"
		}
		return "private"
	case "rust":
		if strings.HasPrefix(strings.TrimSpace(text), "pub ") || strings.HasPrefix(strings.TrimSpace(text), "pub(") {
			return "public"
		}
		return "private"
	case "python":
		if strings.HasPrefix(name, "_") {
			return "private"
		}
		return "public"
	case "java", "csharp":
		t := strings.TrimSpace(text)
		for _, v := range []string{"public", "private", "protected", "internal"} {
			if strings.HasPrefix(t, v+" ") {
				return v
			}
		}
	}
	return ""
}

func isExported(text, name, language string) bool {
	switch language {
	case "go":
		return name != "" && unicode.IsUpper(rune(name[0]))
	case "rust":
		t := strings.TrimSpace(text)
		return strings.HasPrefix(t, "pub ") || strings.HasPrefix(t, "pub(")
	case "java", "csharp":
		return strings.HasPrefix(strings.TrimSpace(text), "public ")
	}
	return false
}

func isAsync(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "async ") ||
		strings.Contains(signatureOf(t), " async ") ||
		strings.HasPrefix(t, "export async ")
}

func isStatic(text string) bool {
	sig := signatureOf(text)
	return strings.HasPrefix(sig, "static ") || strings.Contains(sig, " static ")
}

func countLines(text string) int {
	if text == "" {
		return 1
	}
	return strings.Count(text, "\n") + 1
}
