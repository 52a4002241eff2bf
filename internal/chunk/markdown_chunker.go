package chunk

import (
	"context"
	"regexp"
	"strings"
)

// MarkdownChunker splits markdown into one chunk per section. Sections
// are delimited by ATX (#) and Setext (=== / ---) headers; fenced code
// blocks are atomic; YAML frontmatter is stripped. Every chunk is
// prefixed with its header breadcrumb so a section remains meaningful
// when retrieved alone.
type MarkdownChunker struct {
	options Options
}

// NewMarkdownChunker creates a markdown chunker.
func NewMarkdownChunker(opts Options) *MarkdownChunker {
	return &MarkdownChunker{options: opts.withDefaults()}
}

var (
	atxHeaderRe    = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	setextH1Re     = regexp.MustCompile(`^=+\s*$`)
	setextH2Re     = regexp.MustCompile(`^-{2,}\s*$`)
	fenceRe        = regexp.MustCompile("^(```|~~~)")
	frontmatterSep = regexp.MustCompile(`^---\s*$`)
)

// section is one header-delimited region of the document.
type section struct {
	level     int      // 1-6, 0 for the preamble before any header
	title     string
	breadcrumb []string // titles of enclosing sections, outermost first
	startLine int      // 1-indexed
	endLine   int
	lines     []string
}

// Chunk splits the markdown file into section chunks.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	lines := strings.Split(string(file.Content), "\n")
	lines, offset := stripFrontmatter(lines)

	sections := parseSections(lines, offset)

	var chunks []*Chunk
	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, c.sectionChunks(file.Path, sec)...)
	}
	return chunks, nil
}

// stripFrontmatter removes a leading YAML frontmatter block and returns
// the remaining lines plus the line offset they start at.
func stripFrontmatter(lines []string) ([]string, int) {
	if len(lines) == 0 || !frontmatterSep.MatchString(lines[0]) {
		return lines, 0
	}
	for i := 1; i < len(lines); i++ {
		if frontmatterSep.MatchString(lines[i]) {
			return lines[i+1:], i + 1
		}
	}
	return lines, 0
}

// parseSections walks the lines tracking fences and the header stack.
func parseSections(lines []string, offset int) []*section {
	var sections []*section
	stack := make([]string, 0, 6) // breadcrumb titles by level, index = level-1

	current := &section{level: 0, startLine: offset + 1}
	inFence := false

	flush := func(endLine int) {
		current.endLine = endLine
		if len(current.lines) > 0 {
			sections = append(sections, current)
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		lineNo := offset + i + 1

		if fenceRe.MatchString(strings.TrimSpace(line)) {
			inFence = !inFence
			current.lines = append(current.lines, line)
			continue
		}
		if inFence {
			current.lines = append(current.lines, line)
			continue
		}

		level, title, setext := 0, "", false
		if m := atxHeaderRe.FindStringSubmatch(line); m != nil {
			level, title = len(m[1]), m[2]
		} else if i+1 < len(lines) && strings.TrimSpace(line) != "" {
			// A Setext header is the text line; the underline is consumed.
			if setextH1Re.MatchString(lines[i+1]) {
				level, title, setext = 1, strings.TrimSpace(line), true
			} else if setextH2Re.MatchString(lines[i+1]) && !strings.HasPrefix(strings.TrimSpace(line), "-") {
				level, title, setext = 2, strings.TrimSpace(line), true
			}
		}

		if level == 0 {
			current.lines = append(current.lines, line)
			continue
		}

		flush(lineNo - 1)

		// Pop the stack down to the new level, push this title.
		if level <= len(stack) {
			stack = stack[:level-1]
		}
		crumb := make([]string, len(stack))
		copy(crumb, stack)
		stack = append(stack, title)

		headerLine := line
		current = &section{
			level:      level,
			title:      title,
			breadcrumb: crumb,
			startLine:  lineNo,
			lines:      []string{headerLine},
		}
		if setext {
			current.lines = append(current.lines, lines[i+1])
			i++
		}
	}
	flush(offset + len(lines))

	return sections
}

// sectionChunks renders one section as chunk(s), splitting long
// sections by paragraphs with the breadcrumb repeated.
func (c *MarkdownChunker) sectionChunks(path string, sec *section) []*Chunk {
	body := strings.TrimRight(strings.Join(sec.lines, "\n"), "\n")
	if strings.TrimSpace(body) == "" {
		return nil
	}

	prefix := breadcrumbPrefix(sec.breadcrumb)
	text := body
	if prefix != "" {
		text = prefix + "\n" + body
	}

	headerPath := sec.breadcrumb
	if sec.title != "" {
		headerPath = append(append([]string{}, sec.breadcrumb...), sec.title)
	}
	md := &Metadata{Kind: KindSection, Name: sec.title, HeaderPath: headerPath}

	if len(text) <= c.options.MaxChunkSize {
		return []*Chunk{newChunk(path, text, sec.startLine, sec.endLine, md)}
	}

	// Long section: split along paragraph boundaries, repeating the
	// breadcrumb and marking continuations.
	contPrefix := prefix
	if sec.title != "" {
		if contPrefix != "" {
			contPrefix += "\n"
		}
		contPrefix += strings.Repeat("#", max(sec.level, 1)) + " " + sec.title + " (continued)"
	}

	paragraphs := strings.Split(body, "\n\n")
	var chunks []*Chunk
	var buf strings.Builder
	part := 1

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		pm := *md
		pm.Part = part
		head := prefix
		if part > 1 {
			head = contPrefix
		}
		content := buf.String()
		if head != "" {
			content = head + "\n" + content
		}
		chunks = append(chunks, newChunk(path, content, sec.startLine, sec.endLine, &pm))
		part++
		buf.Reset()
	}

	budget := c.options.MaxChunkSize - len(contPrefix) - 1
	if budget < 1 {
		budget = c.options.MaxChunkSize
	}
	for _, para := range paragraphs {
		if buf.Len() > 0 && buf.Len()+len(para)+2 > budget {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	flush()

	return chunks
}

// breadcrumbPrefix formats the enclosing-header trail as "[A > B]".
func breadcrumbPrefix(crumb []string) string {
	if len(crumb) == 0 {
		return ""
	}
	return "[" + strings.Join(crumb, " > ") + "]"
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
