// Package splitter turns source files into code-aware chunks. Languages
// with a tree-sitter grammar are split along named top-level nodes;
// everything else falls back to fixed-size line chunking.
package splitter

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

// Defaults for range shaping. Chunk size and overlap are in lines.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 40
)

// Options configure the splitter.
type Options struct {
	// ChunkSize is the target chunk height in lines.
	ChunkSize int
	// ChunkOverlap is the number of lines repeated between consecutive
	// chunks. Must be smaller than ChunkSize.
	ChunkOverlap int
	// MaxChunkChars caps the character count per chunk. Zero uses
	// domain.MaxChunkChars.
	MaxChunkChars int
}

// Splitter implements ports.Splitter.
type Splitter struct {
	options  Options
	registry *languageRegistry
}

var _ ports.Splitter = (*Splitter)(nil)

// New creates a splitter with default options.
func New() *Splitter {
	return NewWithOptions(Options{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap})
}

// NewWithOptions creates a splitter with custom options. A zero overlap
// is honored; a non-positive chunk size or character cap falls back to
// its default.
func NewWithOptions(opts Options) *Splitter {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = domain.MaxChunkChars
	}
	return &Splitter{options: opts, registry: defaultRegistry()}
}

// spanRange is a 1-indexed inclusive line range under construction.
type spanRange struct {
	start uint32
	end   uint32
}

// Split chunks content for the given language and file path.
func (s *Splitter) Split(ctx context.Context, content string, language domain.Language, filePath string) ([]domain.CodeChunk, error) {
	if s.options.ChunkOverlap >= s.options.ChunkSize {
		return nil, errors.InvalidInput("chunk overlap must be smaller than chunk size")
	}
	if content == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	totalLines := uint32(len(lines))

	var ranges []spanRange
	if tree := s.parse(ctx, content, language, filePath); tree != nil {
		spans := spansFromTree(tree, totalLines)
		tree.Close()
		if len(spans) == 0 {
			ranges = splitRange(1, totalLines, s.options.ChunkSize, totalLines)
		} else {
			ranges = mergeRanges(spans, s.options.ChunkSize, totalLines)
		}
	} else {
		ranges = splitRange(1, totalLines, s.options.ChunkSize, totalLines)
	}

	ranges = applyOverlap(ranges, s.options.ChunkOverlap, totalLines)
	ranges = splitByCharLimit(ranges, lines, s.options.MaxChunkChars)

	chunks := make([]domain.CodeChunk, 0, len(ranges))
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, errors.Cancelled("splitter.build_chunks").WithCause(err)
		}
		span, err := domain.NewLineSpan(r.start, r.end)
		if err != nil {
			return nil, errors.Invariant("splitter produced invalid span").WithCause(err)
		}
		body := strings.Join(lines[r.start-1:r.end], "\n")
		if len(body) > s.options.MaxChunkChars {
			// A single line above the limit becomes its own chunk,
			// truncated to the bound.
			body = body[:s.options.MaxChunkChars]
		}
		chunk, err := domain.NewCodeChunk(body, span, language, filePath)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// parse returns a tree-sitter tree or nil when no grammar is available.
func (s *Splitter) parse(ctx context.Context, content string, language domain.Language, filePath string) *sitter.Tree {
	grammar, ok := s.registry.grammarFor(language, filePath)
	if !ok {
		return nil
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, []byte(content))
	if err != nil || tree == nil {
		return nil
	}
	return tree
}

// spansFromTree converts the named top-level children into line ranges.
func spansFromTree(tree *sitter.Tree, totalLines uint32) []spanRange {
	root := tree.RootNode()
	count := int(root.NamedChildCount())
	spans := make([]spanRange, 0, count)
	for i := 0; i < count; i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		if span, ok := spanFromNode(child, totalLines); ok {
			spans = append(spans, span)
		}
	}
	return spans
}

func spanFromNode(node *sitter.Node, totalLines uint32) (spanRange, bool) {
	if totalLines == 0 {
		return spanRange{}, false
	}
	start := node.StartPoint().Row + 1
	end := node.EndPoint().Row + 1
	if node.EndPoint().Column == 0 && end > start {
		end--
	}
	start = clampLine(start, 1, totalLines)
	end = clampLine(end, start, totalLines)
	return spanRange{start: start, end: end}, true
}

// mergeRanges sorts ranges, explodes oversized ones and merges adjacent
// small ones up to chunkSize lines.
func mergeRanges(spans []spanRange, chunkSize int, totalLines uint32) []spanRange {
	if len(spans) == 0 {
		return spans
	}

	sorted := append([]spanRange(nil), spans...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].start < sorted[j-1].start; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	var output []spanRange
	var current *spanRange

	for _, span := range sorted {
		span = clampRange(span, totalLines)
		spanLen := int(span.end - span.start + 1)
		if spanLen > chunkSize {
			if current != nil {
				output = append(output, *current)
				current = nil
			}
			output = append(output, splitRange(span.start, span.end, chunkSize, totalLines)...)
			continue
		}

		if current == nil {
			copied := span
			current = &copied
			continue
		}

		proposedEnd := current.end
		if span.end > proposedEnd {
			proposedEnd = span.end
		}
		if int(proposedEnd-current.start+1) > chunkSize {
			output = append(output, *current)
			copied := span
			current = &copied
		} else {
			current.end = proposedEnd
		}
	}

	if current != nil {
		output = append(output, *current)
	}
	if len(output) == 0 {
		return splitRange(1, totalLines, chunkSize, totalLines)
	}
	return output
}

// splitRange chops [start, end] into chunkSize-line windows.
func splitRange(start, end uint32, chunkSize int, totalLines uint32) []spanRange {
	if totalLines == 0 {
		return nil
	}
	size := uint32(chunkSize)
	if size < 1 {
		size = 1
	}
	end = clampLine(end, 1, totalLines)
	current := clampLine(start, 1, end)

	var output []spanRange
	for current <= end {
		chunkEnd := current + size - 1
		if chunkEnd > end {
			chunkEnd = end
		}
		output = append(output, spanRange{start: current, end: chunkEnd})
		if chunkEnd == end {
			break
		}
		current = chunkEnd + 1
	}
	return output
}

// applyOverlap extends each range backwards into its predecessor.
func applyOverlap(spans []spanRange, chunkOverlap int, totalLines uint32) []spanRange {
	if len(spans) <= 1 || chunkOverlap <= 0 {
		return spans
	}
	overlap := uint32(chunkOverlap)
	output := make([]spanRange, 0, len(spans))
	for i, span := range spans {
		start := span.start
		if i > 0 {
			prev := spans[i-1]
			var candidate uint32 = 1
			if prev.end > overlap {
				candidate = prev.end - overlap + 1
			}
			if candidate < start {
				start = candidate
			}
		}
		start = clampLine(start, 1, span.end)
		end := clampLine(span.end, start, totalLines)
		output = append(output, spanRange{start: start, end: end})
	}
	return output
}

// splitByCharLimit further splits ranges so every chunk's character count
// stays under maxChars. Lines above the limit become their own chunk.
func splitByCharLimit(ranges []spanRange, lines []string, maxChars int) []spanRange {
	if len(ranges) == 0 || maxChars <= 0 {
		return ranges
	}

	var output []spanRange
	for _, r := range ranges {
		currentStart := r.start
		currentLen := 0

		for line := r.start; line <= r.end; line++ {
			length := 0
			if idx := int(line - 1); idx < len(lines) {
				length = len(lines[idx])
			}

			if length > maxChars {
				if currentLen > 0 {
					output = append(output, spanRange{start: currentStart, end: line - 1})
					currentLen = 0
				}
				output = append(output, spanRange{start: line, end: line})
				currentStart = line + 1
				continue
			}

			if currentLen > 0 && currentLen+length > maxChars {
				output = append(output, spanRange{start: currentStart, end: line - 1})
				currentStart = line
				currentLen = 0
			}
			currentLen += length
		}

		if currentLen > 0 && currentStart <= r.end {
			output = append(output, spanRange{start: currentStart, end: r.end})
		}
	}
	return output
}

func clampLine(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampRange(span spanRange, totalLines uint32) spanRange {
	start := clampLine(span.start, 1, totalLines)
	end := clampLine(span.end, start, totalLines)
	return spanRange{start: start, end: end}
}
