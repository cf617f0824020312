package process

import (
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunk is a single retrieval-sized slice of an article with its metadata.
type Chunk struct {
	Content          string   // The chunk content (includes heading context when hierarchy tracking is on)
	HeadingHierarchy []string // Headings in effect for this chunk
	TokenCount       int      // Token count for this chunk
}

// ChunkerConfig holds configuration for the chunker.
type ChunkerConfig struct {
	MaxChunkSize int // Maximum chunk size in tokens (triggers recursive split if exceeded)
	ChunkOverlap int // Overlap between chunks in tokens (for the recursive fallback)
}

// DefaultChunkerConfig returns the chunk budget used when the config file
// does not set one.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxChunkSize: 512,
		ChunkOverlap: 50,
	}
}

// headingRegex matches markdown headings at the start of lines.
var headingRegex = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// ChunkMarkdown splits an article's markdown into retrieval-ready chunks:
// primary split on markdown headings with hierarchy tracking, recursive
// character splitting as the fallback for sections that still exceed the
// token budget. News bodies are often a single run of paragraphs with no
// subheadings at all, which the recursive fallback handles.
func ChunkMarkdown(markdown string, cfg ChunkerConfig) ([]Chunk, error) {
	if markdown == "" {
		return nil, nil
	}

	lenFunc := func(s string) int {
		return CountTokens(s)
	}

	recursiveSplitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithLenFunc(lenFunc),
	)

	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithHeadingHierarchy(true),
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSecondSplitter(recursiveSplitter),
		textsplitter.WithLenFunc(lenFunc),
	)

	parts, err := splitter.SplitText(markdown)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}

		chunk := Chunk{
			Content:          part,
			HeadingHierarchy: extractHeadingHierarchy(part),
			TokenCount:       CountTokens(part),
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// extractHeadingHierarchy extracts the heading lines present in chunk
// content, in document order.
func extractHeadingHierarchy(content string) []string {
	matches := headingRegex.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	hierarchy := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) >= 3 {
			heading := strings.TrimSpace(match[2])
			if heading != "" {
				hierarchy = append(hierarchy, heading)
			}
		}
	}

	return hierarchy
}
