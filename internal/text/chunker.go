package text

import (
	"unicode"
)

// Chunk is a token-bounded slice of a source document's content. Ordinal
// preserves source order and is later used to synthesize the chunk's record
// id, so re-ingesting unchanged content yields the same ids.
type Chunk struct {
	Content  string
	Ordinal  int
	Metadata map[string]any
}

type tokenSpan struct {
	from, to int
}

// tokenize returns the byte offsets of every whitespace-delimited token.
func tokenize(content string) []tokenSpan {
	var spans []tokenSpan
	start := -1
	for i, r := range content {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, tokenSpan{from: start, to: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, tokenSpan{from: start, to: len(content)})
	}
	return spans
}

// Split cuts content into chunks of size tokens where overlap tokens are
// shared between adjacent chunks. Each chunk is the exact substring of the
// source spanning its token window, so internal whitespace is preserved and
// exact relocation succeeds for unmodified sources.
func Split(content string, metadata map[string]any, size, overlap int) []Chunk {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 2
	}

	spans := tokenize(content)
	if len(spans) == 0 {
		return nil
	}

	stride := size - overlap
	var chunks []Chunk
	for start, ordinal := 0, 0; ; start, ordinal = start+stride, ordinal+1 {
		end := start + size
		if end > len(spans) {
			end = len(spans)
		}
		chunks = append(chunks, Chunk{
			Content:  content[spans[start].from:spans[end-1].to],
			Ordinal:  ordinal,
			Metadata: cloneMetadata(metadata),
		})
		if end == len(spans) {
			return chunks
		}
	}
}

func cloneMetadata(metadata map[string]any) map[string]any {
	clone := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		clone[k] = v
	}
	return clone
}
