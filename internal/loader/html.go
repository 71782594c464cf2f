package loader

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// NormalizeHTML parses and re-renders a fragment so that the same input
// always serializes to the same output, whatever the converter emitted.
// Span lookups computed against the normalized form survive re-ingestion.
func NormalizeHTML(in string) (string, error) {
	node, err := html.Parse(strings.NewReader(in))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, node); err != nil {
		return "", err
	}
	return buf.String(), nil
}
