package retrieval

import (
	"context"
	"fmt"
	"time"

	"archivo/internal/pgvector"
)

// DefaultK bounds how many candidates a query pulls from the index before
// re-ranking.
const DefaultK = 50

// Hit is the link-bearing projection of one search candidate. This is the
// contract surface the dashboard and MCP layers consume.
type Hit struct {
	DocumentType string `json:"document_type"`
	DocumentID   string `json:"document_id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	HrefLabel    string `json:"href_label"`
	Href         string `json:"href"`
}

type Options struct {
	K      int
	Filter map[string]any
	Rerank bool
}

type VectorStore interface {
	SimilaritySearch(ctx context.Context, query string, k int, filter map[string]any) ([]pgvector.Hit, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

type Service struct {
	store    VectorStore
	reranker Reranker
	baseURL  string
	logger   *QueryLogger
}

func NewService(store VectorStore, reranker Reranker, baseURL string, logger *QueryLogger) *Service {
	return &Service{store: store, reranker: reranker, baseURL: baseURL, logger: logger}
}

// Retrieve runs a similarity search, optionally re-ranks the candidates, and
// projects each hit into a deep-linkable result.
func (s *Service) Retrieve(ctx context.Context, query string, opts *Options) ([]Hit, error) {
	start := time.Now()

	k := DefaultK
	var filter map[string]any
	rerank := false
	if opts != nil {
		if opts.K > 0 {
			k = opts.K
		}
		filter = opts.Filter
		rerank = opts.Rerank
	}

	candidates, err := s.store.SimilaritySearch(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}

	if rerank && s.reranker != nil && len(candidates) > 0 {
		contents := make([]string, len(candidates))
		for i, c := range candidates {
			contents[i] = c.Content
		}

		indices, err := s.reranker.Rerank(ctx, query, contents)
		if err != nil {
			return nil, err
		}

		// The re-ranker's order replaces ours outright.
		reranked := make([]pgvector.Hit, 0, len(indices))
		for _, idx := range indices {
			if idx < len(candidates) {
				reranked = append(reranked, candidates[idx])
			}
		}
		candidates = reranked
	}

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, s.project(c))
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:      query,
			NumResults: len(hits),
			Reranked:   rerank,
			Duration:   time.Since(start),
		})
	}
	return hits, nil
}

// project shapes one stored record into a result the presentation layer can
// link from: PDF hits deep-link by page, HTML/text hits by character span.
func (s *Service) project(c pgvector.Hit) Hit {
	md := c.Metadata
	refID := stringValue(md["ref_id"])
	title := stringValue(md["title"])
	docType := stringValue(md["document_type"])

	hit := Hit{
		DocumentType: docType,
		DocumentID:   refID,
		Title:        title,
		Content:      c.Content,
	}

	if docType == "pdf" {
		page := intValue(md["page_number"])
		hit.HrefLabel = fmt.Sprintf("%s - page %d", title, page)
		hit.Href = fmt.Sprintf("%s/documents/pdf/%s?page=%d", s.baseURL, refID, page)
		return hit
	}

	var from, to int
	if loc, ok := md["char_at_loc"].(map[string]any); ok {
		from = intValue(loc["from"])
		to = intValue(loc["to"])
	}
	hit.HrefLabel = fmt.Sprintf("%s - position %d:%d", title, from, to)
	hit.Href = fmt.Sprintf("%s/documents/html/%s?pos_from=%d&pos_to=%d", s.baseURL, refID, from, to)
	return hit
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// intValue tolerates the float64 that JSON metadata round-trips produce.
func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
