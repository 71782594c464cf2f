package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls an external re-ranking provider. Rerank returns the candidate
// indices in relevance order; the caller replaces its ordering with this one.
type Client struct {
	apiKey   string
	provider string
	client   *http.Client
	baseURL  string
}

func NewClient(provider, apiKey string) *Client {
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	switch c.provider {
	case "cohere":
		return c.rerankCohere(ctx, query, docs)
	case "jina":
		return c.rerankJina(ctx, query, docs)
	}
	// Unknown provider: identity order.
	indices := make([]int, len(docs))
	for i := range indices {
		indices[i] = i
	}
	return indices, nil
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

func (c *Client) rerankCohere(ctx context.Context, query string, docs []string) ([]int, error) {
	url := "https://api.cohere.ai/v1/rerank"
	if c.baseURL != "" {
		url = c.baseURL
	}

	body := map[string]interface{}{
		"model":            "rerank-english-v3.0",
		"query":            query,
		"documents":        docs,
		"top_n":            len(docs),
		"return_documents": false,
	}
	return c.post(ctx, url, body, len(docs))
}

func (c *Client) rerankJina(ctx context.Context, query string, docs []string) ([]int, error) {
	url := "https://api.jina.ai/v1/rerank"
	if c.baseURL != "" {
		url = c.baseURL
	}

	body := map[string]interface{}{
		"model":     "jina-reranker-v1-base-en",
		"query":     query,
		"documents": docs,
	}
	return c.post(ctx, url, body, len(docs))
}

func (c *Client) post(ctx context.Context, url string, body map[string]interface{}, n int) ([]int, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s rerank api error: %d", c.provider, resp.StatusCode)
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	indices := make([]int, 0, n)
	for _, r := range result.Results {
		if r.Index < n {
			indices = append(indices, r.Index)
		}
	}
	return indices, nil
}
