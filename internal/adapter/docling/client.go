package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Client talks to the document conversion sidecar.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// ConvertDocx submits raw DOCX bytes and returns the produced HTML.
func (c *Client) ConvertDocx(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/convert/docx", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", docxMIME)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("conversion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("conversion service returned %d: %s", resp.StatusCode, body)
	}

	var result struct {
		HTML string `json:"html"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode conversion response: %w", err)
	}
	if result.HTML == "" {
		return "", fmt.Errorf("conversion service returned empty html")
	}
	return result.HTML, nil
}
