package document

import (
	"context"
	"errors"

	"archivo/internal/loader"
	"archivo/internal/text"
)

var (
	ErrWrongDocumentType = errors.New("operation not supported for this document type")
	ErrInvalidRange      = errors.New("invalid character range")
)

// Indexing lifecycle of a document record.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Document struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"` // text, html, pdf, docx
	HTMLText  string `json:"html_text,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateHTMLText(ctx context.Context, id, html string) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type VectorStore interface {
	Upsert(ctx context.Context, refID string, chunks []text.Chunk) error
	DeleteByReference(ctx context.Context, refID string) (int64, error)
}

type SourceLoader interface {
	Load(ctx context.Context, src loader.Source) ([]loader.Page, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// PageExcerpt is one extracted PDF page.
type PageExcerpt struct {
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// CharExcerpt is one extracted character span of an HTML or text document.
type CharExcerpt struct {
	From    int    `json:"from"`
	To      int    `json:"to"`
	Content string `json:"content"`
}
