package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"archivo/internal/adapter/pdftext"
)

var (
	ErrDownloadFailed   = errors.New("download failed")
	ErrUnsupportedType  = errors.New("unsupported document type")
	ErrConversionFailed = errors.New("document conversion failed")
)

// Type enumerates the closed set of source document kinds.
type Type string

const (
	TypeText Type = "text"
	TypeHTML Type = "html"
	TypePDF  Type = "pdf"
	TypeDocx Type = "docx"
)

// PageNumberKey is the metadata key carrying a PDF page number. PDF chunks
// are located by page, never by character span.
const PageNumberKey = "page_number"

// Source describes one document to normalize: inline content for text/html,
// a remote locator for pdf/docx.
type Source struct {
	RefID    string
	Type     Type
	Content  string
	URL      string
	Metadata map[string]any
}

// Page is one normalized sub-document ready for chunking.
type Page struct {
	Content  string
	Metadata map[string]any
}

type DocxConverter interface {
	ConvertDocx(ctx context.Context, data []byte) (string, error)
}

type PDFParser interface {
	Pages(path string) ([]pdftext.Page, error)
}

type Loader struct {
	client    *http.Client
	converter DocxConverter
	parser    PDFParser
}

func New(converter DocxConverter, parser PDFParser) *Loader {
	return &Loader{
		client:    &http.Client{Timeout: 60 * time.Second},
		converter: converter,
		parser:    parser,
	}
}

// Load normalizes a source into one or more (content, metadata) documents.
// PDF sources produce one document per page; everything else produces one.
func (l *Loader) Load(ctx context.Context, src Source) ([]Page, error) {
	switch src.Type {
	case TypeText, TypeHTML:
		return []Page{{Content: src.Content, Metadata: copyMetadata(src.Metadata)}}, nil
	case TypePDF:
		return l.loadPDF(ctx, src)
	case TypeDocx:
		return l.loadDocx(ctx, src)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, src.Type)
	}
}

func (l *Loader) loadPDF(ctx context.Context, src Source) ([]Page, error) {
	path, cleanup, err := l.download(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	pdfPages, err := l.parser.Pages(path)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf %s: %v", ErrConversionFailed, src.RefID, err)
	}

	pages := make([]Page, 0, len(pdfPages))
	for _, p := range pdfPages {
		metadata := copyMetadata(src.Metadata)
		metadata[PageNumberKey] = p.Number
		pages = append(pages, Page{Content: p.Text, Metadata: metadata})
	}
	return pages, nil
}

func (l *Loader) loadDocx(ctx context.Context, src Source) ([]Page, error) {
	path, cleanup, err := l.download(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConversionFailed, src.RefID, err)
	}

	rawHTML, err := l.converter.ConvertDocx(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: docx %s: %v", ErrConversionFailed, src.RefID, err)
	}

	// Reformat deterministically so character spans stay stable when the
	// same document is converted again.
	formatted, err := NormalizeHTML(rawHTML)
	if err != nil {
		return nil, fmt.Errorf("%w: normalize html for %s: %v", ErrConversionFailed, src.RefID, err)
	}

	return []Page{{Content: formatted, Metadata: copyMetadata(src.Metadata)}}, nil
}

// download fetches a remote file into a scoped temporary location. The
// returned cleanup must run on every exit path of the caller.
func (l *Loader) download(ctx context.Context, url string) (string, func(), error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("%w: %s: status %d", ErrDownloadFailed, url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "archivo-"+uuid.New().String())
	if err != nil {
		return "", nil, fmt.Errorf("%w: temp file: %v", ErrDownloadFailed, err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}

	name := tmp.Name()
	cleanup := func() {
		if err := os.Remove(name); err != nil {
			slog.Warn("failed to remove temporary file", "path", name, "error", err)
		}
	}
	return name, cleanup, nil
}

func copyMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
