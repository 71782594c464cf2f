package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"archivo/internal/loader"
	"archivo/internal/middleware"
	"archivo/internal/text"
	"archivo/internal/worker"
)

// Metadata keys attached to every indexed chunk. char_at_loc carries the
// byte span of HTML/text chunks; PDF chunks carry the page number instead.
const (
	titleKey     = "title"
	docTypeKey   = "document_type"
	charAtLocKey = "char_at_loc"
)

type Service struct {
	repo         Repository
	loader       SourceLoader
	store        VectorStore
	pub          EventPublisher
	chunkSize    int
	chunkOverlap int
	overlapWords int
}

func NewService(repo Repository, ldr SourceLoader, store VectorStore, pub EventPublisher, chunkSize, chunkOverlap, overlapWords int) *Service {
	return &Service{
		repo:         repo,
		loader:       ldr,
		store:        store,
		pub:          pub,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		overlapWords: overlapWords,
	}
}

func (s *Service) Create(ctx context.Context, doc *Document) error {
	doc.Status = StatusPending
	return s.repo.Save(ctx, doc)
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// EnqueueIndex schedules indexing of an existing document record. With a
// publisher wired it goes through NSQ; without one it runs inline.
func (s *Service) EnqueueIndex(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	if s.pub == nil {
		return s.IndexByID(ctx, id)
	}

	payload, err := json.Marshal(worker.IngestTaskPayload{
		DocumentID:    id,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return fmt.Errorf("marshal ingest payload for %s: %w", id, err)
	}
	if err := s.pub.Publish(worker.TopicIngestTask, payload); err != nil {
		return fmt.Errorf("publish ingest task for %s: %w", id, err)
	}
	slog.InfoContext(ctx, "published ingest task", "document_id", id)
	return nil
}

// IndexByID loads a document record and runs the full indexing pipeline,
// tracking the record status across the attempt.
func (s *Service) IndexByID(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusInProgress); err != nil {
		return err
	}

	if err := s.Index(ctx, doc); err != nil {
		if statusErr := s.repo.UpdateStatus(ctx, id, StatusFailed); statusErr != nil {
			slog.ErrorContext(ctx, "failed to mark document as failed", "document_id", id, "error", statusErr)
		}
		return err
	}

	return s.repo.UpdateStatus(ctx, id, StatusCompleted)
}

// Index runs load -> split -> locate -> upsert for one document. HTML and
// text chunks carry their character span; PDF chunks carry the page number
// assigned during loading. Chunk ordinals are global across pages so record
// ids stay unique within the document.
func (s *Service) Index(ctx context.Context, doc *Document) error {
	pages, err := s.loader.Load(ctx, s.sourceOf(doc))
	if err != nil {
		return fmt.Errorf("load document %s: %w", doc.ID, err)
	}

	// DOCX arrives as a remote file; persisting the converted HTML makes the
	// record servable by character range like any other HTML document.
	if doc.Type == string(loader.TypeDocx) && len(pages) == 1 {
		if err := s.repo.UpdateHTMLText(ctx, doc.ID, pages[0].Content); err != nil {
			return fmt.Errorf("store converted html for %s: %w", doc.ID, err)
		}
	}

	locatable := doc.Type != string(loader.TypePDF)

	var chunks []text.Chunk
	for _, page := range pages {
		for _, chunk := range text.Split(page.Content, page.Metadata, s.chunkSize, s.chunkOverlap) {
			if locatable {
				span, err := text.LocateOverlap(page.Content, chunk.Content, s.overlapWords)
				if err != nil {
					return fmt.Errorf("locate chunk %d of %s: %w", chunk.Ordinal, doc.ID, err)
				}
				chunk.Metadata[charAtLocKey] = map[string]any{
					"from":         span.From,
					"to":           span.To,
					"approximated": span.Approximated,
				}
			}
			chunk.Ordinal = len(chunks)
			chunks = append(chunks, chunk)
		}
	}

	if err := s.store.Upsert(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}

	slog.InfoContext(ctx, "document indexed", "document_id", doc.ID, "type", doc.Type, "chunks", len(chunks))
	return nil
}

// Delete removes the document's index records and soft-deletes the record.
// The vector store is cleaned first so a failed record delete never leaves
// orphaned chunks behind.
func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.store.DeleteByReference(ctx, id)
	if err != nil {
		return fmt.Errorf("remove index records for %s: %w", id, err)
	}
	slog.InfoContext(ctx, "index records removed", "document_id", id, "count", n)
	return s.repo.SoftDelete(ctx, id)
}

// ContentByPageRanges extracts the text of the requested PDF pages. Ranges
// are single pages ("3") or inclusive spans ("2-5"); descending spans
// ("7-4") are accepted and normalized.
func (s *Service) ContentByPageRanges(ctx context.Context, id string, ranges []string) ([]PageExcerpt, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Type != string(loader.TypePDF) {
		return nil, fmt.Errorf("%w: page extraction requires pdf, got %s", ErrWrongDocumentType, doc.Type)
	}

	wanted, err := parsePageRanges(ranges)
	if err != nil {
		return nil, err
	}

	pages, err := s.loader.Load(ctx, s.sourceOf(doc))
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", doc.ID, err)
	}

	var excerpts []PageExcerpt
	for _, page := range pages {
		number, ok := page.Metadata[loader.PageNumberKey].(int)
		if !ok || !wanted[number] {
			continue
		}
		excerpts = append(excerpts, PageExcerpt{Page: number, Content: page.Content})
	}
	return excerpts, nil
}

// ContentByCharRange extracts a byte span of an HTML or text document. The
// upper bound is clamped to the content length; a lower bound outside the
// clamped span is rejected.
func (s *Service) ContentByCharRange(ctx context.Context, id string, from, to int) (CharExcerpt, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return CharExcerpt{}, err
	}
	if doc.Type == string(loader.TypePDF) {
		return CharExcerpt{}, fmt.Errorf("%w: character extraction requires html or text, got %s", ErrWrongDocumentType, doc.Type)
	}

	content := doc.HTMLText
	if to > len(content) {
		to = len(content)
	}
	if from < 0 || from >= to {
		return CharExcerpt{}, fmt.Errorf("%w: [%d, %d) of %d bytes", ErrInvalidRange, from, to, len(content))
	}

	return CharExcerpt{From: from, To: to, Content: content[from:to]}, nil
}

func (s *Service) sourceOf(doc *Document) loader.Source {
	return loader.Source{
		RefID:   doc.ID,
		Type:    loader.Type(doc.Type),
		Content: doc.HTMLText,
		URL:     doc.MediaURL,
		Metadata: map[string]any{
			titleKey:   doc.Title,
			docTypeKey: doc.Type,
		},
	}
}

// parsePageRanges expands range expressions into the set of wanted pages.
func parsePageRanges(ranges []string) (map[int]bool, error) {
	wanted := make(map[int]bool)
	for _, r := range ranges {
		lo, hi, err := parsePageRange(r)
		if err != nil {
			return nil, err
		}
		for p := lo; p <= hi; p++ {
			wanted[p] = true
		}
	}
	if len(wanted) == 0 {
		return nil, fmt.Errorf("%w: no page ranges given", ErrInvalidRange)
	}
	return wanted, nil
}

func parsePageRange(r string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(r), "-", 2)

	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: page range %q", ErrInvalidRange, r)
	}
	hi := lo
	if len(parts) == 2 {
		hi, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: page range %q", ErrInvalidRange, r)
		}
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 1 {
		return 0, 0, fmt.Errorf("%w: page range %q", ErrInvalidRange, r)
	}
	return lo, hi, nil
}
