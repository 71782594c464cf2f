package document

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"archivo/internal/loader"
	"archivo/internal/text"
	"archivo/internal/worker"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Save(ctx context.Context, doc *Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context) ([]Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockRepo) UpdateHTMLText(ctx context.Context, id, html string) error {
	return m.Called(ctx, id, html).Error(0)
}

func (m *MockRepo) SoftDelete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockLoader struct{ mock.Mock }

func (m *MockLoader) Load(ctx context.Context, src loader.Source) ([]loader.Page, error) {
	args := m.Called(ctx, src)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]loader.Page), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) Upsert(ctx context.Context, refID string, chunks []text.Chunk) error {
	return m.Called(ctx, refID, chunks).Error(0)
}

func (m *MockStore) DeleteByReference(ctx context.Context, refID string) (int64, error) {
	args := m.Called(ctx, refID)
	return args.Get(0).(int64), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

func passthroughLoader(content string) *MockLoader {
	ldr := new(MockLoader)
	ldr.On("Load", mock.Anything, mock.Anything).Return([]loader.Page{{
		Content:  content,
		Metadata: map[string]any{titleKey: "Doc", docTypeKey: "text"},
	}}, nil)
	return ldr
}

func TestService_Index_TextChunksCarrySpans(t *testing.T) {
	content := "The quick brown fox jumps. The lazy dog sleeps."
	ldr := passthroughLoader(content)

	var got []text.Chunk
	store := new(MockStore)
	store.On("Upsert", mock.Anything, "d1", mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(2).([]text.Chunk)
	}).Return(nil)

	svc := NewService(new(MockRepo), ldr, store, nil, 5, 1, text.DefaultOverlapWords)
	doc := &Document{ID: "d1", Title: "Doc", Type: "text", HTMLText: content}
	require.NoError(t, svc.Index(context.Background(), doc))

	require.Len(t, got, 2)
	for i, chunk := range got {
		assert.Equal(t, i, chunk.Ordinal)
		assert.Equal(t, "Doc", chunk.Metadata[titleKey])

		loc, ok := chunk.Metadata[charAtLocKey].(map[string]any)
		require.True(t, ok, "text chunk must carry a char span")
		from := loc["from"].(int)
		to := loc["to"].(int)
		assert.Equal(t, chunk.Content, content[from:to])
		assert.False(t, loc["approximated"].(bool))
	}
	store.AssertExpectations(t)
}

func TestService_Index_PDFKeepsPageNumbers(t *testing.T) {
	ldr := new(MockLoader)
	ldr.On("Load", mock.Anything, mock.Anything).Return([]loader.Page{
		{Content: "first page text", Metadata: map[string]any{loader.PageNumberKey: 1, titleKey: "Book"}},
		{Content: "second page text", Metadata: map[string]any{loader.PageNumberKey: 2, titleKey: "Book"}},
	}, nil)

	var got []text.Chunk
	store := new(MockStore)
	store.On("Upsert", mock.Anything, "b1", mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(2).([]text.Chunk)
	}).Return(nil)

	svc := NewService(new(MockRepo), ldr, store, nil, 800, 400, text.DefaultOverlapWords)
	doc := &Document{ID: "b1", Title: "Book", Type: "pdf", MediaURL: "http://files/book.pdf"}
	require.NoError(t, svc.Index(context.Background(), doc))

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Metadata[loader.PageNumberKey])
	assert.Equal(t, 2, got[1].Metadata[loader.PageNumberKey])
	assert.NotContains(t, got[0].Metadata, charAtLocKey)

	// Ordinals stay unique across pages so record ids never collide.
	assert.Equal(t, 0, got[0].Ordinal)
	assert.Equal(t, 1, got[1].Ordinal)
}

func TestService_Index_DocxPersistsConvertedHTML(t *testing.T) {
	ldr := new(MockLoader)
	ldr.On("Load", mock.Anything, mock.Anything).Return([]loader.Page{
		{Content: "<html><body><p>converted</p></body></html>", Metadata: map[string]any{}},
	}, nil)

	repo := new(MockRepo)
	repo.On("UpdateHTMLText", mock.Anything, "d2", "<html><body><p>converted</p></body></html>").Return(nil)

	store := new(MockStore)
	store.On("Upsert", mock.Anything, "d2", mock.Anything).Return(nil)

	svc := NewService(repo, ldr, store, nil, 800, 400, text.DefaultOverlapWords)
	doc := &Document{ID: "d2", Title: "Letter", Type: "docx", MediaURL: "http://files/letter.docx"}
	require.NoError(t, svc.Index(context.Background(), doc))
	repo.AssertExpectations(t)
}

func TestService_Index_LoadFailure(t *testing.T) {
	ldr := new(MockLoader)
	ldr.On("Load", mock.Anything, mock.Anything).Return(nil, loader.ErrDownloadFailed)

	svc := NewService(new(MockRepo), ldr, new(MockStore), nil, 800, 400, text.DefaultOverlapWords)
	err := svc.Index(context.Background(), &Document{ID: "d1", Type: "pdf", MediaURL: "http://files/x.pdf"})
	assert.ErrorIs(t, err, loader.ErrDownloadFailed)
}

func TestService_IndexByID_StatusTransitions(t *testing.T) {
	content := "some plain text to index"
	doc := &Document{ID: "d1", Title: "Doc", Type: "text", HTMLText: content}

	t.Run("Completed", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, "d1").Return(doc, nil)
		repo.On("UpdateStatus", mock.Anything, "d1", StatusInProgress).Return(nil)
		repo.On("UpdateStatus", mock.Anything, "d1", StatusCompleted).Return(nil)

		store := new(MockStore)
		store.On("Upsert", mock.Anything, "d1", mock.Anything).Return(nil)

		svc := NewService(repo, passthroughLoader(content), store, nil, 800, 400, text.DefaultOverlapWords)
		require.NoError(t, svc.IndexByID(context.Background(), "d1"))
		repo.AssertExpectations(t)
	})

	t.Run("Failed", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, "d1").Return(doc, nil)
		repo.On("UpdateStatus", mock.Anything, "d1", StatusInProgress).Return(nil)
		repo.On("UpdateStatus", mock.Anything, "d1", StatusFailed).Return(nil)

		store := new(MockStore)
		upsertErr := errors.New("embedder offline")
		store.On("Upsert", mock.Anything, "d1", mock.Anything).Return(upsertErr)

		svc := NewService(repo, passthroughLoader(content), store, nil, 800, 400, text.DefaultOverlapWords)
		err := svc.IndexByID(context.Background(), "d1")
		assert.ErrorIs(t, err, upsertErr)
		repo.AssertExpectations(t)
	})
}

func TestService_EnqueueIndex_PublishesTask(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Get", mock.Anything, "d1").Return(&Document{ID: "d1", Type: "text"}, nil)

	pub := new(MockPublisher)
	pub.On("Publish", worker.TopicIngestTask, mock.MatchedBy(func(body []byte) bool {
		var payload worker.IngestTaskPayload
		return json.Unmarshal(body, &payload) == nil && payload.DocumentID == "d1"
	})).Return(nil)

	svc := NewService(repo, new(MockLoader), new(MockStore), pub, 800, 400, text.DefaultOverlapWords)
	require.NoError(t, svc.EnqueueIndex(context.Background(), "d1"))
	pub.AssertExpectations(t)
}

func TestService_EnqueueIndex_InlineWithoutPublisher(t *testing.T) {
	content := "inline indexing path"
	doc := &Document{ID: "d1", Title: "Doc", Type: "text", HTMLText: content}

	repo := new(MockRepo)
	repo.On("Get", mock.Anything, "d1").Return(doc, nil)
	repo.On("UpdateStatus", mock.Anything, "d1", StatusInProgress).Return(nil)
	repo.On("UpdateStatus", mock.Anything, "d1", StatusCompleted).Return(nil)

	store := new(MockStore)
	store.On("Upsert", mock.Anything, "d1", mock.Anything).Return(nil)

	svc := NewService(repo, passthroughLoader(content), store, nil, 800, 400, text.DefaultOverlapWords)
	require.NoError(t, svc.EnqueueIndex(context.Background(), "d1"))
	store.AssertExpectations(t)
}

func TestService_Delete_CleansIndexFirst(t *testing.T) {
	store := new(MockStore)
	store.On("DeleteByReference", mock.Anything, "d1").Return(int64(3), nil)

	repo := new(MockRepo)
	repo.On("SoftDelete", mock.Anything, "d1").Return(nil)

	svc := NewService(repo, new(MockLoader), store, nil, 800, 400, text.DefaultOverlapWords)
	require.NoError(t, svc.Delete(context.Background(), "d1"))
	store.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestService_Delete_StoreFailureSkipsRecordDelete(t *testing.T) {
	store := new(MockStore)
	storeErr := errors.New("index offline")
	store.On("DeleteByReference", mock.Anything, "d1").Return(int64(0), storeErr)

	repo := new(MockRepo)

	svc := NewService(repo, new(MockLoader), store, nil, 800, 400, text.DefaultOverlapWords)
	err := svc.Delete(context.Background(), "d1")
	assert.ErrorIs(t, err, storeErr)
	repo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything)
}

func TestService_ContentByPageRanges(t *testing.T) {
	pdfDoc := &Document{ID: "b1", Title: "Book", Type: "pdf", MediaURL: "http://files/book.pdf"}

	pages := []loader.Page{
		{Content: "page one", Metadata: map[string]any{loader.PageNumberKey: 1}},
		{Content: "page two", Metadata: map[string]any{loader.PageNumberKey: 2}},
		{Content: "page three", Metadata: map[string]any{loader.PageNumberKey: 3}},
		{Content: "page four", Metadata: map[string]any{loader.PageNumberKey: 4}},
		{Content: "page five", Metadata: map[string]any{loader.PageNumberKey: 5}},
	}

	newSvc := func() *Service {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, "b1").Return(pdfDoc, nil)
		ldr := new(MockLoader)
		ldr.On("Load", mock.Anything, mock.Anything).Return(pages, nil)
		return NewService(repo, ldr, new(MockStore), nil, 800, 400, text.DefaultOverlapWords)
	}

	t.Run("SinglePage", func(t *testing.T) {
		excerpts, err := newSvc().ContentByPageRanges(context.Background(), "b1", []string{"3"})
		require.NoError(t, err)
		require.Len(t, excerpts, 1)
		assert.Equal(t, 3, excerpts[0].Page)
		assert.Equal(t, "page three", excerpts[0].Content)
	})

	t.Run("Span", func(t *testing.T) {
		excerpts, err := newSvc().ContentByPageRanges(context.Background(), "b1", []string{"2-4"})
		require.NoError(t, err)
		require.Len(t, excerpts, 3)
		assert.Equal(t, 2, excerpts[0].Page)
		assert.Equal(t, 4, excerpts[2].Page)
	})

	t.Run("DescendingSpanNormalized", func(t *testing.T) {
		excerpts, err := newSvc().ContentByPageRanges(context.Background(), "b1", []string{"4-2"})
		require.NoError(t, err)
		require.Len(t, excerpts, 3)
		assert.Equal(t, 2, excerpts[0].Page)
	})

	t.Run("InvalidRange", func(t *testing.T) {
		_, err := newSvc().ContentByPageRanges(context.Background(), "b1", []string{"two"})
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("NoRanges", func(t *testing.T) {
		_, err := newSvc().ContentByPageRanges(context.Background(), "b1", nil)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("WrongType", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, "d1").Return(&Document{ID: "d1", Type: "html"}, nil)
		svc := NewService(repo, new(MockLoader), new(MockStore), nil, 800, 400, text.DefaultOverlapWords)
		_, err := svc.ContentByPageRanges(context.Background(), "d1", []string{"1"})
		assert.ErrorIs(t, err, ErrWrongDocumentType)
	})
}

func TestService_ContentByCharRange(t *testing.T) {
	htmlDoc := &Document{ID: "d1", Type: "html", HTMLText: "0123456789"}

	newSvc := func(doc *Document) *Service {
		repo := new(MockRepo)
		repo.On("Get", mock.Anything, doc.ID).Return(doc, nil)
		return NewService(repo, new(MockLoader), new(MockStore), nil, 800, 400, text.DefaultOverlapWords)
	}

	t.Run("Extracts", func(t *testing.T) {
		excerpt, err := newSvc(htmlDoc).ContentByCharRange(context.Background(), "d1", 2, 6)
		require.NoError(t, err)
		assert.Equal(t, "2345", excerpt.Content)
	})

	t.Run("ClampsUpperBound", func(t *testing.T) {
		excerpt, err := newSvc(htmlDoc).ContentByCharRange(context.Background(), "d1", 5, 100)
		require.NoError(t, err)
		assert.Equal(t, "56789", excerpt.Content)
		assert.Equal(t, 10, excerpt.To)
	})

	t.Run("NegativeFrom", func(t *testing.T) {
		_, err := newSvc(htmlDoc).ContentByCharRange(context.Background(), "d1", -1, 5)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("FromBeyondClampedTo", func(t *testing.T) {
		_, err := newSvc(htmlDoc).ContentByCharRange(context.Background(), "d1", 10, 100)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("WrongType", func(t *testing.T) {
		pdfDoc := &Document{ID: "b1", Type: "pdf"}
		_, err := newSvc(pdfDoc).ContentByCharRange(context.Background(), "b1", 0, 5)
		assert.ErrorIs(t, err, ErrWrongDocumentType)
	})
}
