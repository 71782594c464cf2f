package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"archivo/internal/middleware"
)

type MockIndexer struct{ mock.Mock }

func (m *MockIndexer) IndexByID(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func taskMessage(t *testing.T, payload IngestTaskPayload) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return nsq.NewMessage(nsq.MessageID{}, body)
}

func TestIngestConsumer_IndexesDocument(t *testing.T) {
	indexer := new(MockIndexer)
	indexer.On("IndexByID", mock.Anything, "doc-1").Return(nil)

	c := NewIngestConsumer(indexer)
	err := c.HandleMessage(taskMessage(t, IngestTaskPayload{DocumentID: "doc-1"}))
	require.NoError(t, err)
	indexer.AssertExpectations(t)
}

func TestIngestConsumer_PropagatesCorrelationID(t *testing.T) {
	indexer := new(MockIndexer)
	indexer.On("IndexByID", mock.MatchedBy(func(ctx context.Context) bool {
		return middleware.GetCorrelationID(ctx) == "corr-42"
	}), "doc-1").Return(nil)

	c := NewIngestConsumer(indexer)
	err := c.HandleMessage(taskMessage(t, IngestTaskPayload{DocumentID: "doc-1", CorrelationID: "corr-42"}))
	require.NoError(t, err)
	indexer.AssertExpectations(t)
}

func TestIngestConsumer_IndexFailureRequeues(t *testing.T) {
	indexer := new(MockIndexer)
	indexErr := errors.New("embedder offline")
	indexer.On("IndexByID", mock.Anything, "doc-1").Return(indexErr)

	c := NewIngestConsumer(indexer)
	err := c.HandleMessage(taskMessage(t, IngestTaskPayload{DocumentID: "doc-1"}))
	assert.ErrorIs(t, err, indexErr)
}

func TestIngestConsumer_DropsBadMessages(t *testing.T) {
	indexer := new(MockIndexer)
	c := NewIngestConsumer(indexer)

	t.Run("EmptyBody", func(t *testing.T) {
		assert.NoError(t, c.HandleMessage(nsq.NewMessage(nsq.MessageID{}, nil)))
	})
	t.Run("MalformedJSON", func(t *testing.T) {
		assert.NoError(t, c.HandleMessage(nsq.NewMessage(nsq.MessageID{}, []byte("{not json"))))
	})
	t.Run("MissingDocumentID", func(t *testing.T) {
		assert.NoError(t, c.HandleMessage(taskMessage(t, IngestTaskPayload{})))
	})
	indexer.AssertNotCalled(t, "IndexByID", mock.Anything, mock.Anything)
}
