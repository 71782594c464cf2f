package worker

// TopicIngestTask carries requests to index one document record.
const TopicIngestTask = "ingest.task"

// ChannelBackend is the consumer channel for this service.
const ChannelBackend = "backend"

type IngestTaskPayload struct {
	DocumentID    string `json:"document_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
