package domain

// EmbedState is the indexing state of a single document.
type EmbedState string

const (
	EmbedPending    EmbedState = "pending"
	EmbedProcessing EmbedState = "processing"
	EmbedCompleted  EmbedState = "completed"
	EmbedFailed     EmbedState = "failed"
)

// EmbedStatus is the server-reported indexing outcome for one id.
// ErrorMessage is set only when Status is EmbedFailed.
type EmbedStatus struct {
	DocumentID   string     `json:"document_id"`
	Status       EmbedState `json:"status"`
	ChunkCount   int        `json:"chunk_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
