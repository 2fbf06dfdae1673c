package domain

import "time"

// Mode selects which knowledge a conversation answers from.
type Mode string

const (
	ModeGlobal    Mode = "global"
	ModeDocuments Mode = "documents"
)

// ContextMode is the context strategy used in documents mode.
type ContextMode string

const (
	ContextRAG         ContextMode = "rag"
	ContextFullContext ContextMode = "full_context"
)

// Valid reports whether c is a known context strategy.
func (c ContextMode) Valid() bool {
	return c == ContextRAG || c == ContextFullContext
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation is an opaque reference attached to an assistant answer.
type Citation struct {
	ID             string   `json:"id,omitempty"`
	Type           string   `json:"type,omitempty"`
	Title          string   `json:"title"`
	URL            string   `json:"url,omitempty"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// Message is one transcript entry. Local entries have no server ID yet;
// LocalID lets the controller find them again.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Citations  []Citation `json:"citations,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	LocalID string `json:"-"`
}

// Local reports whether the message exists only on the client.
func (m Message) Local() bool { return m.ID == "" }

// ConversationSummary is the list form of a conversation.
type ConversationSummary struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title,omitempty"`
	Mode               Mode        `json:"mode"`
	ContextMode        ContextMode `json:"context_mode"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	LastMessagePreview string      `json:"last_message_preview,omitempty"`
}

// Conversation is the full form including transcript and attachments.
type Conversation struct {
	ConversationSummary
	Messages    []Message `json:"messages"`
	DocumentIDs []string  `json:"document_ids"`
}

// CreateConversationParams holds parameters for creating a conversation.
type CreateConversationParams struct {
	Title       string
	Mode        Mode
	ContextMode ContextMode
}
