package domain

import "context"

// CatalogAPI reads the user's source library.
type CatalogAPI interface {
	FetchLibrary(ctx context.Context) (*Library, error)
}

// EmbeddingAPI submits and inspects indexing jobs.
type EmbeddingAPI interface {
	// EmbedDocuments indexes documents and papers; papers are downloaded server-side first.
	EmbedDocuments(ctx context.Context, documentIDs, paperIDs []string) ([]EmbedStatus, error)
	// EmbedRepositories ingests and indexes repositories.
	EmbedRepositories(ctx context.Context, repoIDs []string) ([]EmbedStatus, error)
	FetchEmbedStatus(ctx context.Context, documentIDs []string) ([]EmbedStatus, error)
}

// ConversationAPI manages conversations and their messages.
type ConversationAPI interface {
	ListConversations(ctx context.Context) ([]ConversationSummary, error)
	CreateConversation(ctx context.Context, p CreateConversationParams) (*ConversationSummary, error)
	FetchConversation(ctx context.Context, id string) (*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	// SendMessage returns the messages the exchange produced, in server order.
	SendMessage(ctx context.Context, conversationID, question string) ([]Message, error)
	SetAttachedDocuments(ctx context.Context, conversationID string, documentIDs []string) error
	FetchAttachedDocuments(ctx context.Context, conversationID string) ([]string, error)
	UpdateContextMode(ctx context.Context, conversationID string, mode ContextMode) error
}

// Backend is every collaborator call the client consumes.
type Backend interface {
	CatalogAPI
	EmbeddingAPI
	ConversationAPI
}
