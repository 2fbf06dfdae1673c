package conversation

import (
	"errors"
	"fmt"
)

var (
	ErrSendInProgress = errors.New("a message is already being sent")
	ErrEmptyQuestion  = errors.New("question is empty")
	// ErrContextModeUnavailable is returned when the context strategy is changed
	// outside documents mode or without attached documents.
	ErrContextModeUnavailable = errors.New("context mode can only be changed in documents mode with attached documents")
	ErrNotSelecting           = errors.New("no source selection in progress")
	ErrInvalidContextMode     = errors.New("invalid context mode")
)

// SendError is returned after a failed send. The transcript already holds the
// user's message followed by a synthetic assistant notice.
type SendError struct {
	ConversationID string
	Err            error
}

func (e *SendError) Error() string {
	if e.ConversationID == "" {
		return fmt.Sprintf("send message: %v", e.Err)
	}
	return fmt.Sprintf("send message to %s: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// AssociationError reports that binding documents or a context mode to a
// conversation failed on the server. Local state has already been updated,
// so the server may disagree with what the user sees until the next sync.
type AssociationError struct {
	Op             string
	ConversationID string
	Err            error
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("%s for conversation %s: %v", e.Op, e.ConversationID, e.Err)
}

func (e *AssociationError) Unwrap() error { return e.Err }
