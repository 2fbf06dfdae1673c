package embedding

import (
	"errors"
	"fmt"
	"strings"

	"researchchat/internal/domain"
)

// ErrSubmitInProgress is returned while a previous submission is still unresolved.
var ErrSubmitInProgress = errors.New("embedding submission already in progress")

// AggregateSubmitError means no submitted item was indexed. The selection
// is kept so the user can adjust it and retry.
type AggregateSubmitError struct {
	Outcomes []domain.EmbedStatus
}

func (e *AggregateSubmitError) Error() string {
	if len(e.Outcomes) == 0 {
		return "embedding failed: no outcomes returned"
	}
	reasons := make([]string, 0, len(e.Outcomes))
	seen := make(map[string]struct{})
	for _, o := range e.Outcomes {
		r := o.ErrorMessage
		if r == "" {
			r = "unknown error"
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		reasons = append(reasons, r)
	}
	return fmt.Sprintf("embedding failed for all %d item(s): %s", len(e.Outcomes), strings.Join(reasons, "; "))
}

// StatusPollError is informational: the status map was left as it was.
type StatusPollError struct {
	Err error
}

func (e *StatusPollError) Error() string { return "embed status poll failed: " + e.Err.Error() }

func (e *StatusPollError) Unwrap() error { return e.Err }
