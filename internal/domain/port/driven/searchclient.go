package driven

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
)

// APIError is returned by SearchClient implementations when the external API
// rejects a call. StatusCode carries the HTTP status; Reason is the API's
// machine-readable reason when available (e.g. "quotaExceeded").
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("search api error %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("search api error %d: %s", e.StatusCode, e.Message)
}

// SearchClient defines the driven port for the external search API.
type SearchClient interface {
	// Search runs one bounded query authorized by apiKey: videos matching
	// q.Text, ordered by date, published after q.PublishedAfter, capped at
	// q.MaxResults items.
	Search(ctx context.Context, apiKey string, q model.SearchQuery) ([]model.SearchItem, error)
}
