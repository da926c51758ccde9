package analysis

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/taskbot/internal/destination"
	"github.com/fyrsmithlabs/taskbot/internal/extraction"
)

// OracleRequest is everything the oracle sees for one analysis.
type OracleRequest struct {
	UserID       string               `json:"-"`
	Transcript   string               `json:"transcript"`
	MessageCount int                  `json:"message_count"`
	Context      extraction.Context   `json:"context"`
	Snapshot     destination.Snapshot `json:"snapshot"`
}

// Oracle turns a transcript into a raw JSON analysis. Implementations must not
// retry: each call may be billed and is not idempotent.
type Oracle interface {
	Complete(ctx context.Context, req OracleRequest) ([]byte, error)
}

// Cache stores serialized results. A miss is reported as (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
