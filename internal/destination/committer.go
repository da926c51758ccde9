package destination

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/logging"
	"github.com/fyrsmithlabs/taskbot/internal/task"
)

// Item is a task ready to be created in the destination system.
type Item struct {
	// IdempotencyKey lets the destination system drop duplicate commits.
	IdempotencyKey string   `json:"idempotency_key"`
	UserID         string   `json:"user_id"`
	DestinationID  string   `json:"destination_id"`
	SubListID      string   `json:"sub_list_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	DueDate        string   `json:"due_date,omitempty"`
	Labels         []string `json:"labels,omitempty"`
	Members        []string `json:"members,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	Confidence     float64  `json:"confidence"`
}

// Receipt acknowledges a created item.
type Receipt struct {
	ItemID         string `json:"item_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Committer creates items in the destination system.
type Committer interface {
	Commit(ctx context.Context, item Item) (Receipt, error)
}

// NewItem builds an item for c with a fresh idempotency key.
func NewItem(userID string, c task.Candidate, destinationID, subListID string, confidence float64) Item {
	return Item{
		IdempotencyKey: uuid.NewString(),
		UserID:         userID,
		DestinationID:  destinationID,
		SubListID:      subListID,
		Name:           c.Name,
		Description:    c.Description,
		DueDate:        c.DueDate,
		Labels:         c.Labels,
		Members:        c.Members,
		Priority:       string(c.Priority),
		Confidence:     confidence,
	}
}

// Validate checks the fields the destination system requires.
func (i Item) Validate() error {
	var errs []error
	if i.IdempotencyKey == "" {
		errs = append(errs, errors.New("item has no idempotency key"))
	}
	if i.DestinationID == "" {
		errs = append(errs, ErrUnknownDestination)
	}
	if i.SubListID == "" {
		errs = append(errs, ErrUnknownSubList)
	}
	if i.Name == "" {
		errs = append(errs, errors.New("item has no name"))
	}
	return errors.Join(errs...)
}

// LogCommitter logs items instead of creating them. It backs dry runs.
type LogCommitter struct {
	logger *logging.Logger

	mu        sync.Mutex
	committed []Item
}

// NewLogCommitter creates a LogCommitter.
func NewLogCommitter(logger *logging.Logger) *LogCommitter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LogCommitter{logger: logger.Named("commit")}
}

// Commit implements Committer.
func (c *LogCommitter) Commit(ctx context.Context, item Item) (Receipt, error) {
	if err := item.Validate(); err != nil {
		return Receipt{}, err
	}
	c.mu.Lock()
	c.committed = append(c.committed, item)
	c.mu.Unlock()

	c.logger.Info(ctx, "dry-run commit",
		zap.String("destination", item.DestinationID),
		zap.String("sub_list", item.SubListID),
		zap.String("name", item.Name),
		zap.Float64("confidence", item.Confidence),
		zap.String("idempotency_key", item.IdempotencyKey))
	return Receipt{ItemID: "dry-run-" + item.IdempotencyKey, IdempotencyKey: item.IdempotencyKey}, nil
}

// Committed returns the items seen so far.
func (c *LogCommitter) Committed() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.committed...)
}
