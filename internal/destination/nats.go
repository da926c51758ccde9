package destination

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/taskbot/internal/bus"
)

// DefaultRequestTimeout bounds a request to the destination system when the
// caller's context has no deadline.
const DefaultRequestTimeout = 5 * time.Second

// NATSProvider asks the destination system for snapshots over NATS
// request/reply on bus.SnapshotPrefix.<user>.
type NATSProvider struct {
	nc      *nats.Conn
	timeout time.Duration
}

// NewNATSProvider creates a provider on nc.
func NewNATSProvider(nc *nats.Conn, timeout time.Duration) *NATSProvider {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &NATSProvider{nc: nc, timeout: timeout}
}

// Snapshot implements Provider.
func (p *NATSProvider) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	subject, err := bus.UserSubject(bus.SnapshotPrefix, userID)
	if err != nil {
		return Snapshot{}, err
	}
	ctx, cancel := withDefaultTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.nc.RequestWithContext(ctx, subject, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("request snapshot: %w", err)
	}
	var snap Snapshot
	if err := bus.DecodeReply(msg.Data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot for %s: %w", userID, err)
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot for %s: %w", userID, err)
	}
	if len(snap.Destinations) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return snap, nil
}

// NATSCommitter creates items by request/reply on bus.CommitSubject.
type NATSCommitter struct {
	nc      *nats.Conn
	timeout time.Duration
}

// NewNATSCommitter creates a committer on nc.
func NewNATSCommitter(nc *nats.Conn, timeout time.Duration) *NATSCommitter {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &NATSCommitter{nc: nc, timeout: timeout}
}

// Commit implements Committer. The reply must carry the created item id.
func (c *NATSCommitter) Commit(ctx context.Context, item Item) (Receipt, error) {
	if err := item.Validate(); err != nil {
		return Receipt{}, err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode item: %w", err)
	}
	ctx, cancel := withDefaultTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, bus.CommitSubject, data)
	if err != nil {
		return Receipt{}, fmt.Errorf("request commit: %w", err)
	}
	var r Receipt
	if err := bus.DecodeReply(msg.Data, &r); err != nil {
		return Receipt{}, fmt.Errorf("commit %q: %w", item.Name, err)
	}
	if r.ItemID == "" {
		return Receipt{}, fmt.Errorf("commit %q: reply has no item id", item.Name)
	}
	if r.IdempotencyKey == "" {
		r.IdempotencyKey = item.IdempotencyKey
	}
	return r, nil
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
