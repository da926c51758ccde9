package destination

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSnapshot is returned when no destinations are configured for a user.
var ErrNoSnapshot = errors.New("no destinations available")

// Provider supplies the destination snapshot for a user.
type Provider interface {
	Snapshot(ctx context.Context, userID string) (Snapshot, error)
}

// StaticProvider serves fixed snapshots. Shared applies to users without
// an entry in PerUser.
type StaticProvider struct {
	mu      sync.RWMutex
	shared  Snapshot
	perUser map[string]Snapshot
}

// NewStaticProvider returns a provider serving shared to every user.
func NewStaticProvider(shared Snapshot) *StaticProvider {
	return &StaticProvider{shared: shared, perUser: map[string]Snapshot{}}
}

// SetUser overrides the snapshot for one user.
func (p *StaticProvider) SetUser(userID string, snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.perUser[userID] = snap
}

// Snapshot implements Provider.
func (p *StaticProvider) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.perUser[userID]; ok {
		return s.clone(), nil
	}
	return p.shared.clone(), nil
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{Destinations: make([]Destination, len(s.Destinations))}
	for i, d := range s.Destinations {
		d.SubLists = append([]SubList(nil), d.SubLists...)
		d.Labels = append([]string(nil), d.Labels...)
		out.Destinations[i] = d
	}
	return out
}
