package session

import (
	"sync"
	"time"
)

// DefaultPreferenceTTL is how long a remembered destination stays valid.
const DefaultPreferenceTTL = 7 * 24 * time.Hour

// Preferences remembers the destination a user last chose for each source
// chat, so the next analysis of that chat can suggest it first.
type Preferences struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[prefKey]preference
}

type prefKey struct {
	userID string
	chat   string
}

type preference struct {
	pin     Pin
	expires time.Time
}

// NewPreferences creates a preference registry. A non-positive ttl uses
// DefaultPreferenceTTL.
func NewPreferences(ttl time.Duration, now func() time.Time) *Preferences {
	if ttl <= 0 {
		ttl = DefaultPreferenceTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Preferences{
		ttl:   ttl,
		now:   now,
		items: make(map[prefKey]preference),
	}
}

// Remember stores pin as the preferred destination for chat.
func (p *Preferences) Remember(userID, chat string, pin Pin) {
	if userID == "" || chat == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[prefKey{userID, chat}] = preference{pin: pin, expires: p.now().Add(p.ttl)}
}

// Lookup returns the preferred destination for chat if one is still valid.
func (p *Preferences) Lookup(userID, chat string) (Pin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := prefKey{userID, chat}
	pref, ok := p.items[k]
	if !ok {
		return Pin{}, false
	}
	if !p.now().Before(pref.expires) {
		delete(p.items, k)
		return Pin{}, false
	}
	return pref.pin, true
}

// Prune drops expired preferences and returns how many were removed.
func (p *Preferences) Prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := 0
	for k, pref := range p.items {
		if !now.Before(pref.expires) {
			delete(p.items, k)
			n++
		}
	}
	return n
}
