// Package session holds per-user conversational state awaiting analysis.
package session

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/task"
)

// Lifecycle errors.
var (
	ErrEmptyUserID = errors.New("user id is required")
	ErrEmptyText   = errors.New("message text is required")
	ErrNotFound    = errors.New("session not found")
)

// Pin is a destination explicitly chosen by the user.
type Pin struct {
	DestinationID string `json:"destination_id"`
	SubListID     string `json:"sub_list_id,omitempty"`
}

// Session is a point-in-time copy of one user's state. Mutating it does not
// affect the store.
type Session struct {
	UserID       string               `json:"user_id"`
	Messages     []extraction.Message `json:"messages"`
	Context      extraction.Context   `json:"context"`
	LastAnalysis *task.Result         `json:"last_analysis,omitempty"`
	Selected     *Pin                 `json:"selected,omitempty"`
	LastActivity time.Time            `json:"last_activity"`
	// Generation changes whenever the session is created or cleared.
	Generation uint64 `json:"generation"`
}

// IsEmpty reports whether the session holds nothing worth keeping.
func (s Session) IsEmpty() bool {
	return len(s.Messages) == 0 && s.LastAnalysis == nil
}

// Texts returns the buffered message texts in order.
func (s Session) Texts() []string {
	out := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = m.Text
	}
	return out
}

// Config configures a Store.
type Config struct {
	// MaxSessions bounds the number of live sessions. Zero means unbounded.
	MaxSessions int `koanf:"max_sessions"`
}

// Store holds one session per user. Operations on different users never
// contend on the same lock; operations on one user are serialized.
type Store struct {
	// mu guards entries only. Lock order is entry then registry.
	mu      sync.RWMutex
	entries map[string]*entry

	extractor   *extraction.Extractor
	now         func() time.Time
	generation  atomic.Uint64
	maxSessions int
}

type entry struct {
	mu      sync.Mutex
	removed bool
	state   Session
	// lastSeen mirrors state.LastActivity for lock-free eviction scans.
	lastSeen atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for activity timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMaxSessions bounds the number of live sessions.
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		s.maxSessions = n
	}
}

// NewStore creates a Store that accumulates context with extractor.
func NewStore(extractor *extraction.Extractor, opts ...Option) *Store {
	if extractor == nil {
		extractor = extraction.New()
	}
	s := &Store{
		entries:   make(map[string]*entry),
		extractor: extractor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns a copy of the user's session, creating an empty one if
// none exists.
func (s *Store) GetOrCreate(userID string) (Session, error) {
	if userID == "" {
		return Session{}, ErrEmptyUserID
	}
	e := s.acquire(userID, true)
	defer e.mu.Unlock()
	return e.state.clone(), nil
}

// Get returns a copy of the user's session without creating one.
func (s *Store) Get(userID string) (Session, bool) {
	e := s.acquire(userID, false)
	if e == nil {
		return Session{}, false
	}
	defer e.mu.Unlock()
	return e.state.clone(), true
}

// Append buffers msg, assigns its ordinal and folds its signals into the
// accumulated context. The stored message is returned.
func (s *Store) Append(userID string, msg extraction.Message) (extraction.Message, error) {
	if userID == "" {
		return extraction.Message{}, ErrEmptyUserID
	}
	if msg.Text == "" {
		return extraction.Message{}, ErrEmptyText
	}
	if msg.Sender == "" {
		msg.Sender = extraction.UnknownSender
	}

	e := s.acquire(userID, true)
	defer e.mu.Unlock()

	msg.Ordinal = len(e.state.Messages)
	e.state.Messages = append(e.state.Messages, msg)
	e.state.Context = extraction.Merge(e.state.Context, s.extractor.Extract([]extraction.Message{msg}))
	s.touch(e)
	return msg, nil
}

// Clear resets the user's buffered state. The session keeps existing with a
// new generation so in-flight analyses can tell it was cleared.
func (s *Store) Clear(userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	e := s.acquire(userID, true)
	defer e.mu.Unlock()

	e.state = s.fresh(userID)
	e.lastSeen.Store(e.state.LastActivity.UnixNano())
	return nil
}

// SetAnalysis stores result as the user's last analysis.
func (s *Store) SetAnalysis(userID string, result *task.Result) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	e := s.acquire(userID, true)
	defer e.mu.Unlock()

	e.state.LastAnalysis = result
	s.touch(e)
	return nil
}

// CommitAnalysis runs check against the current session with the session
// locked and stores result only if check returns nil. A session that no
// longer exists yields ErrNotFound and nothing is stored.
func (s *Store) CommitAnalysis(userID string, result *task.Result, check func(Session) error) error {
	e := s.acquire(userID, false)
	if e == nil {
		return ErrNotFound
	}
	defer e.mu.Unlock()

	if err := check(e.state.clone()); err != nil {
		return err
	}
	e.state.LastAnalysis = result
	s.touch(e)
	return nil
}

// Select pins a destination for the rest of the session.
func (s *Store) Select(userID string, pin Pin) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	e := s.acquire(userID, true)
	defer e.mu.Unlock()

	p := pin
	e.state.Selected = &p
	s.touch(e)
	return nil
}

// ExpireIdle removes sessions whose last activity is older than maxIdle and
// returns their user ids, sorted. Each session is locked before removal so
// an in-flight operation finishes first.
func (s *Store) ExpireIdle(maxIdle time.Duration) []string {
	cutoff := s.now().Add(-maxIdle)

	s.mu.RLock()
	candidates := make(map[string]*entry)
	for id, e := range s.entries {
		if time.Unix(0, e.lastSeen.Load()).Before(cutoff) {
			candidates[id] = e
		}
	}
	s.mu.RUnlock()

	var expired []string
	for id, e := range candidates {
		e.mu.Lock()
		if !e.removed && e.state.LastActivity.Before(cutoff) {
			e.removed = true
			s.mu.Lock()
			if s.entries[id] == e {
				delete(s.entries, id)
			}
			s.mu.Unlock()
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}
	sort.Strings(expired)
	return expired
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// acquire returns the user's entry locked. When create is false and no entry
// exists it returns nil. Entries removed between lookup and lock are retried.
func (s *Store) acquire(userID string, create bool) *entry {
	for {
		s.mu.RLock()
		e := s.entries[userID]
		s.mu.RUnlock()

		if e == nil {
			if !create {
				return nil
			}
			e = s.insert(userID)
		}

		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		return e
	}
}

func (s *Store) insert(userID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[userID]; ok {
		return e
	}
	if s.maxSessions > 0 && len(s.entries) >= s.maxSessions {
		s.evictLocked()
	}
	e := &entry{state: s.fresh(userID)}
	e.lastSeen.Store(e.state.LastActivity.UnixNano())
	s.entries[userID] = e
	return e
}

// evictLocked drops the least recently active idle session. Sessions busy in
// another operation are skipped, so the bound may be briefly exceeded.
func (s *Store) evictLocked() {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		la, lb := s.entries[a].lastSeen.Load(), s.entries[b].lastSeen.Load()
		switch {
		case la < lb:
			return -1
		case la > lb:
			return 1
		}
		return 0
	})
	for _, id := range ids {
		e := s.entries[id]
		if !e.mu.TryLock() {
			continue
		}
		e.removed = true
		delete(s.entries, id)
		e.mu.Unlock()
		return
	}
}

func (s *Store) fresh(userID string) Session {
	return Session{
		UserID:       userID,
		Messages:     []extraction.Message{},
		Context:      extraction.EmptyContext(),
		LastActivity: s.now(),
		Generation:   s.generation.Add(1),
	}
}

func (s *Store) touch(e *entry) {
	e.state.LastActivity = s.now()
	e.lastSeen.Store(e.state.LastActivity.UnixNano())
}

func (s Session) clone() Session {
	out := s
	out.Messages = slices.Clone(s.Messages)
	out.Context = s.Context.Clone()
	if s.Selected != nil {
		p := *s.Selected
		out.Selected = &p
	}
	return out
}
