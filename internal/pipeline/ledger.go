package pipeline

import (
	"sync"

	"github.com/fyrsmithlabs/taskbot/internal/destination"
)

// ledger remembers which tasks of a user's current result were committed, so
// a cached re-analysis or a repeated choice does not create duplicates.
type ledger struct {
	mu     sync.Mutex
	byUser map[string]*userLedger
}

type userLedger struct {
	resultID string
	pending  map[int]bool
	receipts map[int]destination.Receipt
}

func newLedger() *ledger {
	return &ledger{byUser: make(map[string]*userLedger)}
}

// reserve claims task index of resultID for commit. It returns the existing
// receipt and false when the task is already committed or being committed.
func (l *ledger) reserve(userID, resultID string, index int) (destination.Receipt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.byUser[userID]
	if u == nil || u.resultID != resultID {
		u = &userLedger{
			resultID: resultID,
			pending:  make(map[int]bool),
			receipts: make(map[int]destination.Receipt),
		}
		l.byUser[userID] = u
	}
	if r, ok := u.receipts[index]; ok {
		return r, false
	}
	if u.pending[index] {
		return destination.Receipt{}, false
	}
	u.pending[index] = true
	return destination.Receipt{}, true
}

// settle records the outcome of a reserved commit. A nil receipt releases the
// reservation so the task can be tried again.
func (l *ledger) settle(userID, resultID string, index int, r *destination.Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.byUser[userID]
	if u == nil || u.resultID != resultID {
		return
	}
	delete(u.pending, index)
	if r != nil {
		u.receipts[index] = *r
	}
}

func (l *ledger) committed(userID, resultID string) map[int]destination.Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.byUser[userID]
	if u == nil || u.resultID != resultID {
		return nil
	}
	out := make(map[int]destination.Receipt, len(u.receipts))
	for k, v := range u.receipts {
		out[k] = v
	}
	return out
}

func (l *ledger) forget(userIDs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range userIDs {
		delete(l.byUser, id)
	}
}
