// Package approvals tracks pending human tool-call decisions.
package approvals

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Bounds on the pending set. Entries evicted by capacity or age resolve as
// denied, so a lost request can never hang a turn or leak memory.
const (
	DefaultCapacity = 256
	DefaultTTL      = 5 * time.Minute
)

// Decision is the outcome of one approval request.
type Decision int

const (
	// Denied rejects the tool call. The zero value, so every abnormal exit
	// path (timeout, eviction, shutdown) fails closed.
	Denied Decision = iota
	// Approved allows the tool call.
	Approved
)

// Pending is one tool call awaiting a human decision.
type Pending struct {
	ID        string
	UserID    string
	ToolName  string
	ToolInput map[string]any
	CreatedAt time.Time

	once sync.Once
	done chan Decision
}

// resolve applies the decision and reports whether this call won the race.
// Later calls are no-ops.
func (p *Pending) resolve(d Decision) bool {
	won := false
	p.once.Do(func() {
		p.done <- d
		close(p.done)
		won = true
	})
	return won
}

// Wait blocks until the request is resolved or ctx expires. Expiry denies.
func (p *Pending) Wait(ctx context.Context) Decision {
	select {
	case d := <-p.done:
		return d
	case <-ctx.Done():
		p.resolve(Denied)
		// Drain so the resolver's send never blocks.
		if d, ok := <-p.done; ok {
			return d
		}
		return Denied
	}
}

// Tracker is a bounded, age-evicting set of pending approvals shared by the
// front-ends that surface approve-mode decisions to humans.
type Tracker struct {
	cache *expirable.LRU[string, *Pending]
}

// NewTracker creates a tracker with the given capacity and entry TTL.
// Non-positive arguments use the defaults.
func NewTracker(capacity int, ttl time.Duration) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &Tracker{}
	t.cache = expirable.NewLRU(capacity, func(_ string, p *Pending) {
		p.resolve(Denied)
	}, ttl)
	return t
}

// Add registers a new pending approval and returns it.
func (t *Tracker) Add(userID, toolName string, toolInput map[string]any) *Pending {
	p := &Pending{
		ID:        uuid.NewString(),
		UserID:    userID,
		ToolName:  toolName,
		ToolInput: toolInput,
		CreatedAt: time.Now(),
		done:      make(chan Decision, 1),
	}
	t.cache.Add(p.ID, p)
	return p
}

// Resolve completes a pending approval. Returns false if the ID is unknown
// (already resolved, expired, or evicted).
func (t *Tracker) Resolve(id string, d Decision) bool {
	p, ok := t.cache.Get(id)
	if !ok {
		return false
	}
	// Decide before removing: Remove fires the eviction callback, whose
	// denial must lose to the explicit decision.
	won := p.resolve(d)
	t.cache.Remove(id)
	return won
}

// PendingFor lists unresolved approvals for a user, oldest first.
func (t *Tracker) PendingFor(userID string) []*Pending {
	var out []*Pending
	for _, p := range t.cache.Values() {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of unresolved approvals.
func (t *Tracker) Len() int {
	return t.cache.Len()
}
