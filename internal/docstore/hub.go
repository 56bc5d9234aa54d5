package docstore

import (
	"context"
	"sync"

	"github.com/kuitang/sticky-canvas/internal/notes"
)

// Hub fans snapshots out to the subscribers of each scope. Publishing never
// blocks: a subscriber that falls behind receives the newest note set with
// every change accumulated since its last read.
type Hub struct {
	mu   sync.Mutex
	subs map[Scope]map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[Scope]map[*Subscription]struct{})}
}

// Subscription is one live change feed.
type Subscription struct {
	hub   *Hub
	scope Scope

	mu      sync.Mutex
	notes   []notes.Note
	changes []notes.Change
	dirty   bool

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// subscribe registers a feed whose first snapshot is initial.
func (h *Hub) subscribe(s Scope, initial notes.Snapshot) *Subscription {
	sub := &Subscription{
		hub:   h,
		scope: s,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	sub.offer(initial.Notes, initial.Changes)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[s] == nil {
		h.subs[s] = make(map[*Subscription]struct{})
	}
	h.subs[s][sub] = struct{}{}
	return sub
}

// Active reports whether anyone is listening on s.
func (h *Hub) Active(s Scope) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[s]) > 0
}

// Subscribers returns the number of live feeds on s.
func (h *Hub) Subscribers(s Scope) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[s])
}

// Publish delivers the current note set of s and the changes that produced
// it to every subscriber of s.
func (h *Hub) Publish(s Scope, all []notes.Note, changes ...notes.Change) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs[s]))
	for sub := range h.subs[s] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.offer(all, changes)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sub.scope], sub)
	if len(h.subs[sub.scope]) == 0 {
		delete(h.subs, sub.scope)
	}
}

func (sub *Subscription) offer(all []notes.Note, changes []notes.Change) {
	sub.mu.Lock()
	sub.notes = all
	sub.changes = append(sub.changes, changes...)
	sub.dirty = true
	sub.mu.Unlock()

	select {
	case sub.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled when Take has something to return.
func (sub *Subscription) Ready() <-chan struct{} {
	return sub.ready
}

// Done is closed when the subscription is closed.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Take returns the pending snapshot, if any, without blocking.
func (sub *Subscription) Take() (notes.Snapshot, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.dirty {
		return notes.Snapshot{}, false
	}
	snap := notes.NewSnapshot(sub.notes, sub.changes...)
	sub.changes = nil
	sub.dirty = false
	return snap, true
}

// Next blocks until a snapshot is pending, the subscription is closed
// (ErrSubscriptionClosed), or ctx is done.
func (sub *Subscription) Next(ctx context.Context) (notes.Snapshot, error) {
	for {
		if snap, ok := sub.Take(); ok {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return notes.Snapshot{}, ctx.Err()
		case <-sub.done:
			return notes.Snapshot{}, ErrSubscriptionClosed
		case <-sub.ready:
		}
	}
}

// Close stops the feed. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		sub.hub.remove(sub)
		close(sub.done)
	})
}
