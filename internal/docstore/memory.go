package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kuitang/sticky-canvas/internal/notes"
)

// MemoryRepository keeps collections in process memory. Used for tests and
// the --test server mode.
type MemoryRepository struct {
	mu          sync.RWMutex
	collections map[Scope]map[string]notes.Note
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{collections: make(map[Scope]map[string]notes.Note)}
}

func (r *MemoryRepository) List(_ context.Context, s Scope) ([]notes.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]notes.Note, 0, len(r.collections[s]))
	for _, n := range r.collections[s] {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, s Scope, id string) (notes.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.collections[s][id]
	if !ok {
		return notes.Note{}, ErrNotFound
	}
	return n, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, s Scope, id string, f notes.Fields, now time.Time) (notes.Note, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	coll, ok := r.collections[s]
	if !ok {
		coll = make(map[string]notes.Note)
		r.collections[s] = coll
	}
	n, exists := coll[id]
	if !exists {
		n = notes.Note{ID: id, CreatedAt: now}
	}
	n = f.Apply(n)
	n.LastModified = now
	coll[id] = n
	return n, !exists, nil
}

func (r *MemoryRepository) Delete(_ context.Context, s Scope, id string) (notes.Note, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.collections[s][id]
	if !ok {
		return notes.Note{}, false, nil
	}
	delete(r.collections[s], id)
	return n, true, nil
}

func (r *MemoryRepository) Count(_ context.Context, s Scope) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.collections[s]), nil
}
