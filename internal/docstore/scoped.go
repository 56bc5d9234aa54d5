package docstore

import (
	"context"
	"errors"
	"sync"

	"github.com/kuitang/sticky-canvas/internal/notes"
)

// ScopedStore adapts one collection of a Service to notes.Store.
type ScopedStore struct {
	svc   *Service
	scope Scope
}

var _ notes.Store = (*ScopedStore)(nil)

// Subscribe delivers snapshots to fn from a dedicated goroutine until the
// returned function is called. The function waits for that goroutine, so
// it must not be called from inside fn.
func (s *ScopedStore) Subscribe(ctx context.Context, fn func(notes.Snapshot)) (func(), error) {
	sub, err := s.svc.Subscribe(ctx, s.scope)
	if err != nil {
		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			snap, err := sub.Next(pumpCtx)
			if err != nil {
				if !errors.Is(err, ErrSubscriptionClosed) && !errors.Is(err, context.Canceled) {
					s.svc.log.Warn("subscription ended", "collection", s.scope.CollectionPath(), "error", err)
				}
				return
			}
			fn(snap)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			sub.Close()
			<-stopped
		})
	}, nil
}

func (s *ScopedStore) Upsert(ctx context.Context, id string, f notes.Fields) error {
	_, err := s.svc.Upsert(ctx, s.scope, id, f)
	return err
}

func (s *ScopedStore) Remove(ctx context.Context, id string) error {
	return s.svc.Delete(ctx, s.scope, id)
}
