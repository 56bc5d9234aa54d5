package notes

import "context"

// Store is the client-side view of one user's canvas collection.
//
// Subscribe delivers the full current snapshot immediately and again after
// every mutation, including the caller's own writes. Callbacks are invoked
// sequentially in store delivery order; they may arrive on any goroutine.
// The returned function stops delivery and is safe to call more than once.
//
// Upsert merges fields into the document, creating it when missing. Remove
// hard-deletes it. Neither is retried by the store.
type Store interface {
	Subscribe(ctx context.Context, fn func(Snapshot)) (unsubscribe func(), err error)
	Upsert(ctx context.Context, id string, fields Fields) error
	Remove(ctx context.Context, id string) error
}
