package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/obs"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// ErrSubscriptionClosed is returned by Next after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Service is the document store: validation, per-collection write
// ordering, timestamps and change fan-out over a Repository.
type Service struct {
	repo     Repository
	hub      *Hub
	now      func() time.Time
	exporter Exporter
	log      *slog.Logger

	locksMu sync.Mutex
	locks   map[Scope]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithExporter enables snapshot exports.
func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithHub shares a hub between services.
func WithHub(h *Hub) Option {
	return func(s *Service) { s.hub = h }
}

// NewService creates a store over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		hub:   NewHub(),
		now:   time.Now,
		log:   obs.Pkg("docstore"),
		locks: make(map[Scope]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub returns the change hub.
func (s *Service) Hub() *Hub {
	return s.hub
}

// lock serializes writes and subscriptions within one collection so every
// subscriber sees changes in commit order.
func (s *Service) lock(sc Scope) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[sc]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[sc] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func checkScope(sc Scope) error {
	if err := sc.Validate(); err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid canvas scope", err)
	}
	return nil
}

func checkID(id string) error {
	if !notes.ValidID(id) {
		return errs.Wrap(errs.InvalidArgument, "invalid note id", fmt.Errorf("%w: id %q", ErrInvalidNote, id))
	}
	return nil
}

// List returns the collection ordered by id.
func (s *Service) List(ctx context.Context, sc Scope) ([]notes.Note, error) {
	if err := checkScope(sc); err != nil {
		return nil, err
	}
	ns, err := s.repo.List(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", sc.CollectionPath(), err)
	}
	return ns, nil
}

// Get returns one note.
func (s *Service) Get(ctx context.Context, sc Scope, id string) (notes.Note, error) {
	if err := checkScope(sc); err != nil {
		return notes.Note{}, err
	}
	if err := checkID(id); err != nil {
		return notes.Note{}, err
	}
	n, err := s.repo.Get(ctx, sc, id)
	if errors.Is(err, ErrNotFound) {
		return notes.Note{}, errs.Wrap(errs.NotFound, "note not found", err)
	}
	return n, err
}

// Upsert merges f into note id, creating it when missing. Coordinates are
// clamped into canvas bounds before they are stored.
func (s *Service) Upsert(ctx context.Context, sc Scope, id string, f notes.Fields) (notes.Note, error) {
	if err := checkScope(sc); err != nil {
		return notes.Note{}, err
	}
	if err := checkID(id); err != nil {
		return notes.Note{}, err
	}
	if f.Empty() {
		return notes.Note{}, errs.New(errs.InvalidArgument, "no fields to write")
	}
	if err := notes.ValidateFields(f); err != nil {
		return notes.Note{}, errs.Wrap(errs.InvalidArgument, err.Error(), err)
	}
	f = clampFields(f)

	unlock := s.lock(sc)
	defer unlock()

	if _, err := s.repo.Get(ctx, sc, id); errors.Is(err, ErrNotFound) {
		count, err := s.repo.Count(ctx, sc)
		if err != nil {
			return notes.Note{}, fmt.Errorf("count %s: %w", sc.CollectionPath(), err)
		}
		if err := notes.CheckNoteLimit(count); err != nil {
			return notes.Note{}, errs.Wrap(errs.FailedPrecondition, "canvas is full", err)
		}
	} else if err != nil {
		return notes.Note{}, fmt.Errorf("get %s/%s: %w", sc.CollectionPath(), id, err)
	}

	n, created, err := s.repo.Upsert(ctx, sc, id, f, s.now().UTC())
	if err != nil {
		return notes.Note{}, fmt.Errorf("upsert %s/%s: %w", sc.CollectionPath(), id, err)
	}

	change := notes.Change{Type: notes.ChangeModified, Note: n}
	if created {
		change.Type = notes.ChangeAdded
	}
	obs.From(ctx).With("pkg", "docstore").Debug("note written",
		"note_id", id,
		"change", string(change.Type),
		"text_set", f.Text != nil,
		"position_set", f.X != nil || f.Y != nil,
	)
	s.publish(ctx, sc, change)
	return n, nil
}

// Delete hard-deletes note id. Deleting a missing note succeeds.
func (s *Service) Delete(ctx context.Context, sc Scope, id string) error {
	if err := checkScope(sc); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}

	unlock := s.lock(sc)
	defer unlock()

	n, existed, err := s.repo.Delete(ctx, sc, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", sc.CollectionPath(), id, err)
	}
	if !existed {
		return nil
	}
	obs.From(ctx).With("pkg", "docstore").Debug("note deleted", "note_id", id)
	s.publish(ctx, sc, notes.Change{Type: notes.ChangeRemoved, Note: n})
	return nil
}

// publish must run under the scope lock.
func (s *Service) publish(ctx context.Context, sc Scope, change notes.Change) {
	if !s.hub.Active(sc) {
		return
	}
	all, err := s.repo.List(ctx, sc)
	if err != nil {
		// The write is committed; subscribers catch up on the next one.
		s.log.Error("snapshot after write failed", "collection", sc.CollectionPath(), "error", err)
		return
	}
	s.hub.Publish(sc, all, change)
}

// Subscribe opens a change feed whose first snapshot is the whole
// collection with every note tagged added.
func (s *Service) Subscribe(ctx context.Context, sc Scope) (*Subscription, error) {
	if err := checkScope(sc); err != nil {
		return nil, err
	}

	unlock := s.lock(sc)
	defer unlock()

	all, err := s.repo.List(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", sc.CollectionPath(), err)
	}
	return s.hub.subscribe(sc, notes.Initial(all)), nil
}

// Store returns the notes.Store of one collection, for in-process clients.
func (s *Service) Store(sc Scope) *ScopedStore {
	return &ScopedStore{svc: s, scope: sc}
}

func clampFields(f notes.Fields) notes.Fields {
	if f.X != nil {
		x := viewport.ClampNote(viewport.Point{X: *f.X}).X
		f.X = &x
	}
	if f.Y != nil {
		y := viewport.ClampNote(viewport.Point{Y: *f.Y}).Y
		f.Y = &y
	}
	return f
}
