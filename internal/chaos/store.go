package chaos

import (
	"context"

	"github.com/alekspetrov/autonomy/internal/backlog"
)

// FaultyStore is a backlog.Store whose reads and writes pass through
// injectors first. Either injector may be nil.
type FaultyStore struct {
	inner  backlog.Store
	reads  *Injector
	writes *Injector
}

var _ backlog.Store = (*FaultyStore)(nil)

// NewFaultyStore wraps inner.
func NewFaultyStore(inner backlog.Store, reads, writes *Injector) *FaultyStore {
	return &FaultyStore{inner: inner, reads: reads, writes: writes}
}

func (s *FaultyStore) Get(ctx context.Context, sessionID string) ([]backlog.Task, error) {
	if err := apply(ctx, s.reads); err != nil {
		return nil, err
	}
	return s.inner.Get(ctx, sessionID)
}

func (s *FaultyStore) Update(ctx context.Context, sessionID string, tasks []backlog.Task) error {
	if err := apply(ctx, s.writes); err != nil {
		return err
	}
	return s.inner.Update(ctx, sessionID, tasks)
}

func apply(ctx context.Context, in *Injector) error {
	if in == nil {
		return nil
	}
	return in.Apply(ctx)
}
