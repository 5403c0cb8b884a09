package session

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Dispatcher drives many Sessions concurrently, one goroutine per session,
// matching spec §5's concurrency model: within a session, messages are
// strictly serialised (Session.SetActive already enforces this with its own
// mutex and the "already outstanding" check); across sessions nothing is
// shared except the random pool and the cert store, so nothing here
// coordinates between them beyond the shared errgroup.
type Dispatcher struct {
	limit int
}

// NewDispatcher builds a Dispatcher that runs at most limit sessions'
// goroutines concurrently. limit <= 0 means unbounded.
func NewDispatcher(limit int) *Dispatcher {
	return &Dispatcher{limit: limit}
}

// Run drives every session to completion (its ConnectionActive flag
// dropping to false) or until ctx is cancelled. Each session checks ctx
// before starting its next transaction and, once ctx is cancelled, is torn
// down via Destroy (spec §5); a transaction already blocked in its
// transport read is not interrupted by cancellation, only by the
// transport deadline.
func (d *Dispatcher) Run(ctx context.Context, sessions []*Session) error {
	g, ctx := errgroup.WithContext(ctx)
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			return driveSession(ctx, s)
		})
	}
	return g.Wait()
}

func driveSession(ctx context.Context, s *Session) error {
	for s.ConnectionActive() {
		select {
		case <-ctx.Done():
			return s.Destroy()
		default:
		}
		if err := s.SetActive(true); err != nil {
			_ = s.Destroy()
			return err
		}
	}
	return nil
}
