package sweeper

import (
	"context"
	"errors"
	"sync"
)

// Group starts and stops several sweepers together.
type Group struct {
	sweepers []*Sweeper
}

// NewGroup returns a group of sweepers.
func NewGroup(sweepers ...*Sweeper) *Group {
	return &Group{sweepers: sweepers}
}

// Add appends a sweeper.  It must be called before Start.
func (g *Group) Add(s *Sweeper) { g.sweepers = append(g.sweepers, s) }

// Sweepers returns the members of the group.
func (g *Group) Sweepers() []*Sweeper { return g.sweepers }

// Start starts every sweeper.
func (g *Group) Start(ctx context.Context) {
	for _, s := range g.sweepers {
		s.Start(ctx)
	}
}

// Stop stops every sweeper concurrently and waits for all of them, bounded
// by ctx.  The errors of sweepers that missed the deadline are joined.
func (g *Group) Stop(ctx context.Context) error {
	errs := make([]error, len(g.sweepers))
	var wg sync.WaitGroup
	for i, s := range g.sweepers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Stop(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
