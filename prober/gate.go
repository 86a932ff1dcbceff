package prober

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of fetch units that may be inside the network
// section at once.
type Gate struct {
	sem *semaphore.Weighted
	n   int
}

// NewGate returns a gate with n slots. n below 1 is treated as 1.
func NewGate(n int) *Gate {
	n = max(n, 1)
	return &Gate{sem: semaphore.NewWeighted(int64(n)), n: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire concurrency slot: %w", err)
	}
	return nil
}

// Release returns a slot taken by Acquire.
func (g *Gate) Release() { g.sem.Release(1) }

// Size returns the number of slots.
func (g *Gate) Size() int { return g.n }
