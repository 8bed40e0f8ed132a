// Package barrier implements the multi-ring Spawn Barrier (spec.md §4.3,
// component D): an all-to-leader gate followed by a leader-to-all gate per
// spawn ring, ordering server startup the way biscuit's boot sequence
// orders subsystem init (biscuit/src/kernel/chentry.go) but expressed over
// the transport package's SyncGate instead of kernel boot stages.
package barrier

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/transport"
)

// Ring is a spawn-ring index, in [limits.RING_0, limits.RING_LAST].
type Ring int

// Barrier orders ring-by-ring startup among spawner nodes: ring r+1 never
// begins until every follower has arrived at ring r's gate.
type Barrier struct {
	leader    bool
	followers int
	gates     [limits.RING_LAST + 1][2]*transport.SyncGate // [ring][0]=all-to-leader, [1]=leader-to-all
}

// New returns a Barrier for one leader and the given follower count.
// parties is followers+1 (the leader participates in both phases).
func New(leader bool, followers int) *Barrier {
	b := &Barrier{leader: leader, followers: followers}
	parties := followers + 1
	for r := 0; r <= limits.RING_LAST; r++ {
		b.gates[r][0] = transport.NewSyncGate(parties)
		b.gates[r][1] = transport.NewSyncGate(parties)
	}
	return b
}

// Wait blocks until every party has reached ring r: first the all-to-leader
// phase, then the leader-to-all phase, matching spec.md §4.3's two sync
// gates per ring.
func (b *Barrier) Wait(r Ring) {
	b.gates[r][0].Wait()
	b.gates[r][1].Wait()
}

// RunRings drives setup(r) for each ring in order, waiting on the barrier
// between rings so ring r+1's servers never start before ring r's have all
// signalled (spec.md §4.10). setup errors abort the remaining rings.
func RunRings(ctx context.Context, b *Barrier, setup func(ctx context.Context, r Ring) error) error {
	for r := Ring(limits.RING_0); r <= limits.RING_LAST; r++ {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return setup(gctx, r) })
		if err := g.Wait(); err != nil {
			return err
		}
		b.Wait(r)
	}
	return nil
}
