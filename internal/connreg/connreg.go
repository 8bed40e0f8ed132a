// Package connreg implements the Connection Registry (spec.md §4.2,
// component C), adapted from biscuit's hashtable.Hashtable_t
// (biscuit/src/hashtable/hashtable.go) for the index structure and from
// _examples/original_source/src/sys/common/connection.c for the exact
// slot-reclaim semantics (remote_pid < 0 marks a free slot).
package connreg

import (
	"sync"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
)

// Slot is a connection slot (spec.md §3 "Connection slot").
type Slot struct {
	RemotePID int
	RefCount  int
	ReplyPort uint16
}

func freeSlot() Slot { return Slot{RemotePID: -1} }

// Registry multiplexes a fixed set of transport endpoints among remote
// peers, one per server (spec.md §4.2).
type Registry struct {
	mu      sync.Mutex
	slots   []Slot
	byPID   map[int]int // remote_pid -> slot index, mirrors hashtable.Hashtable_t's O(1) lookup
	metrics *metrics.Store
}

// New returns an empty registry sized to NANVIX_CONNECTIONS_MAX.
func New() *Registry {
	r := &Registry{
		slots: make([]Slot, limits.NANVIX_CONNECTIONS_MAX),
		byPID: make(map[int]int),
	}
	for i := range r.slots {
		r.slots[i] = freeSlot()
	}
	return r
}

// SetMetrics attaches a counter store: Connect reusing an existing slot
// counts as a hit, allocating a fresh one as a miss, and Disconnect
// reclaiming a slot to free as an eviction. Nil detaches it.
func (r *Registry) SetMetrics(m *metrics.Store) {
	r.mu.Lock()
	r.metrics = m
	r.mu.Unlock()
}

// Connect occupies the first free slot for remotePID, or increments its
// refcount if already connected.
func (r *Registry) Connect(remotePID int) (int, errs.Err_t) {
	if remotePID < 0 {
		return -1, errs.EINVAL
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byPID[remotePID]; ok {
		r.slots[idx].RefCount++
		r.metrics.HitInc()
		return idx, errs.SUCCESS
	}
	for i := range r.slots {
		if r.slots[i].RemotePID < 0 {
			r.slots[i] = Slot{RemotePID: remotePID, RefCount: 1}
			r.byPID[remotePID] = i
			r.metrics.MissInc()
			return i, errs.SUCCESS
		}
	}
	return -1, errs.EAGAIN
}

// Disconnect decrements remotePID's refcount, freeing its slot at zero.
func (r *Registry) Disconnect(remotePID int) errs.Err_t {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byPID[remotePID]
	if !ok {
		return errs.ENOENT
	}
	r.slots[idx].RefCount--
	if r.slots[idx].RefCount <= 0 {
		r.slots[idx] = freeSlot()
		delete(r.byPID, remotePID)
		r.metrics.EvictionInc()
	}
	return errs.SUCCESS
}

// Lookup returns the slot index bound to remotePID.
func (r *Registry) Lookup(remotePID int) (int, errs.Err_t) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byPID[remotePID]
	if !ok {
		return -1, errs.ENOENT
	}
	return idx, errs.SUCCESS
}

// List copies every live remote pid into the returned slice.
func (r *Registry) List() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.byPID))
	for pid := range r.byPID {
		out = append(out, pid)
	}
	return out
}

// SetPort records the reply port known for slot idx.
func (r *Registry) SetPort(idx int, port uint16) errs.Err_t {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.slots) || r.slots[idx].RemotePID < 0 {
		return errs.ENOENT
	}
	r.slots[idx].ReplyPort = port
	return errs.SUCCESS
}

// GetPort returns the reply port recorded for slot idx.
func (r *Registry) GetPort(idx int) (uint16, errs.Err_t) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.slots) || r.slots[idx].RemotePID < 0 {
		return 0, errs.ENOENT
	}
	return r.slots[idx].ReplyPort, errs.SUCCESS
}

// Slot returns a copy of slot idx, the second result false if idx is out of
// range or free.
func (r *Registry) Slot(idx int) (Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.slots) || r.slots[idx].RemotePID < 0 {
		return Slot{}, false
	}
	return r.slots[idx], true
}
