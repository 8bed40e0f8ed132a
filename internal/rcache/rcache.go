// Package rcache implements the Page Cache (spec.md §4.7, component H), an
// RMem client: a fixed-size associative cache of remote pages with a
// pluggable replacement policy. The policy dispatch follows spec.md §9's
// "tagged variant with uniform pick_victim/note_access/note_insert"
// design note; fetch coalescing is delegated to
// golang.org/x/sync/singleflight (SPEC_FULL.md DOMAIN STACK), the same
// package biscuit's own go.mod already pulls in under golang.org/x/sync.
package rcache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
	"github.com/nanvix/multikernel-sub001/internal/rmem"
)

// Policy identifies a replacement policy (spec.md §4.7).
type Policy int

const (
	BYPASS Policy = iota
	FIFO
	LRU
	NFU
	AGING
)

type line struct {
	valid      bool
	page       rmem.PageNumber
	frame      [limits.RMEM_BLOCK_SIZE]byte
	dirty      bool
	refcnt     uint32
	age        uint64
	strike     int32
	useCtr     uint32 // NFU: incremented on every access, never decays
	ageReg     uint32 // AGING: right-shifted once per Tick, referenced bit set high
	referenced bool   // AGING: set on access, consumed and cleared by the next Tick
	insSeq     uint64 // insertion order, for FIFO
}

// Cache is the fixed-size page cache (spec.md §3 "Cache line").
type Cache struct {
	mu      sync.Mutex
	rmem    *rmem.Store
	lines   [limits.RCACHE_LENGTH]line
	byPage  map[rmem.PageNumber]int
	policy  Policy
	clock   uint64
	group   singleflight.Group
	metrics *metrics.Store
}

// New returns an empty cache fronting store, with the default FIFO policy.
func New(store *rmem.Store) *Cache {
	return &Cache{rmem: store, byPage: make(map[rmem.PageNumber]int), policy: FIFO}
}

// SetMetrics attaches a counter store so subsequent hits, misses, evictions
// and write-backs are exported; nil detaches it.
func (c *Cache) SetMetrics(m *metrics.Store) {
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
}

// SelectReplacementPolicy atomically switches the active policy; existing
// lines retain their metadata (spec.md §4.7).
func (c *Cache) SelectReplacementPolicy(p Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}

// Alloc delegates to RMem and returns a fresh page number (spec.md §4.7
// alloc).
func (c *Cache) Alloc() rmem.PageNumber {
	return c.rmem.Alloc()
}

// Free invalidates any cached copy of n without write-back, then frees it
// remotely (spec.md §4.7 free).
func (c *Cache) Free(n rmem.PageNumber) errs.Err_t {
	c.mu.Lock()
	if idx, ok := c.byPage[n]; ok {
		c.lines[idx] = line{}
		delete(c.byPage, n)
	}
	c.mu.Unlock()
	return c.rmem.Free(n)
}

// Get returns a copy of page n's frame, fetching it on a miss. The cache
// guarantees at most one in-flight fetch per page number via singleflight
// (spec.md §4.7).
func (c *Cache) Get(n rmem.PageNumber) ([limits.RMEM_BLOCK_SIZE]byte, errs.Err_t) {
	c.mu.Lock()
	if idx, ok := c.byPage[n]; ok {
		ln := &c.lines[idx]
		ln.refcnt++
		c.clock++
		ln.age = c.clock
		ln.useCtr++
		ln.referenced = true
		frame := ln.frame
		c.metrics.HitInc()
		c.mu.Unlock()
		return frame, errs.SUCCESS
	}
	c.mu.Unlock()

	key := formatKey(n)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		var buf [limits.RMEM_BLOCK_SIZE]byte
		if e := c.rmem.ReadPage(n, &buf); e != errs.SUCCESS {
			return nil, e
		}
		return buf, nil
	})
	if err != nil {
		return [limits.RMEM_BLOCK_SIZE]byte{}, err.(errs.Err_t)
	}
	buf := v.([limits.RMEM_BLOCK_SIZE]byte)

	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.byPage[n]; ok {
		// another caller's fetch lost the race and installed the line first
		ln := &c.lines[idx]
		ln.refcnt++
		c.clock++
		ln.age = c.clock
		return ln.frame, errs.SUCCESS
	}
	idx, err2 := c.pickVictim()
	if err2 != errs.SUCCESS {
		return [limits.RMEM_BLOCK_SIZE]byte{}, err2
	}
	old := &c.lines[idx]
	if old.valid {
		c.metrics.EvictionInc()
		if old.dirty {
			if e := c.rmem.WritePage(old.page, old.frame); e != errs.SUCCESS {
				return [limits.RMEM_BLOCK_SIZE]byte{}, e
			}
			c.metrics.WriteBackInc()
		}
		delete(c.byPage, old.page)
	}
	c.clock++
	c.lines[idx] = line{valid: true, page: n, frame: buf, age: c.clock, refcnt: 1, insSeq: c.clock, referenced: true}
	c.byPage[n] = idx
	c.metrics.MissInc()

	if c.policy == BYPASS {
		// each get fetches, each put writes back immediately: nothing more
		// to install, the caller still receives the fetched frame.
	}
	return buf, errs.SUCCESS
}

// Put releases a reference to page n, optionally flagging a policy-specific
// strike hint, and for BYPASS writes back immediately (spec.md §4.7 put).
func (c *Cache) Put(n rmem.PageNumber, frame [limits.RMEM_BLOCK_SIZE]byte, dirty bool, strike int32) errs.Err_t {
	c.mu.Lock()
	idx, ok := c.byPage[n]
	if !ok {
		c.mu.Unlock()
		return errs.ENOENT
	}
	ln := &c.lines[idx]
	if dirty {
		ln.frame = frame
		ln.dirty = true
	}
	if ln.refcnt > 0 {
		ln.refcnt--
	}
	if strike != 0 {
		ln.strike = strike
	}
	bypass := c.policy == BYPASS
	pageOut := ln.frame
	if bypass {
		c.lines[idx] = line{}
		delete(c.byPage, n)
	}
	c.mu.Unlock()

	if bypass {
		return c.rmem.WritePage(n, pageOut)
	}
	return errs.SUCCESS
}

// pickVictim returns the first invalid line if there is one, otherwise the
// unpinned line with the smallest key under the active policy. It fails
// with EBUSY only when every line is valid and pinned (spec.md §4.7 "if no
// line is free, eviction fails with EBUSY"). Must be called with c.mu held.
func (c *Cache) pickVictim() (int, errs.Err_t) {
	for i := range c.lines {
		if !c.lines[i].valid {
			return i, errs.SUCCESS
		}
	}
	best := -1
	var bestKey uint64
	for i := range c.lines {
		ln := &c.lines[i]
		if ln.refcnt > 0 {
			continue
		}
		var key uint64
		switch c.policy {
		case FIFO:
			key = ln.insSeq
		case LRU:
			key = ln.age
		case NFU:
			key = uint64(ln.useCtr)
		case AGING:
			key = uint64(ln.ageReg)
		default:
			key = ln.age
		}
		if best == -1 || key < bestKey {
			best = i
			bestKey = key
		}
	}
	if best == -1 {
		return -1, errs.EBUSY
	}
	return best, errs.SUCCESS
}

// Tick advances the AGING policy's per-line shift registers one step
// (spec.md §4.7: AGING is "a per-tick shift-register over use counter"),
// distinct from NFU's never-decaying useCtr. Every valid line's register
// shifts right by one bit; a line accessed since the last Tick then has its
// top bit set after the shift, so recently used lines stay numerically larger
// than idle ones and age out of "recently used" status over successive
// ticks instead of accumulating usage forever.
func (c *Cache) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		ln := &c.lines[i]
		if !ln.valid {
			continue
		}
		ln.ageReg >>= 1
		if ln.referenced {
			ln.ageReg |= 1 << 31
			ln.referenced = false
		}
	}
}

// RunTicker calls Tick once per interval until stop is closed, the
// standalone driver for a Cache that is not already embedded in a server
// with its own periodic hook into the AGING algorithm.
func (c *Cache) RunTicker(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Tick()
		case <-stop:
			return
		}
	}
}

func formatKey(n rmem.PageNumber) string {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * i))
	}
	return string(b[:])
}
