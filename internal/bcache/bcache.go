// Package bcache implements the Block Buffer Cache (spec.md §4.8,
// component I): a fixed-size set of device-block buffers with an LRU
// victim policy and a dirty/write-back contract, adapted from biscuit's
// Bdev_block_t/BlkList_t (biscuit/src/fs/blk.go) with the refcount-as-lock
// discipline of spec.md §5 ("a caller holding a pointer is guaranteed the
// buffer is not evicted").
package bcache

import (
	"sync"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
	"github.com/nanvix/multikernel-sub001/internal/ramdisk"
)

// Key identifies a buffer by (device, block).
type Key struct {
	Dev   int
	Block int
}

// Buffer is a cached device block (spec.md §3 "Block buffer").
type Buffer struct {
	Key      Key
	Data     [limits.BLOCK_SIZE]byte
	dirty    bool
	refcount int
	age      uint64
}

// Dirty reports whether Data has been written since the last write-through.
func (b *Buffer) Dirty() bool { return b.dirty }

// Cache is the fixed-size block buffer cache.
type Cache struct {
	mu      sync.Mutex
	dev     *ramdisk.Device
	buffers [limits.NR_BUFFERS]Buffer
	valid   [limits.NR_BUFFERS]bool
	byKey   map[Key]int
	clock   uint64
	metrics *metrics.Store
}

// New returns an empty buffer cache fronting dev.
func New(dev *ramdisk.Device) *Cache {
	return &Cache{dev: dev, byKey: make(map[Key]int)}
}

// SetMetrics attaches a counter store so subsequent hits, misses, evictions
// and write-backs are exported; nil detaches it.
func (c *Cache) SetMetrics(m *metrics.Store) {
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
}

// Bread returns a locked pointer to the buffer holding (dev, n), filling it
// from the block device on a miss (spec.md §4.8 bread). The returned
// buffer must be released with Brelse.
func (c *Cache) Bread(dev, n int) (*Buffer, errs.Err_t) {
	key := Key{Dev: dev, Block: n}
	c.mu.Lock()
	if idx, ok := c.byKey[key]; ok {
		b := &c.buffers[idx]
		b.refcount++
		c.clock++
		b.age = c.clock
		c.metrics.HitInc()
		c.mu.Unlock()
		return b, errs.SUCCESS
	}

	idx, err := c.evictLocked()
	if err != errs.SUCCESS {
		c.mu.Unlock()
		return nil, err
	}
	old := &c.buffers[idx]
	if c.valid[idx] {
		c.metrics.EvictionInc()
		if old.dirty {
			if e := c.dev.WriteBlock(old.Key.Block, old.Data[:]); e != errs.SUCCESS {
				c.mu.Unlock()
				return nil, e
			}
			c.metrics.WriteBackInc()
		}
		delete(c.byKey, old.Key)
	}
	c.clock++
	nb := Buffer{Key: key, refcount: 1, age: c.clock}
	if e := c.dev.ReadBlock(n, nb.Data[:]); e != errs.SUCCESS {
		c.mu.Unlock()
		return nil, e
	}
	c.buffers[idx] = nb
	c.valid[idx] = true
	c.byKey[key] = idx
	c.metrics.MissInc()
	c.mu.Unlock()
	return &c.buffers[idx], errs.SUCCESS
}

// evictLocked picks a non-busy (refcount==0) buffer to reclaim, the
// least-recently-used one when the cache is full. Must be called with
// c.mu held.
func (c *Cache) evictLocked() (int, errs.Err_t) {
	for i := range c.valid {
		if !c.valid[i] {
			return i, errs.SUCCESS
		}
	}
	best := -1
	var bestAge uint64
	for i := range c.buffers {
		if c.buffers[i].refcount > 0 {
			continue
		}
		if best == -1 || c.buffers[i].age < bestAge {
			best = i
			bestAge = c.buffers[i].age
		}
	}
	if best == -1 {
		return -1, errs.EBUSY
	}
	return best, errs.SUCCESS
}

// Bwrite writes buf through to the block device immediately, marks it
// clean and retains it in cache (spec.md §4.8 bwrite).
func (c *Cache) Bwrite(buf *Buffer) errs.Err_t {
	if err := c.dev.WriteBlock(buf.Key.Block, buf.Data[:]); err != errs.SUCCESS {
		return err
	}
	c.mu.Lock()
	buf.dirty = false
	c.mu.Unlock()
	return errs.SUCCESS
}

// Bwrite2 marks buf dirty without writing through, deferring the write
// until eviction (spec.md §4.8 bwrite2, write-behind).
func (c *Cache) Bwrite2(buf *Buffer) {
	c.mu.Lock()
	buf.dirty = true
	c.mu.Unlock()
}

// SetDirty marks buf dirty (spec.md §4.8 buffer_set_dirty).
func (c *Cache) SetDirty(buf *Buffer) {
	c.mu.Lock()
	buf.dirty = true
	c.mu.Unlock()
}

// IsDirty reports buf's dirty bit (spec.md §4.8 buffer_is_dirty).
func (c *Cache) IsDirty(buf *Buffer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return buf.dirty
}

// Brelse releases a reference to buf, unlocking it (spec.md §4.8 brelse).
func (c *Cache) Brelse(buf *Buffer) {
	c.mu.Lock()
	if buf.refcount > 0 {
		buf.refcount--
	}
	c.mu.Unlock()
}

// Sync writes back every dirty buffer still resident in cache, used during
// teardown (spec.md §4.10).
func (c *Cache) Sync() errs.Err_t {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.valid {
		if c.valid[i] && c.buffers[i].dirty {
			if err := c.dev.WriteBlock(c.buffers[i].Key.Block, c.buffers[i].Data[:]); err != errs.SUCCESS {
				return err
			}
			c.buffers[i].dirty = false
		}
	}
	return errs.SUCCESS
}
