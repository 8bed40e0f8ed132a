// Package rmem implements the RMem Service (spec.md §4.6, component G): a
// flat remote-page pool with free-list allocation, adapted from biscuit's
// Physmem_t free-list/refcount page allocator (biscuit/src/mem/mem.go) —
// here indices replace physical addresses and refcounting is dropped since
// RMem pages are owned by exactly one allocator, not shared mappings.
package rmem

import (
	"sync"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
)

// PageNumber identifies a page in the pool; limits.RMEM_NULL (0) means "no
// page" (spec.md's NULL_PAGE, see GLOSSARY).
type PageNumber uint32

// Store is the flat remote-page pool (spec.md §3 "Remote page").
type Store struct {
	mu       sync.Mutex
	frames   [][limits.RMEM_BLOCK_SIZE]byte
	taken    []bool
	freelist []uint32 // indices of free frames, biscuit-style free list
}

// NewStore returns a pool of RMEM_NUM_BLOCKS pages, all free.
func NewStore() *Store {
	s := &Store{
		frames: make([][limits.RMEM_BLOCK_SIZE]byte, limits.RMEM_NUM_BLOCKS),
		taken:  make([]bool, limits.RMEM_NUM_BLOCKS),
	}
	// page 0 is reserved as NULL_PAGE and never handed out.
	for i := limits.RMEM_NUM_BLOCKS - 1; i >= 1; i-- {
		s.freelist = append(s.freelist, uint32(i))
	}
	return s
}

// Alloc marks the lowest free index taken and returns it, or RMEM_NULL if
// the pool is exhausted (spec.md §4.6 alloc).
func (s *Store) Alloc() PageNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.freelist) == 0 {
		return limits.RMEM_NULL
	}
	lo := 0
	for i, v := range s.freelist {
		if v < s.freelist[lo] {
			lo = i
		}
	}
	idx := s.freelist[lo]
	s.freelist = append(s.freelist[:lo], s.freelist[lo+1:]...)
	s.taken[idx] = true
	s.frames[idx] = [limits.RMEM_BLOCK_SIZE]byte{}
	return PageNumber(idx)
}

// Free releases page n, failing if it was not allocated (spec.md §4.6 free).
func (s *Store) Free(n PageNumber) errs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validIndex(n) || !s.taken[n] {
		return errs.EINVAL
	}
	s.taken[n] = false
	s.freelist = append(s.freelist, uint32(n))
	return errs.SUCCESS
}

func (s *Store) validIndex(n PageNumber) bool {
	return n >= 1 && int(n) < limits.RMEM_NUM_BLOCKS
}

// validateExtent rejects out-of-range or wraparound byte ranges before any
// I/O happens (spec.md §4.6 "Address validation").
func validateExtent(addr, size int) errs.Err_t {
	if addr < 0 || addr >= limits.RMEM_SIZE {
		return errs.EINVAL
	}
	if size < 0 || addr+size > limits.RMEM_SIZE {
		return errs.EINVAL
	}
	return errs.SUCCESS
}

// Read copies size bytes starting at addr (a byte offset into the flat
// address space, spanning pages) into buf (spec.md §4.6 read).
func (s *Store) Read(addr, size int, buf []byte) errs.Err_t {
	if err := validateExtent(addr, size); err != errs.SUCCESS {
		return err
	}
	if len(buf) < size {
		return errs.EINVAL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := size
	pos := addr
	written := 0
	for remaining > 0 {
		page := pos / limits.RMEM_BLOCK_SIZE
		off := pos % limits.RMEM_BLOCK_SIZE
		n := copy(buf[written:written+remaining], s.frames[page][off:])
		pos += n
		written += n
		remaining -= n
	}
	return errs.SUCCESS
}

// Write copies size bytes from buf into the flat address space at addr
// (spec.md §4.6 write).
func (s *Store) Write(addr, size int, buf []byte) errs.Err_t {
	if err := validateExtent(addr, size); err != errs.SUCCESS {
		return err
	}
	if len(buf) < size {
		return errs.EINVAL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := size
	pos := addr
	read := 0
	for remaining > 0 {
		page := pos / limits.RMEM_BLOCK_SIZE
		off := pos % limits.RMEM_BLOCK_SIZE
		n := copy(s.frames[page][off:], buf[read:read+remaining])
		pos += n
		read += n
		remaining -= n
	}
	return errs.SUCCESS
}

// ReadPage copies an entire page's bytes out, used by the page cache on a
// cache-miss fetch.
func (s *Store) ReadPage(n PageNumber, buf *[limits.RMEM_BLOCK_SIZE]byte) errs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validIndex(n) || !s.taken[n] {
		return errs.EINVAL
	}
	*buf = s.frames[n]
	return errs.SUCCESS
}

// WritePage writes an entire page's bytes back, used on page-cache
// write-back.
func (s *Store) WritePage(n PageNumber, buf [limits.RMEM_BLOCK_SIZE]byte) errs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validIndex(n) || !s.taken[n] {
		return errs.EINVAL
	}
	s.frames[n] = buf
	return errs.SUCCESS
}
