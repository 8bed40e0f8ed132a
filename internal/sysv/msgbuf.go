// Package sysv implements the SysV Service (spec.md §4.5, component F):
// message queues and counting semaphores. The message-ring layout and the
// bounded-pool allocation strategy are grounded directly on
// _examples/original_source/src/sys/pm/sysv/msg/buffer.c's msgbuf_alloc/
// msgbuf_free/msgbuf_put/msgbuf_get, adapted from byte-addressed C arrays
// to a Go ring of fixed-size message slots.
package sysv

import (
	"sync"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
)

// msgSlot holds one queued message's type tag and payload, sized to
// NANVIX_MSG_SIZE_MAX as spec.md §4.5 requires.
type msgSlot struct {
	mtype   int64
	payload [limits.NANVIX_MSG_SIZE_MAX]byte
	length  int
}

// msgbuf is a fixed-capacity ring of NANVIX_MSG_LENGTH_MAX message slots,
// mirroring buffer.c's msgbuf{len,size,head,tail,data[MSGBUF_SIZE]}.
type msgbuf struct {
	slots [limits.NANVIX_MSG_LENGTH_MAX]msgSlot
	head  int // next slot to write (msgbuf_put)
	tail  int // next slot to read (msgbuf_get)
	len   int // number of occupied slots
	inUse bool
}

// msgbufPool is the bounded pool of NANVIX_MSG_MAX ring buffers every
// message queue allocates from, the same shape buffer.c's static array of
// msgbuf structs takes: a queue never heap-allocates its own ring.
type msgbufPool struct {
	mu   sync.Mutex
	pool [limits.NANVIX_MSG_MAX]msgbuf
}

func newMsgbufPool() *msgbufPool {
	return &msgbufPool{}
}

// alloc returns the index of a free msgbuf, or -1 if the pool is exhausted
// (msgbuf_alloc in buffer.c).
func (p *msgbufPool) alloc() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.pool {
		if !p.pool[i].inUse {
			p.pool[i] = msgbuf{inUse: true}
			return i
		}
	}
	return -1
}

// free releases msgbuf i back to the pool (msgbuf_free).
func (p *msgbufPool) free(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pool[i] = msgbuf{}
}

// put appends a message to ring i, failing if the ring is full
// (msgbuf_put's head/tail modulo-advance logic).
func (p *msgbufPool) put(i int, mtype int64, data []byte) errs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := &p.pool[i]
	if b.len == limits.NANVIX_MSG_LENGTH_MAX {
		return errs.ENOSPC
	}
	slot := &b.slots[b.head]
	slot.mtype = mtype
	slot.length = copy(slot.payload[:], data)
	b.head = (b.head + 1) % limits.NANVIX_MSG_LENGTH_MAX
	b.len++
	return errs.SUCCESS
}

// get dequeues the oldest message from ring i, failing ENOMSG if empty
// (msgbuf_get).
func (p *msgbufPool) get(i int) (int64, []byte, errs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := &p.pool[i]
	if b.len == 0 {
		return 0, nil, errs.ENOMSG
	}
	slot := b.slots[b.tail]
	b.tail = (b.tail + 1) % limits.NANVIX_MSG_LENGTH_MAX
	b.len--
	out := make([]byte, slot.length)
	copy(out, slot.payload[:slot.length])
	return slot.mtype, out, errs.SUCCESS
}

func (p *msgbufPool) full(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool[i].len == limits.NANVIX_MSG_LENGTH_MAX
}
