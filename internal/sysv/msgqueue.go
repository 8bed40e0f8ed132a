package sysv

import (
	"sync"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
)

// IPC flag bits, named after the POSIX SysV IPC vocabulary spec.md §4.5
// references directly (IPC_CREAT, IPC_EXCL, IPC_NOWAIT).
const (
	IPC_CREAT  = 1 << 0
	IPC_EXCL   = 1 << 1
	IPC_NOWAIT = 1 << 2
)

// msgSendWaiter is a sender suspended on a full queue, carrying the
// message it still needs to deliver and the callback that completes its
// request once room opens up.
type msgSendWaiter struct {
	mtype   int64
	payload []byte
	done    func(err errs.Err_t)
}

// msgReceiveWaiter is a receiver suspended on an empty queue, carrying the
// callback that completes its request once a message arrives.
type msgReceiveWaiter struct {
	done func(mtype int64, payload []byte, err errs.Err_t)
}

type msgQueue struct {
	key      int
	bufIdx   int
	refcount int
	// waitSend/waitReceive hold suspended callers in FIFO order, per spec.md
	// §9's wait-list design note: an operation that cannot complete yet
	// registers its reply callback here instead of blocking the caller's
	// goroutine, and the paired operation invokes it directly once the
	// queue state allows.
	waitSend    []msgSendWaiter
	waitReceive []msgReceiveWaiter
}

// MsgStore is the message-queue half of the SysV Service.
type MsgStore struct {
	mu      sync.Mutex
	bufs    *msgbufPool
	byKey   map[int]*msgQueue
	byID    map[int]*msgQueue
	nextID  int
	metrics *metrics.Store
}

// NewMsgStore returns an empty message-queue store.
func NewMsgStore() *MsgStore {
	return &MsgStore{
		bufs:   newMsgbufPool(),
		byKey:  make(map[int]*msgQueue),
		byID:   make(map[int]*msgQueue),
		nextID: 1,
	}
}

// SetMetrics attaches a counter store: a Send/Receive that completes
// immediately counts as a hit, one parked on the wait list as a miss, a
// parked waiter's delayed completion as a write-back, and a queue's
// reclaim at Close as an eviction. Nil detaches it.
func (s *MsgStore) SetMetrics(m *metrics.Store) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// Get implements msg_get(key, flags): returns the existing queue's id, or
// allocates one under IPC_CREAT (spec.md §4.5).
func (s *MsgStore) Get(key int, flags int) (int, errs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.byKey[key]; ok {
		if flags&IPC_CREAT != 0 && flags&IPC_EXCL != 0 {
			return -1, errs.EEXIST
		}
		q.refcount++
		return q.key, errs.SUCCESS
	}
	if flags&IPC_CREAT == 0 {
		return -1, errs.ENOENT
	}
	idx := s.bufs.alloc()
	if idx < 0 {
		return -1, errs.ENOSPC
	}
	id := s.nextID
	s.nextID++
	q := &msgQueue{key: id, bufIdx: idx, refcount: 1}
	s.byKey[key] = q
	s.byID[id] = q
	return id, errs.SUCCESS
}

// Send implements msg_send(id, payload, flags) (spec.md §4.5). It never
// blocks the caller: if the queue is full and IPC_NOWAIT is absent, the
// send is parked on the queue's wait list and done is invoked later, from
// whichever Receive call frees the room for it.
func (s *MsgStore) Send(id int, mtype int64, payload []byte, flags int, done func(err errs.Err_t)) {
	var thunks []func()
	s.mu.Lock()
	q, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		done(errs.ENOENT)
		return
	}
	if s.bufs.full(q.bufIdx) {
		if flags&IPC_NOWAIT != 0 {
			s.mu.Unlock()
			done(errs.ENOSPC)
			return
		}
		q.waitSend = append(q.waitSend, msgSendWaiter{mtype: mtype, payload: payload, done: done})
		s.metrics.MissInc()
		s.mu.Unlock()
		return
	}
	err := s.bufs.put(q.bufIdx, mtype, payload)
	s.metrics.HitInc()
	thunks = append(thunks, func() { done(err) })
	// a send freed nothing for another sender, but a receiver may now have
	// data to read; wake the oldest one by actually delivering it.
	if len(q.waitReceive) > 0 {
		w := q.waitReceive[0]
		q.waitReceive = q.waitReceive[1:]
		mt, data, gerr := s.bufs.get(q.bufIdx)
		s.metrics.WriteBackInc()
		thunks = append(thunks, func() { w.done(mt, data, gerr) })
	}
	s.mu.Unlock()
	for _, t := range thunks {
		t()
	}
}

// Receive implements msg_receive(id, buf, type, flags) (spec.md §4.5). It
// takes no type filter: it always dequeues the oldest message. It never
// blocks the caller: if the queue is empty and IPC_NOWAIT is absent,
// the receive is parked on the queue's wait list and done is invoked
// later, from whichever Send call delivers a message for it.
func (s *MsgStore) Receive(id int, flags int, done func(mtype int64, payload []byte, err errs.Err_t)) {
	var thunks []func()
	s.mu.Lock()
	q, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		done(0, nil, errs.ENOENT)
		return
	}
	mt, data, err := s.bufs.get(q.bufIdx)
	if err == errs.SUCCESS {
		s.metrics.HitInc()
		thunks = append(thunks, func() { done(mt, data, errs.SUCCESS) })
		// the queue just freed a slot; wake the oldest blocked sender.
		if len(q.waitSend) > 0 {
			w := q.waitSend[0]
			q.waitSend = q.waitSend[1:]
			perr := s.bufs.put(q.bufIdx, w.mtype, w.payload)
			s.metrics.WriteBackInc()
			thunks = append(thunks, func() { w.done(perr) })
		}
		s.mu.Unlock()
		for _, t := range thunks {
			t()
		}
		return
	}
	if flags&IPC_NOWAIT != 0 {
		s.mu.Unlock()
		done(0, nil, errs.ENOMSG)
		return
	}
	q.waitReceive = append(q.waitReceive, msgReceiveWaiter{done: done})
	s.metrics.MissInc()
	s.mu.Unlock()
}

// Close implements msg_close(id): decrement refcount, free queue at zero
// (spec.md §4.5).
func (s *MsgStore) Close(id int) errs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.byID[id]
	if !ok {
		return errs.ENOENT
	}
	q.refcount--
	if q.refcount <= 0 {
		s.bufs.free(q.bufIdx)
		delete(s.byID, id)
		for k, v := range s.byKey {
			if v == q {
				delete(s.byKey, k)
			}
		}
		s.metrics.EvictionInc()
	}
	return errs.SUCCESS
}

var _ = limits.NANVIX_MSG_MAX
