package sysv

import (
	"sync"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
)

// Sembuf mirrors the POSIX nanvix_sembuf a semop batch is built from
// (spec.md §4.5).
type Sembuf struct {
	SemNum int
	SemOp  int
	SemFlg int
}

type semWaiter struct {
	ops  []Sembuf
	done func(err errs.Err_t)
}

type semaphore struct {
	key      int
	value    int
	refcount int
	waiters  []*semWaiter // FIFO wait queue, woken on every value change
}

// SemStore is the semaphore half of the SysV Service.
type SemStore struct {
	mu      sync.Mutex
	byKey   map[int]*semaphore
	byID    map[int]*semaphore
	nextID  int
	metrics *metrics.Store
}

// NewSemStore returns an empty semaphore store.
func NewSemStore() *SemStore {
	return &SemStore{byKey: make(map[int]*semaphore), byID: make(map[int]*semaphore), nextID: 1}
}

// SetMetrics attaches a counter store: an Operate batch that applies
// immediately counts as a hit, one parked on the wait list as a miss, a
// parked waiter woken by wakeEligible as a write-back, and a semaphore's
// reclaim at Close as an eviction. Nil detaches it.
func (s *SemStore) SetMetrics(m *metrics.Store) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// Get implements semget(key, flags) (spec.md §4.5).
func (s *SemStore) Get(key int, flags int) (int, errs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sem, ok := s.byKey[key]; ok {
		if flags&IPC_CREAT != 0 && flags&IPC_EXCL != 0 {
			return -1, errs.EEXIST
		}
		sem.refcount++
		return sem.key, errs.SUCCESS
	}
	if flags&IPC_CREAT == 0 {
		return -1, errs.ENOENT
	}
	if len(s.byID) >= limits.NANVIX_SEM_MAX {
		return -1, errs.ENOSPC
	}
	id := s.nextID
	s.nextID++
	sem := &semaphore{key: id, refcount: 1}
	s.byKey[key] = sem
	s.byID[id] = sem
	return id, errs.SUCCESS
}

// Operate implements semop: applies every op in batch atomically (spec.md
// §4.5's "a single semop call with multiple operations applies all or
// none"). A batch that would block on any op never blocks the caller: it
// is parked on sem's wait list with no state change, per spec.md §8's
// boundary behavior, and done is invoked later by wakeEligible once a
// paired Operate call makes the batch satisfiable.
func (s *SemStore) Operate(id int, ops []Sembuf, done func(err errs.Err_t)) {
	s.mu.Lock()
	sem, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		done(errs.ENOENT)
		return
	}

	ready, nowaitFail := canApply(sem, ops)
	if nowaitFail {
		s.mu.Unlock()
		done(errs.EAGAIN)
		return
	}
	if ready {
		apply(sem, ops)
		s.metrics.HitInc()
		thunks := s.wakeEligible(sem)
		s.mu.Unlock()
		done(errs.SUCCESS)
		for _, t := range thunks {
			t()
		}
		return
	}

	sem.waiters = append(sem.waiters, &semWaiter{ops: ops, done: done})
	s.metrics.MissInc()
	s.mu.Unlock()
}

// canApply reports whether every op in ops can be satisfied against sem's
// current value without blocking, and whether any op demands an
// IPC_NOWAIT failure instead of suspension.
func canApply(sem *semaphore, ops []Sembuf) (ready bool, nowaitFail bool) {
	value := sem.value
	for _, op := range ops {
		switch {
		case op.SemOp > 0:
			value += op.SemOp
		case op.SemOp < 0:
			if value < -op.SemOp {
				if op.SemFlg&IPC_NOWAIT != 0 {
					return false, true
				}
				return false, false
			}
			value += op.SemOp
		default: // op.SemOp == 0: wait for value to be zero
			if value != 0 {
				if op.SemFlg&IPC_NOWAIT != 0 {
					return false, true
				}
				return false, false
			}
		}
	}
	return true, false
}

func apply(sem *semaphore, ops []Sembuf) {
	for _, op := range ops {
		sem.value += op.SemOp
	}
}

// wakeEligible pops as many FIFO waiters as the new value allows (spec.md
// §4.5: "wake as many waiters as the new value allows, in FIFO order"),
// returning their reply callbacks as thunks for the caller to invoke once
// it has released the store's mutex.
func (s *SemStore) wakeEligible(sem *semaphore) []func() {
	var thunks []func()
	for len(sem.waiters) > 0 {
		w := sem.waiters[0]
		ready, _ := canApply(sem, w.ops)
		if !ready {
			break
		}
		apply(sem, w.ops)
		sem.waiters = sem.waiters[1:]
		s.metrics.WriteBackInc()
		thunks = append(thunks, func() { w.done(errs.SUCCESS) })
	}
	return thunks
}

// Close implements sem close: decrement refcount, free at zero.
func (s *SemStore) Close(id int) errs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.byID[id]
	if !ok {
		return errs.ENOENT
	}
	sem.refcount--
	if sem.refcount <= 0 {
		delete(s.byID, id)
		for k, v := range s.byKey {
			if v == sem {
				delete(s.byKey, k)
			}
		}
		s.metrics.EvictionInc()
	}
	return errs.SUCCESS
}
