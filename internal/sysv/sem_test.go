package sysv

import (
	"testing"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// operateSync drives Operate's callback API for a batch known to complete
// immediately (ready, or rejected by IPC_NOWAIT).
func operateSync(s *SemStore, id int, ops []Sembuf) errs.Err_t {
	var result errs.Err_t
	called := false
	s.Operate(id, ops, func(err errs.Err_t) { called = true; result = err })
	if !called {
		panic("operateSync: callback was not invoked synchronously")
	}
	return result
}

func TestSemGetCreateAndReuse(t *testing.T) {
	s := NewSemStore()
	id1, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)
	id2, err := s.Get(1, 0)
	require.Equal(t, errs.SUCCESS, err)
	assert.Equal(t, id1, id2)
}

func TestSemMutexRoundTrip(t *testing.T) {
	s := NewSemStore()
	id, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)

	// raise the semaphore to 1 (unlocked), then acquire and release it.
	require.Equal(t, errs.SUCCESS, operateSync(s, id, []Sembuf{{SemOp: 1}}))
	require.Equal(t, errs.SUCCESS, operateSync(s, id, []Sembuf{{SemOp: -1}}))
	require.Equal(t, errs.SUCCESS, operateSync(s, id, []Sembuf{{SemOp: 1}}))
}

// TestSemOperateParksUntilAvailable proves a batch that would go negative
// never calls back synchronously (the deadlock this would otherwise cause
// on the single serve-loop goroutine), and that a later Operate call
// flushes its delayed completion directly rather than needing to poll.
func TestSemOperateParksUntilAvailable(t *testing.T) {
	s := NewSemStore()
	id, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)

	var waiterResult errs.Err_t
	waiterDone := false
	s.Operate(id, []Sembuf{{SemOp: -1}}, func(err errs.Err_t) {
		waiterDone = true
		waiterResult = err
	})
	assert.False(t, waiterDone, "a decrement below zero must park instead of calling back immediately")

	require.Equal(t, errs.SUCCESS, operateSync(s, id, []Sembuf{{SemOp: 1}}))

	assert.True(t, waiterDone, "raising the value must flush the parked waiter's callback")
	assert.Equal(t, errs.SUCCESS, waiterResult)
}

func TestSemOperateNoWaitFails(t *testing.T) {
	s := NewSemStore()
	id, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)
	err2 := operateSync(s, id, []Sembuf{{SemOp: -1, SemFlg: IPC_NOWAIT}})
	assert.Equal(t, errs.EAGAIN, err2)
}

func TestSemOperateBatchIsAllOrNone(t *testing.T) {
	s := NewSemStore()
	a, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)
	b, err := s.Get(2, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)
	require.Equal(t, errs.SUCCESS, operateSync(s, a, []Sembuf{{SemOp: 1}}))

	// a batch against two different semaphore ids isn't directly
	// expressible (Operate targets one id), so exercise atomicity within
	// one id instead: an op sequence that would go negative mid-batch
	// must leave value0 untouched when it blocks.
	err3 := operateSync(s, a, []Sembuf{{SemOp: -1, SemFlg: IPC_NOWAIT}, {SemOp: -1, SemFlg: IPC_NOWAIT}})
	assert.Equal(t, errs.EAGAIN, err3)

	// value must be unchanged: a single subsequent -1 succeeds exactly once.
	require.Equal(t, errs.SUCCESS, operateSync(s, a, []Sembuf{{SemOp: -1}}))
	err4 := operateSync(s, a, []Sembuf{{SemOp: -1, SemFlg: IPC_NOWAIT}})
	assert.Equal(t, errs.EAGAIN, err4)

	_ = b
}

func TestSemCloseFreesAtZeroRefcount(t *testing.T) {
	s := NewSemStore()
	id, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)
	require.Equal(t, errs.SUCCESS, s.Close(id))
	_, err = s.Get(1, 0)
	assert.Equal(t, errs.ENOENT, err)
}
