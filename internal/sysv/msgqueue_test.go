package sysv

import (
	"testing"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sendSync drives Send's callback API for a call known to complete
// immediately (room available, or IPC_NOWAIT).
func sendSync(s *MsgStore, id int, mtype int64, payload []byte, flags int) errs.Err_t {
	var result errs.Err_t
	called := false
	s.Send(id, mtype, payload, flags, func(err errs.Err_t) { called = true; result = err })
	if !called {
		panic("sendSync: callback was not invoked synchronously")
	}
	return result
}

// receiveSync mirrors sendSync for Receive.
func receiveSync(s *MsgStore, id int, flags int) (int64, []byte, errs.Err_t) {
	var mtype int64
	var payload []byte
	var result errs.Err_t
	called := false
	s.Receive(id, flags, func(mt int64, data []byte, err errs.Err_t) {
		called = true
		mtype, payload, result = mt, data, err
	})
	if !called {
		panic("receiveSync: callback was not invoked synchronously")
	}
	return mtype, payload, result
}

func TestMsgGetCreateAndReuse(t *testing.T) {
	s := NewMsgStore()
	id1, err := s.Get(42, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)

	id2, err := s.Get(42, 0)
	require.Equal(t, errs.SUCCESS, err)
	assert.Equal(t, id1, id2, "getting an existing key must return the same id")
}

func TestMsgGetExclFailsIfExists(t *testing.T) {
	s := NewMsgStore()
	_, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)
	_, err = s.Get(1, IPC_CREAT|IPC_EXCL)
	assert.Equal(t, errs.EEXIST, err)
}

func TestMsgGetWithoutCreateMissingKey(t *testing.T) {
	s := NewMsgStore()
	_, err := s.Get(99, 0)
	assert.Equal(t, errs.ENOENT, err)
}

func TestMsgSendReceiveFIFO(t *testing.T) {
	s := NewMsgStore()
	id, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)

	require.Equal(t, errs.SUCCESS, sendSync(s, id, 1, []byte("first"), 0))
	require.Equal(t, errs.SUCCESS, sendSync(s, id, 2, []byte("second"), 0))

	mt, data, err := receiveSync(s, id, 0)
	require.Equal(t, errs.SUCCESS, err)
	assert.Equal(t, int64(1), mt)
	assert.Equal(t, "first", string(data))

	mt, data, err = receiveSync(s, id, 0)
	require.Equal(t, errs.SUCCESS, err)
	assert.Equal(t, int64(2), mt)
	assert.Equal(t, "second", string(data))
}

func TestMsgReceiveNoWaitOnEmptyQueue(t *testing.T) {
	s := NewMsgStore()
	id, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)
	_, _, err = receiveSync(s, id, IPC_NOWAIT)
	assert.Equal(t, errs.ENOMSG, err)
}

// TestMsgSendParksUntilReceiverFreesSpace proves a send against a full
// queue never calls back synchronously (the deadlock this would otherwise
// cause on the single serve-loop goroutine), and that a later Receive call
// flushes its delayed completion directly rather than needing to poll.
func TestMsgSendParksUntilReceiverFreesSpace(t *testing.T) {
	s := NewMsgStore()
	id, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)

	for {
		if e := sendSync(s, id, 1, []byte("x"), IPC_NOWAIT); e != errs.SUCCESS {
			break
		}
	}

	var lateResult errs.Err_t
	lateDone := false
	s.Send(id, 9, []byte("late"), 0, func(err errs.Err_t) {
		lateDone = true
		lateResult = err
	})
	assert.False(t, lateDone, "a send against a full queue must park instead of calling back immediately")

	_, _, err = receiveSync(s, id, 0)
	require.Equal(t, errs.SUCCESS, err)

	assert.True(t, lateDone, "freeing a slot must flush the parked send's callback")
	assert.Equal(t, errs.SUCCESS, lateResult)
}

func TestMsgCloseFreesQueueAtZeroRefcount(t *testing.T) {
	s := NewMsgStore()
	id, err := s.Get(1, IPC_CREAT)
	require.Equal(t, errs.SUCCESS, err)
	require.Equal(t, errs.SUCCESS, s.Close(id))

	_, err = s.Get(1, 0)
	assert.Equal(t, errs.ENOENT, err, "queue must be gone once its last reference is closed")
}
