package rmem

import (
	"testing"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatchSync drives Dispatch's callback API; the RMem Service never
// defers a reply, so every call here completes before Dispatch returns.
func dispatchSync(s *Store, hdr wire.Header, payload []byte) ([]byte, errs.Err_t) {
	var out []byte
	var result errs.Err_t
	called := false
	s.Dispatch(hdr, payload, func(p []byte, code errs.Err_t) {
		called = true
		out, result = p, code
	})
	if !called {
		panic("dispatchSync: reply was not invoked synchronously")
	}
	return out, result
}

func TestDispatchAllocAndFree(t *testing.T) {
	s := NewStore()

	out, err := dispatchSync(s, wire.Header{Opcode: wire.RMEM_ALLOC}, nil)
	require.Equal(t, errs.SUCCESS, err)
	var reply AllocReply
	require.NoError(t, wire.DecodePayload(out, &reply))

	freeReq, _ := wire.EncodePayload(FreeRequest{Page: reply.Page})
	_, err = dispatchSync(s, wire.Header{Opcode: wire.RMEM_FREE}, freeReq)
	assert.Equal(t, errs.SUCCESS, err)
}

func TestDispatchWriteThenRead(t *testing.T) {
	s := NewStore()
	out, err := dispatchSync(s, wire.Header{Opcode: wire.RMEM_ALLOC}, nil)
	require.Equal(t, errs.SUCCESS, err)
	var alloc AllocReply
	require.NoError(t, wire.DecodePayload(out, &alloc))
	addr := int(alloc.Page) * limits.RMEM_BLOCK_SIZE

	writeReq, _ := wire.EncodePayload(WriteRequest{Addr: addr, Data: []byte("payload")})
	_, err = dispatchSync(s, wire.Header{Opcode: wire.RMEM_WRITE}, writeReq)
	require.Equal(t, errs.SUCCESS, err)

	readReq, _ := wire.EncodePayload(ReadRequest{Addr: addr, Size: 7})
	out, err = dispatchSync(s, wire.Header{Opcode: wire.RMEM_READ}, readReq)
	require.Equal(t, errs.SUCCESS, err)
	var reply ReadReply
	require.NoError(t, wire.DecodePayload(out, &reply))
	assert.Equal(t, "payload", string(reply.Data))
}

func TestDispatchFreeBadPayload(t *testing.T) {
	s := NewStore()
	_, err := dispatchSync(s, wire.Header{Opcode: wire.RMEM_FREE}, []byte("garbage"))
	assert.Equal(t, errs.EINVAL, err)
}

func TestDispatchUnknownOpcode(t *testing.T) {
	s := NewStore()
	_, err := dispatchSync(s, wire.Header{Opcode: 9999}, nil)
	assert.Equal(t, errs.ENOTSUP, err)
}
