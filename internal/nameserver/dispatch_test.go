package nameserver

import (
	"testing"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatchSync drives Dispatch's callback API; the Name Service never
// defers a reply, so every call here completes before Dispatch returns.
func dispatchSync(s *Server, hdr wire.Header, payload []byte) ([]byte, errs.Err_t) {
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

func TestDispatchLinkThenLookup(t *testing.T) {
	s := NewServer()

	linkReq, _ := wire.EncodePayload(LinkRequest{Name: "/svc/a", Node: 1, Port: 7})
	_, err := dispatchSync(s, wire.Header{Opcode: wire.NAME_LINK}, linkReq)
	require.Equal(t, errs.SUCCESS, err)

	lookupReq, _ := wire.EncodePayload(LookupRequest{Name: "/svc/a"})
	out, err := dispatchSync(s, wire.Header{Opcode: wire.NAME_LOOKUP}, lookupReq)
	require.Equal(t, errs.SUCCESS, err)
	var reply LookupReply
	require.NoError(t, wire.DecodePayload(out, &reply))
	assert.EqualValues(t, 1, reply.Node)
	assert.EqualValues(t, 7, reply.Port)
}

func TestDispatchUnlinkUsesRequestingNode(t *testing.T) {
	s := NewServer()
	linkReq, _ := wire.EncodePayload(LinkRequest{Name: "/svc/b", Node: 3, Port: 1})
	_, err := dispatchSync(s, wire.Header{Opcode: wire.NAME_LINK}, linkReq)
	require.Equal(t, errs.SUCCESS, err)

	unlinkReq, _ := wire.EncodePayload(UnlinkRequest{Name: "/svc/b"})
	_, err = dispatchSync(s, wire.Header{Opcode: wire.NAME_UNLINK, SrcNode: 9}, unlinkReq)
	assert.Equal(t, errs.EPERM, err, "unlink from a node other than the binder must be rejected")

	_, err = dispatchSync(s, wire.Header{Opcode: wire.NAME_UNLINK, SrcNode: 3}, unlinkReq)
	assert.Equal(t, errs.SUCCESS, err)
}

func TestDispatchSetPIDGetPID(t *testing.T) {
	s := NewServer()
	setReq, _ := wire.EncodePayload(SetPIDRequest{Name: "/proc/init"})
	out, err := dispatchSync(s, wire.Header{Opcode: wire.NAME_SETPID}, setReq)
	require.Equal(t, errs.SUCCESS, err)
	var setReply SetPIDReply
	require.NoError(t, wire.DecodePayload(out, &setReply))

	getReq, _ := wire.EncodePayload(GetPIDRequest{Name: "/proc/init"})
	out, err = dispatchSync(s, wire.Header{Opcode: wire.NAME_GETPID}, getReq)
	require.Equal(t, errs.SUCCESS, err)
	var getReply GetPIDReply
	require.NoError(t, wire.DecodePayload(out, &getReply))
	assert.Equal(t, setReply.PID, getReply.PID)
}

func TestDispatchHeartbeatUnknownPID(t *testing.T) {
	s := NewServer()
	req, _ := wire.EncodePayload(HeartbeatRequest{PID: 404})
	_, err := dispatchSync(s, wire.Header{Opcode: wire.NAME_HEARTBEAT}, req)
	assert.Equal(t, errs.ENOENT, err)
}

func TestDispatchBadPayloadIsEINVAL(t *testing.T) {
	s := NewServer()
	_, err := dispatchSync(s, wire.Header{Opcode: wire.NAME_LINK}, []byte("garbage"))
	assert.Equal(t, errs.EINVAL, err)
}

func TestDispatchUnknownOpcode(t *testing.T) {
	s := NewServer()
	_, err := dispatchSync(s, wire.Header{Opcode: 9999}, nil)
	assert.Equal(t, errs.ENOTSUP, err)
}
