package vfs

import (
	"testing"

	"github.com/nanvix/multikernel-sub001/internal/connreg"
	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/ramdisk"
	"github.com/nanvix/multikernel-sub001/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	dev, err := ramdisk.NewMemDevice(256)
	require.NoError(t, err)
	fs, ferr := Format(dev)
	require.Equal(t, errs.SUCCESS, ferr)
	return NewService(fs, connreg.New())
}

// dispatchSync drives Dispatch's callback API; the VFS Core never defers a
// reply, so every call here completes before Dispatch returns.
func dispatchSync(svc *Service, hdr wire.Header, payload []byte) ([]byte, errs.Err_t) {
	var out []byte
	var result errs.Err_t
	called := false
	svc.Dispatch(hdr, payload, func(p []byte, code errs.Err_t) {
		called = true
		out, result = p, code
	})
	if !called {
		panic("dispatchSync: reply was not invoked synchronously")
	}
	return out, result
}

func TestServiceDispatchOpenWriteReadClose(t *testing.T) {
	svc := newService(t)
	hdr := wire.Header{SourcePID: 1}

	openReq, _ := wire.EncodePayload(OpenRequest{Path: "/greeting.txt", Flags: O_CREAT, Access: RDWR})
	out, err := dispatchSync(svc, wire.Header{Opcode: wire.VFS_OPEN, SourcePID: hdr.SourcePID}, openReq)
	require.Equal(t, errs.SUCCESS, err)
	var openReply OpenReply
	require.NoError(t, wire.DecodePayload(out, &openReply))

	writeReq, _ := wire.EncodePayload(WriteRequest{FD: openReply.FD, Data: []byte("hi there")})
	out, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_WRITE, SourcePID: hdr.SourcePID}, writeReq)
	require.Equal(t, errs.SUCCESS, err)
	var writeReply WriteReply
	require.NoError(t, wire.DecodePayload(out, &writeReply))
	assert.Equal(t, 8, writeReply.N)

	seekReq, _ := wire.EncodePayload(SeekRequest{FD: openReply.FD, Offset: 0, Whence: SEEK_SET})
	_, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_SEEK, SourcePID: hdr.SourcePID}, seekReq)
	require.Equal(t, errs.SUCCESS, err)

	readReq, _ := wire.EncodePayload(ReadRequest{FD: openReply.FD, N: 32})
	out, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_READ, SourcePID: hdr.SourcePID}, readReq)
	require.Equal(t, errs.SUCCESS, err)
	var readReply ReadReply
	require.NoError(t, wire.DecodePayload(out, &readReply))
	assert.Equal(t, "hi there", string(readReply.Data))

	closeReq, _ := wire.EncodePayload(CloseRequest{FD: openReply.FD})
	_, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_CLOSE, SourcePID: hdr.SourcePID}, closeReq)
	assert.Equal(t, errs.SUCCESS, err)
}

func TestServiceDispatchSeparatesConnectionsBySourcePID(t *testing.T) {
	svc := newService(t)

	openReq, _ := wire.EncodePayload(OpenRequest{Path: "/shared.txt", Flags: O_CREAT, Access: RDWR})
	out, err := dispatchSync(svc, wire.Header{Opcode: wire.VFS_OPEN, SourcePID: 1}, openReq)
	require.Equal(t, errs.SUCCESS, err)
	var reply1 OpenReply
	require.NoError(t, wire.DecodePayload(out, &reply1))

	out, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_OPEN, SourcePID: 2}, openReq)
	require.Equal(t, errs.SUCCESS, err)
	var reply2 OpenReply
	require.NoError(t, wire.DecodePayload(out, &reply2))

	assert.Len(t, svc.procs, 2, "each distinct source PID gets its own fprocess")
}

func TestServiceDispatchExitClearsFProcess(t *testing.T) {
	svc := newService(t)
	openReq, _ := wire.EncodePayload(OpenRequest{Path: "/x.txt", Flags: O_CREAT, Access: RDWR})
	_, err := dispatchSync(svc, wire.Header{Opcode: wire.VFS_OPEN, SourcePID: 9}, openReq)
	require.Equal(t, errs.SUCCESS, err)
	require.Contains(t, svc.procs, 9)

	_, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_EXIT, SourcePID: 9}, nil)
	require.Equal(t, errs.SUCCESS, err)
	assert.NotContains(t, svc.procs, 9)
}

func TestServiceDispatchStatAndUnlink(t *testing.T) {
	svc := newService(t)
	openReq, _ := wire.EncodePayload(OpenRequest{Path: "/s.txt", Flags: O_CREAT, Access: RDWR})
	out, err := dispatchSync(svc, wire.Header{Opcode: wire.VFS_OPEN, SourcePID: 1}, openReq)
	require.Equal(t, errs.SUCCESS, err)
	var openReply OpenReply
	require.NoError(t, wire.DecodePayload(out, &openReply))

	writeReq, _ := wire.EncodePayload(WriteRequest{FD: openReply.FD, Data: []byte("abcd")})
	_, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_WRITE, SourcePID: 1}, writeReq)
	require.Equal(t, errs.SUCCESS, err)

	closeReq, _ := wire.EncodePayload(CloseRequest{FD: openReply.FD})
	_, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_CLOSE, SourcePID: 1}, closeReq)
	require.Equal(t, errs.SUCCESS, err)

	statReq, _ := wire.EncodePayload(StatRequest{Path: "/s.txt"})
	out, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_STAT, SourcePID: 1}, statReq)
	require.Equal(t, errs.SUCCESS, err)
	var statReply StatReply
	require.NoError(t, wire.DecodePayload(out, &statReply))
	assert.EqualValues(t, 4, statReply.Stat.Size)

	unlinkReq, _ := wire.EncodePayload(UnlinkRequest{Path: "/s.txt"})
	_, err = dispatchSync(svc, wire.Header{Opcode: wire.VFS_UNLINK, SourcePID: 1}, unlinkReq)
	assert.Equal(t, errs.SUCCESS, err)
}

func TestServiceDispatchUnknownOpcode(t *testing.T) {
	svc := newService(t)
	_, err := dispatchSync(svc, wire.Header{Opcode: 9999, SourcePID: 1}, nil)
	assert.Equal(t, errs.ENOTSUP, err)
}
