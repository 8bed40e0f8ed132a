package vfs

import (
	"sync"

	"github.com/nanvix/multikernel-sub001/internal/connreg"
	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
	"github.com/nanvix/multikernel-sub001/internal/pathutil"
	"github.com/nanvix/multikernel-sub001/internal/wire"
)

// Service fronts one Fs with the connection registry (spec.md §4.9:
// operations "accept a connection index and map it via the process table
// to {pwd, root, ofiles[]}").
type Service struct {
	mu    sync.Mutex
	fs    *Fs
	reg   *connreg.Registry
	procs map[int]*FProcess
}

// NewService returns a VFS Service fronting fs.
func NewService(fs *Fs, reg *connreg.Registry) *Service {
	return &Service{fs: fs, reg: reg, procs: make(map[int]*FProcess)}
}

// SetMetrics attaches a counter store to both the filesystem's buffer
// cache and the connection registry it fronts.
func (svc *Service) SetMetrics(m *metrics.Store) {
	svc.fs.SetMetrics(m)
	svc.reg.SetMetrics(m)
}

func (svc *Service) fprocess(slot int) *FProcess {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	fp, ok := svc.procs[slot]
	if !ok {
		fp = NewFProcess(svc.fs.Root())
		svc.procs[slot] = fp
	}
	return fp
}

type OpenRequest struct {
	Path   string
	Flags  int
	Access AccessMode
}
type OpenReply struct{ FD int }

type CloseRequest struct{ FD int }

type ReadRequest struct {
	FD int
	N  int
}
type ReadReply struct{ Data []byte }

type WriteRequest struct {
	FD   int
	Data []byte
}
type WriteReply struct{ N int }

type SeekRequest struct {
	FD     int
	Offset int64
	Whence int
}
type SeekReply struct{ Offset int64 }

type UnlinkRequest struct{ Path string }

type StatRequest struct{ Path string }
type StatReply struct{ Stat Stat }

// Dispatch builds the request/reply cycle for one VFS message, resolving
// the caller's fprocess from its connection slot (hdr.SourcePID doubles as
// the slot key here, since each client holds exactly one VFS connection).
// None of VFS's operations suspend a caller, so reply is always invoked
// before Dispatch returns.
func (svc *Service) Dispatch(hdr wire.Header, payload []byte, reply func(payload []byte, code errs.Err_t)) {
	fp := svc.fprocess(int(hdr.SourcePID))

	switch hdr.Opcode {
	case wire.VFS_OPEN:
		var req OpenRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		fd, err := svc.fs.Open(fp, pathutil.Path(req.Path), req.Flags, req.Access)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(OpenReply{FD: fd})
		reply(out, errs.SUCCESS)

	case wire.VFS_CLOSE:
		var req CloseRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, svc.fs.Close(fp, req.FD))

	case wire.VFS_READ:
		var req ReadRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		buf := make([]byte, req.N)
		n, err := svc.fs.Read(fp, req.FD, buf)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(ReadReply{Data: buf[:n]})
		reply(out, errs.SUCCESS)

	case wire.VFS_WRITE:
		var req WriteRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		n, err := svc.fs.Write(fp, req.FD, req.Data)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(WriteReply{N: n})
		reply(out, errs.SUCCESS)

	case wire.VFS_SEEK:
		var req SeekRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		off, err := svc.fs.Seek(fp, req.FD, req.Offset, req.Whence)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(SeekReply{Offset: off})
		reply(out, errs.SUCCESS)

	case wire.VFS_UNLINK:
		var req UnlinkRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, svc.fs.Unlink(fp, pathutil.Path(req.Path)))

	case wire.VFS_STAT:
		var req StatRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		st, err := svc.fs.Stat(fp, pathutil.Path(req.Path))
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(StatReply{Stat: st})
		reply(out, errs.SUCCESS)

	case wire.VFS_EXIT:
		svc.mu.Lock()
		delete(svc.procs, int(hdr.SourcePID))
		svc.mu.Unlock()
		reply(nil, errs.SUCCESS)

	default:
		reply(nil, errs.ENOTSUP)
	}
}
