package rmem

import (
	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/wire"
)

type AllocReply struct{ Page PageNumber }
type FreeRequest struct{ Page PageNumber }

type ReadRequest struct {
	Addr int
	Size int
}
type ReadReply struct{ Data []byte }

type WriteRequest struct {
	Addr int
	Data []byte
}

// Dispatch builds the request/reply cycle for one RMem message (spec.md
// §4.6). Bulk data travels inline in the payload here rather than over a
// separate transport.Portal call, since the wire.Message already carries
// an arbitrary-length payload; transport.Portal remains the primitive a
// real NoC-backed fabric would use for the handshake itself. RMem has no
// operation that must suspend a caller, so reply is always invoked before
// Dispatch returns.
func (s *Store) Dispatch(hdr wire.Header, payload []byte, reply func(payload []byte, code errs.Err_t)) {
	switch hdr.Opcode {
	case wire.RMEM_ALLOC:
		n := s.Alloc()
		if n == limits.RMEM_NULL {
			reply(nil, errs.ENOMEM)
			return
		}
		out, _ := wire.EncodePayload(AllocReply{Page: n})
		reply(out, errs.SUCCESS)

	case wire.RMEM_FREE:
		var req FreeRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, s.Free(req.Page))

	case wire.RMEM_READ:
		var req ReadRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		buf := make([]byte, req.Size)
		if err := s.Read(req.Addr, req.Size, buf); err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(ReadReply{Data: buf})
		reply(out, errs.SUCCESS)

	case wire.RMEM_WRITE:
		var req WriteRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, s.Write(req.Addr, len(req.Data), req.Data))

	default:
		reply(nil, errs.ENOTSUP)
	}
}
