package nameserver

import (
	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/wire"
)

// LinkRequest/LookupRequest/... are the per-opcode payload shapes,
// matching the field names of name_message.op.* in
// original_source/include/nanvix/servers/name.h.
type LinkRequest struct {
	Name string
	Node uint16
	Port uint16
}

type LookupRequest struct{ Name string }
type LookupReply struct {
	Node uint16
	Port uint16
}

type UnlinkRequest struct{ Name string }
type HeartbeatRequest struct{ PID int }
type SetPIDRequest struct{ Name string }
type SetPIDReply struct{ PID int }
type GetPIDRequest struct{ Name string }
type GetPIDReply struct{ PID int }
type SetPGIDRequest struct {
	PID  int
	PGID int
}
type GetPGIDRequest struct{ PID int }
type GetPGIDReply struct{ PGID int }
type ExitRequest struct{ PID int }

// Dispatch builds the request/reply cycle for one message, suitable for
// wiring into bootstrap.Handler. The name service has no operation that
// must suspend a caller, so reply is always invoked before Dispatch
// returns.
func (s *Server) Dispatch(hdr wire.Header, payload []byte, reply func(payload []byte, code errs.Err_t)) {
	switch hdr.Opcode {
	case wire.NAME_LINK:
		var req LinkRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, s.Link(req.Name, req.Node, req.Port))

	case wire.NAME_LOOKUP:
		var req LookupRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		node, port, err := s.Lookup(req.Name)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(LookupReply{Node: node, Port: port})
		reply(out, errs.SUCCESS)

	case wire.NAME_UNLINK:
		var req UnlinkRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, s.Unlink(req.Name, hdr.SrcNode))

	case wire.NAME_HEARTBEAT:
		var req HeartbeatRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, s.Heartbeat(req.PID))

	case wire.NAME_SETPID:
		var req SetPIDRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		pid, err := s.SetPID(req.Name)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(SetPIDReply{PID: pid})
		reply(out, errs.SUCCESS)

	case wire.NAME_GETPID:
		var req GetPIDRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		pid, err := s.GetPID(req.Name)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(GetPIDReply{PID: pid})
		reply(out, errs.SUCCESS)

	case wire.NAME_SETPGID:
		var req SetPGIDRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, s.SetPGID(req.PID, req.PGID))

	case wire.NAME_GETPGID:
		var req GetPGIDRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		pgid, err := s.GetPGID(req.PID)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(GetPGIDReply{PGID: pgid})
		reply(out, errs.SUCCESS)

	case wire.NAME_EXIT:
		var req ExitRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, s.Exit(req.PID))

	default:
		reply(nil, errs.ENOTSUP)
	}
}
