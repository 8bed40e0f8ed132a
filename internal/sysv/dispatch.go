package sysv

import (
	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
	"github.com/nanvix/multikernel-sub001/internal/wire"
)

// Service pairs a message-queue store and a semaphore store behind one
// dispatch table, matching spec.md §4.5's single SysV Service.
type Service struct {
	Msgs *MsgStore
	Sems *SemStore
}

// NewService returns a fresh SysV Service.
func NewService() *Service {
	return &Service{Msgs: NewMsgStore(), Sems: NewSemStore()}
}

// SetMetrics attaches the same counter store to both the message-queue and
// semaphore halves of the service.
func (s *Service) SetMetrics(m *metrics.Store) {
	s.Msgs.SetMetrics(m)
	s.Sems.SetMetrics(m)
}

type MsgGetRequest struct {
	Key   int
	Flags int
}
type MsgGetReply struct{ ID int }

type MsgSendRequest struct {
	ID      int
	MType   int64
	Payload []byte
	Flags   int
}

type MsgReceiveRequest struct {
	ID    int
	Flags int
}
type MsgReceiveReply struct {
	MType   int64
	Payload []byte
}

type MsgCloseRequest struct{ ID int }

type SemGetRequest struct {
	Key   int
	Flags int
}
type SemGetReply struct{ ID int }

type SemOperateRequest struct {
	ID  int
	Ops []Sembuf
}

type SemCloseRequest struct{ ID int }

// Dispatch builds the request/reply cycle for one SysV message. SYSV_MSG_
// SEND/RECEIVE and SYSV_SEM_OPERATE may not be able to reply immediately
// (spec.md §9: "the server must NOT block its event loop"); those three
// pass reply straight through to the store, which calls it either before
// Dispatch returns or later, once the paired operation satisfies the
// waiter, leaving the serve loop free in the meantime.
func (s *Service) Dispatch(hdr wire.Header, payload []byte, reply func(payload []byte, code errs.Err_t)) {
	switch hdr.Opcode {
	case wire.SYSV_MSG_GET:
		var req MsgGetRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		id, err := s.Msgs.Get(req.Key, req.Flags)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(MsgGetReply{ID: id})
		reply(out, errs.SUCCESS)

	case wire.SYSV_MSG_SEND:
		var req MsgSendRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		s.Msgs.Send(req.ID, req.MType, req.Payload, req.Flags, func(err errs.Err_t) {
			reply(nil, err)
		})

	case wire.SYSV_MSG_RECEIVE:
		var req MsgReceiveRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		s.Msgs.Receive(req.ID, req.Flags, func(mt int64, data []byte, err errs.Err_t) {
			if err != errs.SUCCESS {
				reply(nil, err)
				return
			}
			out, _ := wire.EncodePayload(MsgReceiveReply{MType: mt, Payload: data})
			reply(out, errs.SUCCESS)
		})

	case wire.SYSV_MSG_CLOSE:
		var req MsgCloseRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, s.Msgs.Close(req.ID))

	case wire.SYSV_SEM_GET:
		var req SemGetRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		id, err := s.Sems.Get(req.Key, req.Flags)
		if err != errs.SUCCESS {
			reply(nil, err)
			return
		}
		out, _ := wire.EncodePayload(SemGetReply{ID: id})
		reply(out, errs.SUCCESS)

	case wire.SYSV_SEM_OPERATE:
		var req SemOperateRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		s.Sems.Operate(req.ID, req.Ops, func(err errs.Err_t) {
			reply(nil, err)
		})

	case wire.SYSV_SEM_CLOSE:
		var req SemCloseRequest
		if err := wire.DecodePayload(payload, &req); err != nil {
			reply(nil, errs.EINVAL)
			return
		}
		reply(nil, s.Sems.Close(req.ID))

	default:
		reply(nil, errs.ENOTSUP)
	}
}
