// Package bootstrap implements the Runtime Bootstrap (spec.md §4.10,
// component K): per-ring component setup, the serve loop's
// receive/dispatch/reply cycle, and reverse-order teardown. The recovered-
// panic-to-EINVAL behavior is the Go-idiomatic replacement for biscuit's
// caller-stack diagnostics (biscuit/src/caller/caller.go), surfaced
// through logrus per SPEC_FULL.md's AMBIENT STACK.
package bootstrap

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/transport"
	"github.com/nanvix/multikernel-sub001/internal/wire"
)

// ReplyFunc completes one in-flight request. A handler that can satisfy
// the request immediately calls it before returning; a handler that must
// suspend the caller (spec.md §9: "the server must NOT block its event
// loop") instead stashes it on a per-object wait list and calls it later,
// from whatever future request unblocks the waiter.
type ReplyFunc func(payload []byte, code errs.Err_t)

// Handler dispatches one request to the server's domain store. It must
// return promptly: if the operation cannot complete yet, the handler
// records reply for later use and returns without calling it, leaving the
// serve loop free to process the next request.
type Handler func(hdr wire.Header, payload []byte, reply ReplyFunc)

// Server drives one server's serve loop over a single inbox (spec.md
// §4.10 step 4: "receive header; dispatch by opcode; reply with header +
// payload").
type Server struct {
	Name     string
	Self     transport.Endpoint
	Fabric   transport.Fabric
	Handle   Handler
	log      *logrus.Entry
	stopping bool
}

// NewServer wires a server's name, endpoint, fabric and handler together
// and stamps a session id into its log fields (SPEC_FULL.md AMBIENT STACK
// "Correlation IDs").
func NewServer(name string, self transport.Endpoint, fabric transport.Fabric, handle Handler) *Server {
	return &Server{
		Name:   name,
		Self:   self,
		Fabric: fabric,
		Handle: handle,
		log:    logrus.WithFields(logrus.Fields{"server": name, "session": uuid.NewString(), "endpoint": self.String()}),
	}
}

// Serve opens the server's inbox and processes requests one at a time
// until the inbox closes, matching spec.md §5's single-threaded
// cooperative scheduling model. A request whose reply is deferred (the
// handler registered a waiter instead of replying) does not block this
// loop; the reply for it is sent later, out of order, whenever the
// waiter's paired operation satisfies it.
func (s *Server) Serve() error {
	in, err := s.Fabric.Open(s.Self)
	if err != nil {
		return err
	}
	defer in.Close()
	s.log.Info("serve loop started")

	for {
		msg, err := in.Recv()
		if err != nil {
			s.log.WithError(err).Info("serve loop exiting")
			return nil
		}
		s.dispatch(msg)
	}
}

func (s *Server) dispatch(msg wire.Message) {
	reqLog := s.log.WithFields(logrus.Fields{"opcode": msg.Header.Opcode, "request_id": msg.Header.RequestID})
	reqLog.Debug("dispatching request")

	var once sync.Once
	reply := func(payload []byte, code errs.Err_t) {
		once.Do(func() {
			s.sendReply(msg, reqLog, payload, code)
		})
	}
	s.safeHandle(msg.Header, msg.Payload, reply)
}

func (s *Server) sendReply(msg wire.Message, reqLog *logrus.Entry, payload []byte, code errs.Err_t) {
	out, err := s.Fabric.Dial(transport.Endpoint{Node: msg.Header.SrcNode, Port: msg.Header.SrcPort})
	if err != nil {
		reqLog.WithError(err).Error("failed to dial reply endpoint")
		return
	}
	defer out.Close()

	replyOp := wire.REPLY_SUCCESS
	if code != errs.SUCCESS {
		replyOp = wire.REPLY_FAIL
		reqLog.WithField("err", code).Warn("request failed")
	}
	reply := msg.Header.Reply(replyOp, s.Self.Node, s.Self.Port)
	if sendErr := out.Send(wire.Message{Header: reply, Payload: payload}); sendErr != nil {
		reqLog.WithError(sendErr).Error("failed to send reply")
	}
}

// safeHandle recovers a panicking handler into EINVAL plus a logged stack,
// matching SPEC_FULL.md's AMBIENT STACK error-handling contract: no panic
// crosses a request boundary. If the handler already replied before
// panicking, reply's own once-guard drops the recovered call silently.
func (s *Server) safeHandle(hdr wire.Header, payload []byte, reply ReplyFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("handler panicked, converting to EINVAL")
			reply(nil, errs.EINVAL)
		}
	}()
	s.Handle(hdr, payload, reply)
}
