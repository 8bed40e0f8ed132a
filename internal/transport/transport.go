// Package transport implements the Transport Adapter (spec.md §4.1,
// component A): named inbox/outbox endpoints exchanging wire.Message
// mailbox records, a portal handshake for bulk payloads, and a sync-gate
// barrier primitive. spec.md marks the raw NoC substrate external; this
// package supplies the one thing that must stand in for it so every other
// component can be exercised end to end, emulated in-process (the default)
// or over TCP loopback, never over real DMA hardware.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/nanvix/multikernel-sub001/internal/wire"
)

// Endpoint is the address of a mailbox inbox: a (node, port) pair.
type Endpoint struct {
	Node uint16
	Port uint16
}

func (e Endpoint) String() string { return fmt.Sprintf("%d:%d", e.Node, e.Port) }

// Fabric is the in-process or networked substrate endpoints are opened on.
type Fabric interface {
	// Open claims an inbox at ep; only one owner may hold it at a time.
	Open(ep Endpoint) (Inbox, error)
	// Dial returns an outbox that can send to ep.
	Dial(ep Endpoint) (Outbox, error)
}

// Inbox receives framed messages addressed to the endpoint it was opened on.
type Inbox interface {
	Recv() (wire.Message, error)
	Close() error
}

// Outbox sends framed messages to the endpoint it was dialed to.
type Outbox interface {
	Send(msg wire.Message) error
	Close() error
}

// memFabric is the default in-process fabric: each endpoint is a buffered
// Go channel, matching the "mailbox" contract (ordered, reliable, one
// message at a time) without any real DMA hardware.
type memFabric struct {
	mu    sync.Mutex
	boxes map[Endpoint]chan wire.Message
}

// NewMemFabric returns a Fabric backed by in-process channels.
func NewMemFabric() Fabric {
	return &memFabric{boxes: make(map[Endpoint]chan wire.Message)}
}

func (f *memFabric) box(ep Endpoint) chan wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.boxes[ep]
	if !ok {
		c = make(chan wire.Message, 256)
		f.boxes[ep] = c
	}
	return c
}

type memInbox struct{ c chan wire.Message }

func (i *memInbox) Recv() (wire.Message, error) {
	m, ok := <-i.c
	if !ok {
		return wire.Message{}, io.EOF
	}
	return m, nil
}
func (i *memInbox) Close() error { return nil }

type memOutbox struct {
	c chan wire.Message
}

func (o *memOutbox) Send(msg wire.Message) error {
	o.c <- msg
	return nil
}
func (o *memOutbox) Close() error { return nil }

func (f *memFabric) Open(ep Endpoint) (Inbox, error) {
	return &memInbox{c: f.box(ep)}, nil
}

func (f *memFabric) Dial(ep Endpoint) (Outbox, error) {
	return &memOutbox{c: f.box(ep)}, nil
}

// tcpFabric maps endpoints onto real TCP loopback connections, used when a
// cluster test wants process-boundary isolation instead of shared memory.
type tcpFabric struct {
	mu        sync.Mutex
	listeners map[Endpoint]net.Listener
	addrs     map[Endpoint]string
}

// NewTCPFabric returns a Fabric backed by TCP loopback sockets. addrs maps
// each endpoint to the "host:port" it listens/dials on.
func NewTCPFabric(addrs map[Endpoint]string) Fabric {
	return &tcpFabric{listeners: make(map[Endpoint]net.Listener), addrs: addrs}
}

type tcpInbox struct {
	ln net.Listener
	ch chan wire.Message
}

func (f *tcpFabric) Open(ep Endpoint) (Inbox, error) {
	addr, ok := f.addrs[ep]
	if !ok {
		return nil, fmt.Errorf("transport: no address configured for %s", ep)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.listeners[ep] = ln
	f.mu.Unlock()

	in := &tcpInbox{ln: ln, ch: make(chan wire.Message, 256)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				close(in.ch)
				return
			}
			go in.serveConn(conn)
		}
	}()
	return in, nil
}

func (in *tcpInbox) serveConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		msg, err := readFramed(r)
		if err != nil {
			return
		}
		in.ch <- msg
	}
}

func (in *tcpInbox) Recv() (wire.Message, error) {
	m, ok := <-in.ch
	if !ok {
		return wire.Message{}, io.EOF
	}
	return m, nil
}
func (in *tcpInbox) Close() error { return in.ln.Close() }

type tcpOutbox struct{ conn net.Conn }

func (f *tcpFabric) Dial(ep Endpoint) (Outbox, error) {
	addr, ok := f.addrs[ep]
	if !ok {
		return nil, fmt.Errorf("transport: no address configured for %s", ep)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpOutbox{conn: conn}, nil
}

func (o *tcpOutbox) Send(msg wire.Message) error {
	return writeFramed(o.conn, msg)
}
func (o *tcpOutbox) Close() error { return o.conn.Close() }

func writeFramed(w io.Writer, msg wire.Message) error {
	hdr := msg.Header.Encode()
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(msg.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(msg.Payload) > 0 {
		if _, err := w.Write(msg.Payload); err != nil {
			return err
		}
	}
	return nil
}

func readFramed(r io.Reader) (wire.Message, error) {
	var hdr [wire.HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return wire.Message{}, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return wire.Message{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return wire.Message{}, err
		}
	}
	return wire.Message{Header: wire.DecodeHeader(hdr[:]), Payload: payload}, nil
}

// Portal carries a bulk transfer as one mailbox message: the PortalHeader's
// Source becomes the message header and Op, Addr and the body ride together
// in the payload. No separate header record precedes the body. The sender
// rejects a Size that disagrees with the body; Size itself is not sent.
type Portal struct {
	Out Outbox
	In  Inbox
}

// portalEnvelope carries PortalHeader's Op/Addr fields alongside the bulk
// body, since wire.Header itself has no room for them: only Source travels
// as the message's real header, the rest rides in the payload.
type portalEnvelope struct {
	Op   wire.Opcode
	Addr uint32
	Data []byte
}

// Send streams hdr followed by exactly len(data) bytes, erroring if hdr.Size
// disagrees with len(data).
func (p Portal) Send(hdr wire.PortalHeader, data []byte) error {
	if int(hdr.Size) != len(data) {
		return fmt.Errorf("transport: portal header size %d does not match payload %d", hdr.Size, len(data))
	}
	payload, err := wire.EncodePayload(portalEnvelope{Op: hdr.Op, Addr: hdr.Addr, Data: data})
	if err != nil {
		return err
	}
	return p.Out.Send(wire.Message{Header: hdr.Source, Payload: payload})
}

// Recv waits for one portal message and returns its header and body. The
// header's Size is set to the received body's length, so no size mismatch
// can be detected here.
func (p Portal) Recv() (wire.PortalHeader, []byte, error) {
	msg, err := p.In.Recv()
	if err != nil {
		return wire.PortalHeader{}, nil, err
	}
	var env portalEnvelope
	if err := wire.DecodePayload(msg.Payload, &env); err != nil {
		return wire.PortalHeader{}, nil, err
	}
	hdr := wire.PortalHeader{Source: msg.Header, Op: env.Op, Addr: env.Addr, Size: uint32(len(env.Data))}
	return hdr, env.Data, nil
}

// SyncGate is a multi-party rendezvous primitive used to build the spawn
// barrier (spec.md §4.3): N parties call Wait and all unblock together once
// every party has arrived.
type SyncGate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	arrived int
	gen     int
}

// NewSyncGate returns a gate that releases once parties callers have
// called Wait.
func NewSyncGate(parties int) *SyncGate {
	g := &SyncGate{parties: parties}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Wait blocks the caller until every party has arrived, then releases all
// of them together.
func (g *SyncGate) Wait() {
	g.mu.Lock()
	defer g.mu.Unlock()
	gen := g.gen
	g.arrived++
	if g.arrived == g.parties {
		g.arrived = 0
		g.gen++
		g.cond.Broadcast()
		return
	}
	for gen == g.gen {
		g.cond.Wait()
	}
}
