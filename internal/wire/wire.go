// Package wire implements the message-framing contract shared by every
// server: a fixed-size header followed by an opcode-specific payload,
// grounded on biscuit's fixed-record device and message structures
// (biscuit/src/fs/blk.go, biscuit/src/defs) and on the header layouts in
// _examples/original_source/include/nanvix/servers/*.h.
package wire

import "encoding/binary"

// HeaderSize is the bit-exact on-wire size of Header, matching spec.md
// §6's 64-byte mailbox record.
const HeaderSize = 64

// Opcode identifies the operation a message carries.
type Opcode uint16

// Name Service opcodes, named after
// _examples/original_source/include/nanvix/servers/name.h.
const (
	NAME_LOOKUP Opcode = iota + 1
	NAME_LINK
	NAME_UNLINK
	NAME_HEARTBEAT
	NAME_GETPID
	NAME_SETPID
	NAME_GETPGID
	NAME_SETPGID
	NAME_EXIT
)

// SysV Service opcodes.
const (
	SYSV_MSG_GET Opcode = iota + 100
	SYSV_MSG_SEND
	SYSV_MSG_RECEIVE
	SYSV_MSG_CLOSE
	SYSV_SEM_GET
	SYSV_SEM_OPERATE
	SYSV_SEM_CLOSE
)

// RMem Service opcodes.
const (
	RMEM_ALLOC Opcode = iota + 200
	RMEM_FREE
	RMEM_READ
	RMEM_WRITE
)

// VFS Core opcodes.
const (
	VFS_OPEN Opcode = iota + 300
	VFS_CLOSE
	VFS_READ
	VFS_WRITE
	VFS_SEEK
	VFS_UNLINK
	VFS_STAT
	VFS_EXIT
)

// Reply opcodes, shared by every server.
const (
	REPLY_SUCCESS Opcode = 1
	REPLY_FAIL    Opcode = 2
)

// Header is the fixed-size prefix of every server message (spec.md §3
// "Message header" / §4.1).
type Header struct {
	Opcode    Opcode
	SrcNode   uint16
	SrcPort   uint16
	DstNode   uint16
	DstPort   uint16
	RequestID uint32
	SourcePID int32
}

// Encode marshals h into a HeaderSize-byte little-endian record, zero-padded.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Opcode))
	binary.LittleEndian.PutUint16(buf[2:4], h.SrcNode)
	binary.LittleEndian.PutUint16(buf[4:6], h.SrcPort)
	binary.LittleEndian.PutUint16(buf[6:8], h.DstNode)
	binary.LittleEndian.PutUint16(buf[8:10], h.DstPort)
	binary.LittleEndian.PutUint32(buf[10:14], h.RequestID)
	binary.LittleEndian.PutUint32(buf[14:18], uint32(h.SourcePID))
	return buf
}

// DecodeHeader unmarshals the first HeaderSize bytes of buf into a Header.
func DecodeHeader(buf []byte) Header {
	var h Header
	h.Opcode = Opcode(binary.LittleEndian.Uint16(buf[0:2]))
	h.SrcNode = binary.LittleEndian.Uint16(buf[2:4])
	h.SrcPort = binary.LittleEndian.Uint16(buf[4:6])
	h.DstNode = binary.LittleEndian.Uint16(buf[6:8])
	h.DstPort = binary.LittleEndian.Uint16(buf[8:10])
	h.RequestID = binary.LittleEndian.Uint32(buf[10:14])
	h.SourcePID = int32(binary.LittleEndian.Uint32(buf[14:18]))
	return h
}

// Reply returns a header addressed back at the request's source, stamping
// the request's RequestID per spec.md §5's ordering guarantee.
func (h Header) Reply(opcode Opcode, selfNode, selfPort uint16) Header {
	return Header{
		Opcode:    opcode,
		SrcNode:   selfNode,
		SrcPort:   selfPort,
		DstNode:   h.SrcNode,
		DstPort:   h.SrcPort,
		RequestID: h.RequestID,
		SourcePID: h.SourcePID,
	}
}

// PortalHeader is the mailbox record that always precedes a bulk portal
// transfer, declaring the transfer's shape before the transfer itself
// (spec.md §4.1 and §6).
type PortalHeader struct {
	Source Header
	Op     Opcode
	Size   uint32
	Addr   uint32 // page number, block number, or RMem address depending on Op
}

// Message pairs a Header with its opcode-specific payload bytes.
type Message struct {
	Header  Header
	Payload []byte
}
