// Package nameserver implements the Name Service (spec.md §4.4, component
// E): a bidirectional name <-> (node, port) table plus pid/pgid allocation,
// grounded on _examples/original_source/include/nanvix/servers/name.h for
// the opcode/field vocabulary and adapted from biscuit's single-threaded,
// exclusively-locked table style (biscuit/src/hashtable/hashtable.go).
package nameserver

import (
	"sync"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
	"golang.org/x/text/unicode/norm"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
)

// Entry is a Name Service binding (spec.md §3 "Name entry").
type Entry struct {
	Name          string
	Node          uint16
	Port          uint16
	PID           int
	PGID          int
	LastHeartbeat time.Time
}

// Server owns the name table, the pid/pgid allocator and the heartbeat
// ledger. It is single-threaded from the caller's perspective (spec.md §5);
// the mutex here is the "defensive second layer" SPEC_FULL.md's Open
// Question decision #3 calls for on top of ring-ordered registration.
type Server struct {
	mu       sync.Mutex
	names    *iradix.Tree // normalized name -> *Entry, ordered for a future liveness sweep
	byPID    map[int]*Entry
	nextPID  int
	nextPGID int
}

// NewServer returns an empty Name Service.
func NewServer() *Server {
	return &Server{
		names:    iradix.New(),
		byPID:    make(map[int]*Entry),
		nextPID:  1,
		nextPGID: 1,
	}
}

func normalize(name string) []byte {
	return norm.NFC.Bytes([]byte(name))
}

func validName(name string) bool {
	return len(name) > 0 && len(name) < limits.NAME_MAX
}

// Link binds name to (node, port) (spec.md §4.4 LINK).
func (s *Server) Link(name string, node, port uint16) errs.Err_t {
	if !validName(name) {
		if len(name) == 0 {
			return errs.EINVAL
		}
		return errs.ENAMETOOLONG
	}
	key := normalize(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.names.Get(key); ok {
		return errs.EEXIST
	}
	e := &Entry{Name: name, Node: node, Port: port, PID: -1, PGID: -1, LastHeartbeat: time.Now()}
	tree, _, _ := s.names.Insert(key, e)
	s.names = tree
	return errs.SUCCESS
}

// Lookup returns the (node, port) bound to name (spec.md §4.4 LOOKUP).
func (s *Server) Lookup(name string) (node, port uint16, err errs.Err_t) {
	if !validName(name) {
		return 0, 0, errs.EINVAL
	}
	key := normalize(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.names.Get(key)
	if !ok {
		return 0, 0, errs.ENOENT
	}
	e := v.(*Entry)
	return e.Node, e.Port, errs.SUCCESS
}

// Unlink removes name's binding, failing with EPERM if owner does not match
// the caller's node (spec.md §4.4 UNLINK).
func (s *Server) Unlink(name string, callerNode uint16) errs.Err_t {
	key := normalize(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.names.Get(key)
	if !ok {
		return errs.ENOENT
	}
	e := v.(*Entry)
	if e.Node != callerNode {
		return errs.EPERM
	}
	tree, _, _ := s.names.Delete(key)
	s.names = tree
	if e.PID >= 0 {
		delete(s.byPID, e.PID)
	}
	return errs.SUCCESS
}

// Heartbeat refreshes LastHeartbeat for the caller's pid. No sweep is run
// over this timestamp; see SPEC_FULL.md Open Question decision #1 -
// TODO(nameserver): wire a liveness sweep once a staleness threshold is
// specified, per spec.md §9's explicit "do not assume a value".
func (s *Server) Heartbeat(pid int) errs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byPID[pid]
	if !ok {
		return errs.ENOENT
	}
	e.LastHeartbeat = time.Now()
	return errs.SUCCESS
}

// Sweep is the liveness sweep spec.md §9 leaves unspecified; it is not
// implemented and never invoked by Server.
func (s *Server) Sweep(staleAfter time.Duration) {
	_ = staleAfter
}

// SetPID allocates a fresh pid bound to name, refusing duplicates
// (spec.md §4.4 SETPID).
func (s *Server) SetPID(name string) (int, errs.Err_t) {
	key := normalize(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.names.Get(key)
	if !ok {
		return -1, errs.ENOENT
	}
	e := v.(*Entry)
	if e.PID >= 0 {
		return -1, errs.EEXIST
	}
	pid := s.nextPID
	s.nextPID++
	e.PID = pid
	e.PGID = pid // POSIX default: a new process is its own group leader until SETPGID
	s.byPID[pid] = e
	return pid, errs.SUCCESS
}

// GetPID returns the pid bound to name (spec.md §4.4 GETPID).
func (s *Server) GetPID(name string) (int, errs.Err_t) {
	key := normalize(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.names.Get(key)
	if !ok {
		return -1, errs.ENOENT
	}
	e := v.(*Entry)
	if e.PID < 0 {
		return -1, errs.ENOENT
	}
	return e.PID, errs.SUCCESS
}

// SetPGID groups pid into pgid, with the POSIX rule pgid==0 => create a new
// group equal to pid itself (spec.md §4.4 PID/PGID operations).
func (s *Server) SetPGID(pid, pgid int) errs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byPID[pid]
	if !ok {
		return errs.ENOENT
	}
	if pgid == 0 {
		e.PGID = pid
		return errs.SUCCESS
	}
	if _, ok := s.byPID[pgid]; !ok {
		return errs.ENOENT
	}
	e.PGID = pgid
	return errs.SUCCESS
}

// GetPGID returns the group id bound to pid (spec.md §4.4 GETPGID).
func (s *Server) GetPGID(pid int) (int, errs.Err_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byPID[pid]
	if !ok {
		return -1, errs.ENOENT
	}
	return e.PGID, errs.SUCCESS
}

// Exit releases pid's binding entirely, used on client EXIT (spec.md §4.4).
func (s *Server) Exit(pid int) errs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byPID[pid]
	if !ok {
		return errs.ENOENT
	}
	delete(s.byPID, pid)
	e.PID = -1
	e.PGID = -1
	return errs.SUCCESS
}
