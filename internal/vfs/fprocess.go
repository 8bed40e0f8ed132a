package vfs

import "github.com/nanvix/multikernel-sub001/internal/limits"

// AccessMode is the file's requested access (spec.md §3 "Open-file entry").
type AccessMode int

const (
	RDONLY AccessMode = iota
	WRONLY
	RDWR
)

// Open-flag bits, declared here with the same names and values as Linux's
// O_CREAT, O_TRUNC and O_APPEND; they are not imported from
// golang.org/x/sys/unix.
const (
	O_CREAT  = 0o100
	O_TRUNC  = 0o1000
	O_APPEND = 0o2000
)

// OpenFile is a server-side open-file-table entry, shared by every fd that
// refers to it (spec.md §3 "Open-file entry").
type OpenFile struct {
	inode    *Inode
	offset   int64
	access   AccessMode
	flags    int
	refcount int
}

// FProcess is the server-side representation of a client's file-system
// state, indexed by connection slot number (spec.md §3 "Process table
// entry", GLOSSARY "fprocess").
type FProcess struct {
	Errcode int
	Umask   uint32
	PWD     *Inode
	Root    *Inode
	OFiles  [limits.NANVIX_OPEN_MAX]*OpenFile
}

// NewFProcess returns an fprocess rooted and positioned at root.
func NewFProcess(root *Inode) *FProcess {
	return &FProcess{Umask: 0o022, PWD: root, Root: root}
}

// firstFreeSlot returns the lowest free index in OFiles, or -1 if full
// (spec.md §4.9 open: "Install into the first free ofiles[] slot").
func (fp *FProcess) firstFreeSlot() int {
	for i, f := range fp.OFiles {
		if f == nil {
			return i
		}
	}
	return -1
}
