package vfs

import (
	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/pathutil"
)

const (
	direntSize    = 64
	direntNameLen = direntSize - 4
	directEntries = limits.BLOCK_SIZE / direntSize
)

// dirent is one directory entry: a fixed-width name plus the child inode
// number, the same fixed-record idea as biscuit's Dirdata_t/NDIRENTS
// (biscuit/src/fs, referenced from biscuit/src/ufs/ufs.go's Ls).
type dirent struct {
	name  string
	inode uint32
}

func encodeDirent(d dirent) []byte {
	buf := make([]byte, direntSize)
	copy(buf[:direntNameLen], d.name)
	n := uint32(d.inode)
	buf[direntNameLen] = byte(n)
	buf[direntNameLen+1] = byte(n >> 8)
	buf[direntNameLen+2] = byte(n >> 16)
	buf[direntNameLen+3] = byte(n >> 24)
	return buf
}

func decodeDirent(buf []byte) dirent {
	end := 0
	for end < direntNameLen && buf[end] != 0 {
		end++
	}
	n := uint32(buf[direntNameLen]) | uint32(buf[direntNameLen+1])<<8 |
		uint32(buf[direntNameLen+2])<<16 | uint32(buf[direntNameLen+3])<<24
	return dirent{name: string(buf[:end]), inode: n}
}

// resolveDir walks comps[:len(comps)-1] starting from start, returning the
// parent directory inode the final component lives in. "." and ".." are
// honored per spec.md §4.9.
func (fs *Fs) resolveDir(start *Inode, comps []string) (*Inode, errs.Err_t) {
	cur := start
	for _, c := range comps {
		if c == "." {
			continue
		}
		next, err := fs.lookupChild(cur, c)
		if err != errs.SUCCESS {
			return nil, err
		}
		cur = next
	}
	return cur, errs.SUCCESS
}

// resolve splits p into a parent-directory walk plus a final component,
// relative to pwd unless p is absolute (spec.md §4.9).
func (fs *Fs) resolve(p pathutil.Path, pwd, root *Inode) (parent *Inode, leaf string, err errs.Err_t) {
	if len(p) >= limits.NAME_MAX*8 {
		return nil, "", errs.ENAMETOOLONG
	}
	start := pwd
	if p.IsAbsolute() {
		start = root
	}
	comps := p.Components()
	if len(comps) == 0 {
		return start, "", errs.SUCCESS
	}
	for _, c := range comps {
		if len(c) >= limits.NAME_MAX {
			return nil, "", errs.ENAMETOOLONG
		}
	}
	dir, err := fs.resolveDir(start, comps[:len(comps)-1])
	if err != errs.SUCCESS {
		return nil, "", err
	}
	return dir, comps[len(comps)-1], errs.SUCCESS
}
