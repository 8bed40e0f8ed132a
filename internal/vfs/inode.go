package vfs

import (
	"encoding/binary"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/ramdisk"
)

// File mode bits, the small subset the core cares about.
const (
	ModeDir  = 1 << 0
	ModeFile = 1 << 1
)

// NumDirectZones is the count of direct zone pointers an on-disk inode
// carries before falling back to the (unimplemented) indirect block.
const NumDirectZones = 7

// NumIndirectPointers bounds MaxSize's representable reach; this core does
// not implement indirect zones, matching spec.md §4.9's silence on files
// larger than the direct map.
const NumIndirectPointers = 0

const onDiskInodeSize = 64

// Inode is the MINIX-shaped inode (spec.md §3 "Inode").
type Inode struct {
	Number   uint32
	Mode     uint32
	Size     uint64
	NLinks   uint32
	Zones    [NumDirectZones]uint32
	Atime    int64
	Mtime    int64
	refcount int
	dirty    bool
}

func (ino *Inode) encode() []byte {
	buf := make([]byte, onDiskInodeSize)
	binary.LittleEndian.PutUint32(buf[0:4], ino.Mode)
	binary.LittleEndian.PutUint64(buf[4:12], ino.Size)
	binary.LittleEndian.PutUint32(buf[12:16], ino.NLinks)
	for i, z := range ino.Zones {
		binary.LittleEndian.PutUint32(buf[16+4*i:20+4*i], z)
	}
	binary.LittleEndian.PutUint64(buf[44:52], uint64(ino.Atime))
	binary.LittleEndian.PutUint64(buf[52:60], uint64(ino.Mtime))
	return buf
}

func decodeInode(number uint32, buf []byte) *Inode {
	ino := &Inode{Number: number}
	ino.Mode = binary.LittleEndian.Uint32(buf[0:4])
	ino.Size = binary.LittleEndian.Uint64(buf[4:12])
	ino.NLinks = binary.LittleEndian.Uint32(buf[12:16])
	for i := range ino.Zones {
		ino.Zones[i] = binary.LittleEndian.Uint32(buf[16+4*i : 20+4*i])
	}
	ino.Atime = int64(binary.LittleEndian.Uint64(buf[44:52]))
	ino.Mtime = int64(binary.LittleEndian.Uint64(buf[52:60]))
	return ino
}

// bitmap is a pinned, device-backed bit vector (the inode or zone bitmap);
// reads and writes bypass the buffer cache per spec.md §4.9.
type bitmap struct {
	dev       *ramdisk.Device
	baseBlock int
	nblocks   int
}

func (b *bitmap) test(n uint32) (bool, errs.Err_t) {
	blk := int(n) / (limits.BLOCK_SIZE * 8)
	buf := make([]byte, limits.BLOCK_SIZE)
	if err := b.dev.ReadBlock(b.baseBlock+blk, buf); err != errs.SUCCESS {
		return false, err
	}
	bit := int(n) % (limits.BLOCK_SIZE * 8)
	return buf[bit/8]&(1<<uint(bit%8)) != 0, errs.SUCCESS
}

func (b *bitmap) set(n uint32, v bool) errs.Err_t {
	blk := int(n) / (limits.BLOCK_SIZE * 8)
	buf := make([]byte, limits.BLOCK_SIZE)
	if err := b.dev.ReadBlock(b.baseBlock+blk, buf); err != errs.SUCCESS {
		return err
	}
	bit := int(n) % (limits.BLOCK_SIZE * 8)
	if v {
		buf[bit/8] |= 1 << uint(bit%8)
	} else {
		buf[bit/8] &^= 1 << uint(bit%8)
	}
	return b.dev.WriteBlock(b.baseBlock+blk, buf)
}

// allocFirstFree scans from index 1 (index 0 is reserved, MINIX-style) for
// the first clear bit, sets it and returns its index.
func (b *bitmap) allocFirstFree(limit uint32) (uint32, errs.Err_t) {
	for n := uint32(1); n < limit; n++ {
		used, err := b.test(n)
		if err != errs.SUCCESS {
			return 0, err
		}
		if !used {
			if err := b.set(n, true); err != errs.SUCCESS {
				return 0, err
			}
			return n, errs.SUCCESS
		}
	}
	return 0, errs.ENOSPC
}
