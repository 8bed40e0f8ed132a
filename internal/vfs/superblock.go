// Package vfs implements the VFS Core (spec.md §4.9, component J): the
// superblock/inode model, per-process open-file table and the
// open/close/read/write/seek/unlink/stat operations over the block buffer
// cache. The on-disk layout is grounded on
// _examples/original_source/src/sys/fs/vfs/minix/super.c; in-memory inode
// and path handling is adapted from biscuit's fs.Fs_t, stat.Stat_t and
// ustr.Ustr (biscuit/src/fs, biscuit/src/stat, biscuit/src/ustr).
package vfs

import (
	"encoding/binary"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/ramdisk"
)

// MinixSuperMagic is the on-disk magic stamped into block 1, matching
// super.c's MINIX_SUPER_MAGIC check.
const MinixSuperMagic = 0x137F

// Fixed geometry blocks, per spec.md §4.9's layout description: "block 0
// reserved; block 1 superblock; blocks 2..2+imap-1 inode bitmap; then zone
// bitmap; then inode table; then zones".
const (
	blockReserved  = 0
	blockSuperblk  = 1
	firstBitmapBlk = 2
)

// Superblock is the MINIX-shaped on-disk superblock (spec.md §4.9). The
// orphan-inode fields are round-tripped, but nothing in this package ever
// records an orphan in them (SPEC_FULL.md supplemented feature "orphan
// inode accounting fields").
type Superblock struct {
	Magic         uint32
	NInodes       uint32
	NZones        uint32
	IMapBlocks    uint32
	ZMapBlocks    uint32
	FirstDataZone uint32
	ZoneSize      uint32
	MaxSize       uint64
	SIOrphanBlock uint32
	SIOrphanLen   uint32

	imapBlock int
	zmapBlock int
	itableBlk int
}

func layoutFor(sb *Superblock) {
	sb.imapBlock = firstBitmapBlk
	sb.zmapBlock = sb.imapBlock + int(sb.IMapBlocks)
	inodesPerBlock := limits.BLOCK_SIZE / onDiskInodeSize
	itableBlocks := (int(sb.NInodes) + inodesPerBlock - 1) / inodesPerBlock
	sb.itableBlk = sb.zmapBlock + int(sb.ZMapBlocks)
	_ = itableBlocks
}

// formatSuperblock builds a fresh superblock sized for an image of the
// given block count, with enough inode slots for limits.NANVIX_OPEN_MAX
// concurrently open files many times over.
func formatSuperblock(totalBlocks int) *Superblock {
	ninodes := uint32(256)
	imapBlocks := uint32((int(ninodes)/8 + limits.BLOCK_SIZE - 1) / limits.BLOCK_SIZE)
	if imapBlocks == 0 {
		imapBlocks = 1
	}
	nzones := uint32(totalBlocks)
	zmapBlocks := uint32((int(nzones)/8 + limits.BLOCK_SIZE - 1) / limits.BLOCK_SIZE)
	if zmapBlocks == 0 {
		zmapBlocks = 1
	}
	sb := &Superblock{
		Magic:      MinixSuperMagic,
		NInodes:    ninodes,
		NZones:     nzones,
		IMapBlocks: imapBlocks,
		ZMapBlocks: zmapBlocks,
		ZoneSize:   limits.BLOCK_SIZE,
		MaxSize:    uint64(limits.BLOCK_SIZE) * uint64(NumDirectZones+NumIndirectPointers),
	}
	layoutFor(sb)
	sb.FirstDataZone = uint32(sb.itableBlk) + (ninodes*onDiskInodeSize+limits.BLOCK_SIZE-1)/limits.BLOCK_SIZE
	return sb
}

// encode marshals the superblock into one on-disk block.
func (sb *Superblock) encode() []byte {
	buf := make([]byte, limits.BLOCK_SIZE)
	binary.LittleEndian.PutUint32(buf[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], sb.NInodes)
	binary.LittleEndian.PutUint32(buf[8:12], sb.NZones)
	binary.LittleEndian.PutUint32(buf[12:16], sb.IMapBlocks)
	binary.LittleEndian.PutUint32(buf[16:20], sb.ZMapBlocks)
	binary.LittleEndian.PutUint32(buf[20:24], sb.FirstDataZone)
	binary.LittleEndian.PutUint32(buf[24:28], sb.ZoneSize)
	binary.LittleEndian.PutUint64(buf[28:36], sb.MaxSize)
	binary.LittleEndian.PutUint32(buf[36:40], sb.SIOrphanBlock)
	binary.LittleEndian.PutUint32(buf[40:44], sb.SIOrphanLen)
	return buf
}

func decodeSuperblock(buf []byte) *Superblock {
	sb := &Superblock{
		Magic:         binary.LittleEndian.Uint32(buf[0:4]),
		NInodes:       binary.LittleEndian.Uint32(buf[4:8]),
		NZones:        binary.LittleEndian.Uint32(buf[8:12]),
		IMapBlocks:    binary.LittleEndian.Uint32(buf[12:16]),
		ZMapBlocks:    binary.LittleEndian.Uint32(buf[16:20]),
		FirstDataZone: binary.LittleEndian.Uint32(buf[20:24]),
		ZoneSize:      binary.LittleEndian.Uint32(buf[24:28]),
		MaxSize:       binary.LittleEndian.Uint64(buf[28:36]),
		SIOrphanBlock: binary.LittleEndian.Uint32(buf[36:40]),
		SIOrphanLen:   binary.LittleEndian.Uint32(buf[40:44]),
	}
	layoutFor(sb)
	return sb
}

// readSuperblock reads and validates block 1 directly off the device,
// bypassing the buffer cache so the superblock stays pinned (spec.md
// §4.9: "Read/write of superblock and bitmaps goes through the block
// device, not the buffer cache").
func readSuperblock(dev *ramdisk.Device) (*Superblock, errs.Err_t) {
	buf := make([]byte, limits.BLOCK_SIZE)
	if err := dev.ReadBlock(blockSuperblk, buf); err != errs.SUCCESS {
		return nil, err
	}
	sb := decodeSuperblock(buf)
	if sb.Magic != MinixSuperMagic {
		return nil, errs.EINVAL
	}
	return sb, errs.SUCCESS
}

func writeSuperblock(dev *ramdisk.Device, sb *Superblock) errs.Err_t {
	return dev.WriteBlock(blockSuperblk, sb.encode())
}
