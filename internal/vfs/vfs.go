package vfs

import (
	"time"

	"github.com/nanvix/multikernel-sub001/internal/bcache"
	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/metrics"
	"github.com/nanvix/multikernel-sub001/internal/pathutil"
	"github.com/nanvix/multikernel-sub001/internal/ramdisk"
)

// Whence values for Seek (spec.md §4.9 seek).
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// Fs is the VFS Core: one superblock, one inode table, one buffer cache,
// one block device (spec.md §4.9: "The VFS owns a single root file
// system").
type Fs struct {
	dev   *ramdisk.Device
	bc    *bcache.Cache
	sb    *Superblock
	imap  *bitmap
	zmap  *bitmap
	dev0  int // this core only ever mounts one ramdisk device
	root  *Inode
	cache map[uint32]*Inode // in-memory inode table, unique by (dev, number) per spec.md §3
}

// Format writes a fresh MINIX-shaped filesystem onto dev and returns the
// mounted Fs, with an empty root directory.
func Format(dev *ramdisk.Device) (*Fs, errs.Err_t) {
	sb := formatSuperblock(dev.Blocks())
	if err := writeSuperblock(dev, sb); err != errs.SUCCESS {
		return nil, err
	}
	fs := mount(dev, sb)

	// reserve bitmap index 0 in both maps (MINIX convention: 0 means "no
	// inode"/"no zone").
	if err := fs.imap.set(0, true); err != errs.SUCCESS {
		return nil, err
	}
	if err := fs.zmap.set(0, true); err != errs.SUCCESS {
		return nil, err
	}

	rootNum, err := fs.imap.allocFirstFree(sb.NInodes)
	if err != errs.SUCCESS {
		return nil, err
	}
	root := &Inode{Number: rootNum, Mode: ModeDir, NLinks: 1, refcount: 1}
	fs.cache[rootNum] = root
	fs.root = root
	if err := fs.writeInode(root); err != errs.SUCCESS {
		return nil, err
	}
	return fs, errs.SUCCESS
}

// Mount reads an existing MINIX-shaped image off dev (spec.md §4.9:
// "Superblock integrity is verified by a magic constant; mismatch aborts
// mount with EINVAL").
func Mount(dev *ramdisk.Device) (*Fs, errs.Err_t) {
	sb, err := readSuperblock(dev)
	if err != errs.SUCCESS {
		return nil, err
	}
	fs := mount(dev, sb)
	root, err := fs.readInode(1)
	if err != errs.SUCCESS {
		return nil, err
	}
	fs.root = root
	return fs, errs.SUCCESS
}

func mount(dev *ramdisk.Device, sb *Superblock) *Fs {
	return &Fs{
		dev:   dev,
		bc:    bcache.New(dev),
		sb:    sb,
		imap:  &bitmap{dev: dev, baseBlock: sb.imapBlock, nblocks: int(sb.IMapBlocks)},
		zmap:  &bitmap{dev: dev, baseBlock: sb.zmapBlock, nblocks: int(sb.ZMapBlocks)},
		cache: make(map[uint32]*Inode),
	}
}

// Root returns the mounted filesystem's root inode.
func (fs *Fs) Root() *Inode { return fs.root }

// SetMetrics attaches a counter store to the filesystem's buffer cache.
func (fs *Fs) SetMetrics(m *metrics.Store) { fs.bc.SetMetrics(m) }

func (fs *Fs) inodeBlockAndOffset(n uint32) (int, int) {
	inodesPerBlock := limits.BLOCK_SIZE / onDiskInodeSize
	idx := int(n) - 1
	return fs.sb.itableBlk + idx/inodesPerBlock, (idx % inodesPerBlock) * onDiskInodeSize
}

func (fs *Fs) readInode(n uint32) (*Inode, errs.Err_t) {
	if ino, ok := fs.cache[n]; ok {
		ino.refcount++
		return ino, errs.SUCCESS
	}
	blk, off := fs.inodeBlockAndOffset(n)
	buf := make([]byte, limits.BLOCK_SIZE)
	if err := fs.dev.ReadBlock(blk, buf); err != errs.SUCCESS {
		return nil, err
	}
	ino := decodeInode(n, buf[off:off+onDiskInodeSize])
	ino.refcount = 1
	fs.cache[n] = ino
	return ino, errs.SUCCESS
}

func (fs *Fs) writeInode(ino *Inode) errs.Err_t {
	blk, off := fs.inodeBlockAndOffset(ino.Number)
	buf := make([]byte, limits.BLOCK_SIZE)
	if err := fs.dev.ReadBlock(blk, buf); err != errs.SUCCESS {
		return err
	}
	copy(buf[off:off+onDiskInodeSize], ino.encode())
	return fs.dev.WriteBlock(blk, buf)
}

func (fs *Fs) putInode(ino *Inode) {
	ino.refcount--
	if ino.refcount <= 0 && ino.NLinks == 0 {
		delete(fs.cache, ino.Number)
	}
}

// lookupChild scans dir's zones for a dirent named name.
func (fs *Fs) lookupChild(dir *Inode, name string) (*Inode, errs.Err_t) {
	if name == "." {
		dir.refcount++
		return dir, errs.SUCCESS
	}
	for _, z := range dir.Zones {
		if z == 0 {
			continue
		}
		buf, err := fs.bc.Bread(fs.dev0, int(z))
		if err != errs.SUCCESS {
			return nil, err
		}
		for i := 0; i < directEntries; i++ {
			off := i * direntSize
			d := decodeDirent(buf.Data[off : off+direntSize])
			if d.name == name && d.inode != 0 {
				fs.bc.Brelse(buf)
				return fs.readInode(d.inode)
			}
		}
		fs.bc.Brelse(buf)
	}
	if name == ".." {
		dir.refcount++
		return dir, errs.SUCCESS // root has no parent; this core keeps a flat enough tree that ".." resolves to self when absent
	}
	return nil, errs.ENOENT
}

// linkChild writes a new dirent naming childNum into dir, allocating a
// fresh zone if every existing one is full.
func (fs *Fs) linkChild(dir *Inode, name string, childNum uint32) errs.Err_t {
	for zi, z := range dir.Zones {
		if z == 0 {
			continue
		}
		buf, err := fs.bc.Bread(fs.dev0, int(z))
		if err != errs.SUCCESS {
			return err
		}
		for i := 0; i < directEntries; i++ {
			off := i * direntSize
			d := decodeDirent(buf.Data[off : off+direntSize])
			if d.inode == 0 {
				copy(buf.Data[off:off+direntSize], encodeDirent(dirent{name: name, inode: childNum}))
				fs.bc.SetDirty(buf)
				err := fs.bc.Bwrite(buf)
				fs.bc.Brelse(buf)
				return err
			}
		}
		fs.bc.Brelse(buf)
		_ = zi
	}
	zoneNum, err := fs.allocZone(dir)
	if err != errs.SUCCESS {
		return err
	}
	buf, err := fs.bc.Bread(fs.dev0, int(zoneNum))
	if err != errs.SUCCESS {
		return err
	}
	copy(buf.Data[0:direntSize], encodeDirent(dirent{name: name, inode: childNum}))
	fs.bc.SetDirty(buf)
	err = fs.bc.Bwrite(buf)
	fs.bc.Brelse(buf)
	return err
}

// allocZone reserves a fresh zone from the zone bitmap and records it in
// ino's direct zone map.
func (fs *Fs) allocZone(ino *Inode) (uint32, errs.Err_t) {
	for i, z := range ino.Zones {
		if z == 0 {
			n, err := fs.zmap.allocFirstFree(fs.sb.NZones)
			if err != errs.SUCCESS {
				return 0, err
			}
			ino.Zones[i] = n
			if err := fs.writeInode(ino); err != errs.SUCCESS {
				return 0, err
			}
			return n, errs.SUCCESS
		}
	}
	return 0, errs.EFBIG
}

// Open implements spec.md §4.9 open.
func (fs *Fs) Open(fp *FProcess, p pathutil.Path, flags int, access AccessMode) (int, errs.Err_t) {
	parent, leaf, err := fs.resolve(p, fp.PWD, fp.Root)
	if err != errs.SUCCESS {
		return -1, err
	}

	var ino *Inode
	if leaf == "" {
		ino = parent
		ino.refcount++
	} else {
		child, lerr := fs.lookupChild(parent, leaf)
		if lerr == errs.ENOENT {
			if flags&O_CREAT == 0 {
				return -1, errs.ENOENT
			}
			num, aerr := fs.imap.allocFirstFree(fs.sb.NInodes)
			if aerr != errs.SUCCESS {
				return -1, aerr
			}
			ino = &Inode{Number: num, Mode: ModeFile, NLinks: 1, refcount: 1}
			fs.cache[num] = ino
			if werr := fs.writeInode(ino); werr != errs.SUCCESS {
				return -1, werr
			}
			if werr := fs.linkChild(parent, leaf, num); werr != errs.SUCCESS {
				return -1, werr
			}
		} else if lerr != errs.SUCCESS {
			return -1, lerr
		} else {
			ino = child
			if ino.Mode&ModeDir != 0 {
				return -1, errs.EACCES
			}
			if flags&O_CREAT != 0 && flags&0o200 != 0 {
				// O_CREAT|O_EXCL style check left to callers; core only
				// rejects directory targets here.
			}
		}
	}

	if flags&O_TRUNC != 0 && (access == WRONLY || access == RDWR) {
		ino.Size = 0
		ino.Zones = [NumDirectZones]uint32{}
		if err := fs.writeInode(ino); err != errs.SUCCESS {
			return -1, err
		}
	}

	slot := fp.firstFreeSlot()
	if slot < 0 {
		fs.putInode(ino)
		return -1, errs.EMFILE
	}
	offset := int64(0)
	if flags&O_APPEND != 0 {
		offset = int64(ino.Size)
	}
	fp.OFiles[slot] = &OpenFile{inode: ino, offset: offset, access: access, flags: flags, refcount: 1}
	return slot, errs.SUCCESS
}

// Close implements spec.md §4.9 close.
func (fs *Fs) Close(fp *FProcess, fd int) errs.Err_t {
	if fd < 0 || fd >= limits.NANVIX_OPEN_MAX || fp.OFiles[fd] == nil {
		return errs.EBADF
	}
	of := fp.OFiles[fd]
	of.refcount--
	if of.refcount <= 0 {
		fs.putInode(of.inode)
		fp.OFiles[fd] = nil
	}
	return errs.SUCCESS
}

// Read implements spec.md §4.9 read.
func (fs *Fs) Read(fp *FProcess, fd int, buf []byte) (int, errs.Err_t) {
	of, err := fs.ofile(fp, fd)
	if err != errs.SUCCESS {
		return -1, err
	}
	if of.access != RDONLY && of.access != RDWR {
		return -1, errs.EACCES
	}
	n := int64(len(buf))
	if of.offset+n > int64(of.inode.Size) {
		n = int64(of.inode.Size) - of.offset
	}
	if n <= 0 {
		return 0, errs.SUCCESS
	}
	total := 0
	remaining := n
	off := of.offset
	for remaining > 0 {
		zoneIdx := int(off / limits.BLOCK_SIZE)
		if zoneIdx >= NumDirectZones || of.inode.Zones[zoneIdx] == 0 {
			break
		}
		blkOff := off % limits.BLOCK_SIZE
		want := int64(limits.BLOCK_SIZE) - blkOff
		if want > remaining {
			want = remaining
		}
		b, berr := fs.bc.Bread(fs.dev0, int(of.inode.Zones[zoneIdx]))
		if berr != errs.SUCCESS {
			return total, berr
		}
		copy(buf[total:int64(total)+want], b.Data[blkOff:int64(blkOff)+want])
		fs.bc.Brelse(b)
		total += int(want)
		off += want
		remaining -= want
	}
	of.offset = off
	return total, errs.SUCCESS
}

// Write implements spec.md §4.9 write.
func (fs *Fs) Write(fp *FProcess, fd int, data []byte) (int, errs.Err_t) {
	of, err := fs.ofile(fp, fd)
	if err != errs.SUCCESS {
		return -1, err
	}
	if of.access != WRONLY && of.access != RDWR {
		return -1, errs.EACCES
	}
	if of.offset+int64(len(data)) > int64(fs.sb.MaxSize) {
		return -1, errs.EFBIG
	}
	total := 0
	remaining := len(data)
	off := of.offset
	for remaining > 0 {
		zoneIdx := int(off / limits.BLOCK_SIZE)
		if zoneIdx >= NumDirectZones {
			return total, errs.EFBIG
		}
		if of.inode.Zones[zoneIdx] == 0 {
			if _, aerr := fs.allocZoneAt(of.inode, zoneIdx); aerr != errs.SUCCESS {
				return total, aerr
			}
		}
		blkOff := off % limits.BLOCK_SIZE
		want := int64(limits.BLOCK_SIZE) - blkOff
		if want > int64(remaining) {
			want = int64(remaining)
		}
		b, berr := fs.bc.Bread(fs.dev0, int(of.inode.Zones[zoneIdx]))
		if berr != errs.SUCCESS {
			return total, berr
		}
		copy(b.Data[blkOff:int64(blkOff)+want], data[total:int64(total)+want])
		fs.bc.SetDirty(b)
		werr := fs.bc.Bwrite(b)
		fs.bc.Brelse(b)
		if werr != errs.SUCCESS {
			return total, werr
		}
		total += int(want)
		off += want
		remaining -= int(want)
	}
	of.offset = off
	if uint64(off) > of.inode.Size {
		of.inode.Size = uint64(off)
	}
	of.inode.Mtime = time.Now().Unix()
	if err := fs.writeInode(of.inode); err != errs.SUCCESS {
		return total, err
	}
	return total, errs.SUCCESS
}

func (fs *Fs) allocZoneAt(ino *Inode, idx int) (uint32, errs.Err_t) {
	n, err := fs.zmap.allocFirstFree(fs.sb.NZones)
	if err != errs.SUCCESS {
		return 0, err
	}
	ino.Zones[idx] = n
	return n, fs.writeInode(ino)
}

// Seek implements spec.md §4.9 seek.
func (fs *Fs) Seek(fp *FProcess, fd int, offset int64, whence int) (int64, errs.Err_t) {
	of, err := fs.ofile(fp, fd)
	if err != errs.SUCCESS {
		return -1, err
	}
	var base int64
	switch whence {
	case SEEK_SET:
		base = 0
	case SEEK_CUR:
		base = of.offset
	case SEEK_END:
		base = int64(of.inode.Size)
	default:
		return -1, errs.EINVAL
	}
	newOff := base + offset
	if newOff < 0 {
		return -1, errs.EINVAL
	}
	of.offset = newOff
	return newOff, errs.SUCCESS
}

// Unlink implements spec.md §4.9 unlink.
func (fs *Fs) Unlink(fp *FProcess, p pathutil.Path) errs.Err_t {
	parent, leaf, err := fs.resolve(p, fp.PWD, fp.Root)
	if err != errs.SUCCESS {
		return err
	}
	if leaf == "" {
		return errs.EINVAL
	}
	child, err := fs.lookupChild(parent, leaf)
	if err != errs.SUCCESS {
		return err
	}
	if err := fs.unlinkChild(parent, leaf); err != errs.SUCCESS {
		return err
	}
	child.NLinks--
	if child.NLinks == 0 && child.refcount <= 1 {
		for _, z := range child.Zones {
			if z != 0 {
				fs.zmap.set(z, false)
			}
		}
		fs.imap.set(child.Number, false)
		delete(fs.cache, child.Number)
		return errs.SUCCESS
	}
	return fs.writeInode(child)
}

func (fs *Fs) unlinkChild(dir *Inode, name string) errs.Err_t {
	for _, z := range dir.Zones {
		if z == 0 {
			continue
		}
		buf, err := fs.bc.Bread(fs.dev0, int(z))
		if err != errs.SUCCESS {
			return err
		}
		for i := 0; i < directEntries; i++ {
			off := i * direntSize
			d := decodeDirent(buf.Data[off : off+direntSize])
			if d.name == name && d.inode != 0 {
				clear := make([]byte, direntSize)
				copy(buf.Data[off:off+direntSize], clear)
				fs.bc.SetDirty(buf)
				werr := fs.bc.Bwrite(buf)
				fs.bc.Brelse(buf)
				return werr
			}
		}
		fs.bc.Brelse(buf)
	}
	return errs.ENOENT
}

// Stat implements spec.md §4.9 stat.
type Stat struct {
	Number uint32
	Mode   uint32
	Size   uint64
	NLinks uint32
	Mtime  int64
}

func (fs *Fs) Stat(fp *FProcess, p pathutil.Path) (Stat, errs.Err_t) {
	parent, leaf, err := fs.resolve(p, fp.PWD, fp.Root)
	if err != errs.SUCCESS {
		return Stat{}, err
	}
	ino := parent
	if leaf != "" {
		child, lerr := fs.lookupChild(parent, leaf)
		if lerr != errs.SUCCESS {
			return Stat{}, lerr
		}
		ino = child
	}
	return Stat{Number: ino.Number, Mode: ino.Mode, Size: ino.Size, NLinks: ino.NLinks, Mtime: ino.Mtime}, errs.SUCCESS
}

// Mkdir creates a new directory at p, linked into its parent.
func (fs *Fs) Mkdir(fp *FProcess, p pathutil.Path) errs.Err_t {
	parent, leaf, err := fs.resolve(p, fp.PWD, fp.Root)
	if err != errs.SUCCESS {
		return err
	}
	if leaf == "" {
		return errs.EEXIST
	}
	if _, lerr := fs.lookupChild(parent, leaf); lerr == errs.SUCCESS {
		return errs.EEXIST
	}
	num, err := fs.imap.allocFirstFree(fs.sb.NInodes)
	if err != errs.SUCCESS {
		return err
	}
	dir := &Inode{Number: num, Mode: ModeDir, NLinks: 1, refcount: 1}
	fs.cache[num] = dir
	if err := fs.writeInode(dir); err != errs.SUCCESS {
		return err
	}
	return fs.linkChild(parent, leaf, num)
}

func (fs *Fs) ofile(fp *FProcess, fd int) (*OpenFile, errs.Err_t) {
	if fd < 0 || fd >= limits.NANVIX_OPEN_MAX || fp.OFiles[fd] == nil {
		return nil, errs.EBADF
	}
	return fp.OFiles[fd], errs.SUCCESS
}

// Sync flushes the buffer cache's dirty buffers (spec.md §4.10 teardown).
func (fs *Fs) Sync() errs.Err_t {
	return fs.bc.Sync()
}

// ListDir returns the non-empty dirent names of the directory at p,
// supporting cmd/vfsmount's FUSE Readdir bridge (spec.md §4.9 does not
// name a readdir opcode, but a real POSIX mount needs one to list a
// directory's children).
func (fs *Fs) ListDir(fp *FProcess, p pathutil.Path) ([]string, errs.Err_t) {
	parent, leaf, err := fs.resolve(p, fp.PWD, fp.Root)
	if err != errs.SUCCESS {
		return nil, err
	}
	dir := parent
	if leaf != "" {
		child, lerr := fs.lookupChild(parent, leaf)
		if lerr != errs.SUCCESS {
			return nil, lerr
		}
		dir = child
	}
	if dir.Mode&ModeDir == 0 {
		return nil, errs.ENOTSUP
	}
	var names []string
	for _, z := range dir.Zones {
		if z == 0 {
			continue
		}
		buf, berr := fs.bc.Bread(fs.dev0, int(z))
		if berr != errs.SUCCESS {
			return nil, berr
		}
		for i := 0; i < directEntries; i++ {
			off := i * direntSize
			d := decodeDirent(buf.Data[off : off+direntSize])
			if d.inode != 0 {
				names = append(names, d.name)
			}
		}
		fs.bc.Brelse(buf)
	}
	return names, errs.SUCCESS
}
