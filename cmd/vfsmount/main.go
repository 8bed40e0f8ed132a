// Command vfsmount exposes the VFS Core (spec.md §4.9, component J) as a
// real POSIX mount, using github.com/hanwen/go-fuse/v2 (SPEC_FULL.md
// DOMAIN STACK "FUSE front-end") instead of driving it only through the
// wire protocol. github.com/moby/sys/mountinfo checks the mount point is
// clear before mounting.
//
// The bridge exposes one flat directory: the VFS core itself supports
// nested directories (Mkdir, lookupChild's "." / ".." handling), but this
// mount only ever surfaces the root's direct children, matching spec.md
// §4.9's "single root file system" without reimplementing a full path
// hierarchy across the FUSE boundary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"syscall"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/moby/sys/mountinfo"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/pathutil"
	"github.com/nanvix/multikernel-sub001/internal/ramdisk"
	"github.com/nanvix/multikernel-sub001/internal/vfs"
)

// vfsRoot is the FUSE root directory node. The VFS Core is not safe for
// concurrent callers on one fprocess (spec.md §5's single-threaded
// cooperative model assumes one request in flight at a time), so every
// node shares root.mu to serialize calls arriving from FUSE's own worker
// goroutines.
type vfsRoot struct {
	gofs.Inode
	mu sync.Mutex
	fs *vfs.Fs
	fp *vfs.FProcess
}

var (
	_ gofs.NodeLookuper  = (*vfsRoot)(nil)
	_ gofs.NodeReaddirer = (*vfsRoot)(nil)
	_ gofs.NodeCreater   = (*vfsRoot)(nil)
	_ gofs.NodeUnlinker  = (*vfsRoot)(nil)
	_ gofs.NodeGetattrer = (*vfsRoot)(nil)
)

func (r *vfsRoot) Getattr(ctx context.Context, f gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0755
	return 0
}

func (r *vfsRoot) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	r.mu.Lock()
	st, err := r.fs.Stat(r.fp, pathutil.Root.Extend(name))
	r.mu.Unlock()
	if err != errs.SUCCESS {
		return nil, errnoFor(err)
	}
	out.Attr.Mode = modeFor(st)
	out.Attr.Size = st.Size
	child := &vfsFile{root: r, name: name}
	return r.NewInode(ctx, child, gofs.StableAttr{Mode: fuse.S_IFREG, Ino: uint64(st.Number)}), 0
}

func (r *vfsRoot) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	r.mu.Lock()
	names, err := r.fs.ListDir(r.fp, pathutil.Root)
	r.mu.Unlock()
	if err != errs.SUCCESS {
		return nil, errnoFor(err)
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, fuse.DirEntry{Name: n, Mode: fuse.S_IFREG})
	}
	return gofs.NewListDirStream(entries), 0
}

func (r *vfsRoot) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	r.mu.Lock()
	fd, err := r.fs.Open(r.fp, pathutil.Root.Extend(name), vfs.O_CREAT, vfs.RDWR)
	r.mu.Unlock()
	if err != errs.SUCCESS {
		return nil, nil, 0, errnoFor(err)
	}
	child := &vfsFile{root: r, name: name}
	node := r.NewInode(ctx, child, gofs.StableAttr{Mode: fuse.S_IFREG})
	return node, &vfsHandle{fd: fd}, 0, 0
}

func (r *vfsRoot) Unlink(ctx context.Context, name string) syscall.Errno {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errnoFor(r.fs.Unlink(r.fp, pathutil.Root.Extend(name)))
}

// vfsFile is the FUSE node for one regular file; all operations resolve
// the file by name against the shared root fprocess rather than holding a
// stable fd across the node's lifetime, since FUSE may re-Open the same
// node many times.
type vfsFile struct {
	gofs.Inode
	root *vfsRoot
	name string
}

// vfsHandle is the FileHandle returned by Open/Create: the VFS fd backing
// this open instance.
type vfsHandle struct {
	fd int
}

var (
	_ gofs.NodeOpener    = (*vfsFile)(nil)
	_ gofs.NodeReader    = (*vfsFile)(nil)
	_ gofs.NodeWriter    = (*vfsFile)(nil)
	_ gofs.NodeGetattrer = (*vfsFile)(nil)
)

func (n *vfsFile) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	access := vfs.RDWR
	switch flags & syscall.O_ACCMODE {
	case syscall.O_RDONLY:
		access = vfs.RDONLY
	case syscall.O_WRONLY:
		access = vfs.WRONLY
	}
	n.root.mu.Lock()
	fd, err := n.root.fs.Open(n.root.fp, pathutil.Root.Extend(n.name), 0, access)
	n.root.mu.Unlock()
	if err != errs.SUCCESS {
		return nil, 0, errnoFor(err)
	}
	return &vfsHandle{fd: fd}, 0, 0
}

func (n *vfsFile) Read(ctx context.Context, f gofs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h := f.(*vfsHandle)
	n.root.mu.Lock()
	defer n.root.mu.Unlock()
	if _, err := n.root.fs.Seek(n.root.fp, h.fd, off, vfs.SEEK_SET); err != errs.SUCCESS {
		return nil, errnoFor(err)
	}
	nread, err := n.root.fs.Read(n.root.fp, h.fd, dest)
	if err != errs.SUCCESS {
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(dest[:nread]), 0
}

func (n *vfsFile) Write(ctx context.Context, f gofs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	h := f.(*vfsHandle)
	n.root.mu.Lock()
	defer n.root.mu.Unlock()
	if _, err := n.root.fs.Seek(n.root.fp, h.fd, off, vfs.SEEK_SET); err != errs.SUCCESS {
		return 0, errnoFor(err)
	}
	nw, err := n.root.fs.Write(n.root.fp, h.fd, data)
	if err != errs.SUCCESS {
		return 0, errnoFor(err)
	}
	return uint32(nw), 0
}

func (n *vfsFile) Getattr(ctx context.Context, f gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.root.mu.Lock()
	st, err := n.root.fs.Stat(n.root.fp, pathutil.Root.Extend(n.name))
	n.root.mu.Unlock()
	if err != errs.SUCCESS {
		return errnoFor(err)
	}
	out.Attr.Mode = modeFor(st)
	out.Attr.Size = st.Size
	return 0
}

func modeFor(st vfs.Stat) uint32 {
	if st.Mode&vfs.ModeDir != 0 {
		return syscall.S_IFDIR | 0755
	}
	return syscall.S_IFREG | 0644
}

func errnoFor(e errs.Err_t) syscall.Errno {
	switch e {
	case errs.SUCCESS:
		return 0
	case errs.EINVAL:
		return syscall.EINVAL
	case errs.ENOENT:
		return syscall.ENOENT
	case errs.EEXIST:
		return syscall.EEXIST
	case errs.EACCES:
		return syscall.EACCES
	case errs.EBADF:
		return syscall.EBADF
	case errs.ENOSPC:
		return syscall.ENOSPC
	case errs.EFBIG:
		return syscall.EFBIG
	case errs.ENAMETOOLONG:
		return syscall.ENAMETOOLONG
	case errs.EMFILE:
		return syscall.EMFILE
	case errs.ENFILE:
		return syscall.ENFILE
	case errs.EBUSY:
		return syscall.EBUSY
	case errs.EAGAIN:
		return syscall.EAGAIN
	case errs.ENOTSUP:
		return syscall.ENOTSUP
	case errs.EPERM:
		return syscall.EPERM
	default:
		return syscall.EIO
	}
}

func main() {
	debug := flag.Bool("debug", false, "print FUSE debug trace")
	diskPath := flag.String("disk", "", "backing disk image path (defaults to in-memory)")
	flag.Parse()
	if flag.NArg() < 1 {
		log.Fatal("usage: vfsmount [-disk path] MOUNTPOINT")
	}
	mountPoint := flag.Arg(0)

	mounted, err := mountinfo.Mounted(mountPoint)
	if err != nil {
		log.Fatalf("checking mount point: %v", err)
	}
	if mounted {
		log.Fatalf("%s is already a mount point; run fusermount -u first", mountPoint)
	}

	var dev *ramdisk.Device
	if *diskPath != "" {
		dev, err = ramdisk.OpenFileDevice(*diskPath)
	} else {
		dev, err = ramdisk.NewMemDevice(limits.RMEM_NUM_BLOCKS)
	}
	if err != nil {
		log.Fatal(err)
	}

	fsys, ferr := vfs.Format(dev)
	if ferr != errs.SUCCESS {
		log.Fatalf("format: %v", ferr)
	}

	root := &vfsRoot{fs: fsys, fp: vfs.NewFProcess(fsys.Root())}
	server, err := gofs.Mount(mountPoint, root, &gofs.Options{
		MountOptions: fuse.MountOptions{Debug: *debug},
	})
	if err != nil {
		log.Fatalf("mount: %v", err)
	}
	fmt.Printf("mounted nanvix VFS at %s\n", mountPoint)
	server.Wait()
}
