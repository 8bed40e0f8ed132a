package vfs

import (
	"testing"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/nanvix/multikernel-sub001/internal/pathutil"
	"github.com/nanvix/multikernel-sub001/internal/ramdisk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFs(t *testing.T) (*Fs, *FProcess) {
	t.Helper()
	dev, err := ramdisk.NewMemDevice(limits.RMEM_NUM_BLOCKS / 4)
	require.NoError(t, err)
	fs, ferr := Format(dev)
	require.Equal(t, errs.SUCCESS, ferr)
	return fs, NewFProcess(fs.Root())
}

func TestOpenCreateWriteReadRoundTrip(t *testing.T) {
	fs, fp := newFs(t)
	fd, err := fs.Open(fp, "/hello.txt", O_CREAT, RDWR)
	require.Equal(t, errs.SUCCESS, err)

	n, err := fs.Write(fp, fd, []byte("hello, vfs"))
	require.Equal(t, errs.SUCCESS, err)
	assert.Equal(t, 10, n)

	_, err = fs.Seek(fp, fd, 0, SEEK_SET)
	require.Equal(t, errs.SUCCESS, err)

	buf := make([]byte, 32)
	n, err = fs.Read(fp, fd, buf)
	require.Equal(t, errs.SUCCESS, err)
	assert.Equal(t, "hello, vfs", string(buf[:n]))

	require.Equal(t, errs.SUCCESS, fs.Close(fp, fd))
}

func TestOpenMissingWithoutCreate(t *testing.T) {
	fs, fp := newFs(t)
	_, err := fs.Open(fp, "/nope.txt", 0, RDONLY)
	assert.Equal(t, errs.ENOENT, err)
}

func TestOpenDirectoryAsFileRejected(t *testing.T) {
	fs, fp := newFs(t)
	require.Equal(t, errs.SUCCESS, fs.Mkdir(fp, "/adir"))
	_, err := fs.Open(fp, "/adir", 0, RDONLY)
	assert.Equal(t, errs.EACCES, err)
}

func TestWriteRejectsReadOnlyFile(t *testing.T) {
	fs, fp := newFs(t)
	fd, err := fs.Open(fp, "/ro.txt", O_CREAT, RDWR)
	require.Equal(t, errs.SUCCESS, err)
	_, err = fs.Write(fp, fd, []byte("x"))
	require.Equal(t, errs.SUCCESS, err)
	require.Equal(t, errs.SUCCESS, fs.Close(fp, fd))

	fd2, err := fs.Open(fp, "/ro.txt", 0, RDONLY)
	require.Equal(t, errs.SUCCESS, err)
	_, err = fs.Write(fp, fd2, []byte("y"))
	assert.Equal(t, errs.EACCES, err)
}

func TestReadRejectsWriteOnlyFile(t *testing.T) {
	fs, fp := newFs(t)
	fd, err := fs.Open(fp, "/wo.txt", O_CREAT, WRONLY)
	require.Equal(t, errs.SUCCESS, err)
	buf := make([]byte, 4)
	_, err = fs.Read(fp, fd, buf)
	assert.Equal(t, errs.EACCES, err)
}

func TestSeekWhenceVariants(t *testing.T) {
	fs, fp := newFs(t)
	fd, err := fs.Open(fp, "/f.txt", O_CREAT, RDWR)
	require.Equal(t, errs.SUCCESS, err)
	_, err = fs.Write(fp, fd, []byte("0123456789"))
	require.Equal(t, errs.SUCCESS, err)

	off, err := fs.Seek(fp, fd, 3, SEEK_SET)
	require.Equal(t, errs.SUCCESS, err)
	assert.EqualValues(t, 3, off)

	off, err = fs.Seek(fp, fd, 2, SEEK_CUR)
	require.Equal(t, errs.SUCCESS, err)
	assert.EqualValues(t, 5, off)

	off, err = fs.Seek(fp, fd, 0, SEEK_END)
	require.Equal(t, errs.SUCCESS, err)
	assert.EqualValues(t, 10, off)

	_, err = fs.Seek(fp, fd, -100, SEEK_SET)
	assert.Equal(t, errs.EINVAL, err)
}

func TestUnlinkRemovesDirent(t *testing.T) {
	fs, fp := newFs(t)
	fd, err := fs.Open(fp, "/gone.txt", O_CREAT, RDWR)
	require.Equal(t, errs.SUCCESS, err)
	require.Equal(t, errs.SUCCESS, fs.Close(fp, fd))

	require.Equal(t, errs.SUCCESS, fs.Unlink(fp, "/gone.txt"))
	_, err = fs.Open(fp, "/gone.txt", 0, RDONLY)
	assert.Equal(t, errs.ENOENT, err)
}

func TestUnlinkMissingFile(t *testing.T) {
	fs, fp := newFs(t)
	assert.Equal(t, errs.ENOENT, fs.Unlink(fp, "/missing.txt"))
}

func TestStatReportsSizeAndMode(t *testing.T) {
	fs, fp := newFs(t)
	fd, err := fs.Open(fp, "/s.txt", O_CREAT, RDWR)
	require.Equal(t, errs.SUCCESS, err)
	_, err = fs.Write(fp, fd, []byte("abcde"))
	require.Equal(t, errs.SUCCESS, err)
	require.Equal(t, errs.SUCCESS, fs.Close(fp, fd))

	st, err := fs.Stat(fp, "/s.txt")
	require.Equal(t, errs.SUCCESS, err)
	assert.EqualValues(t, 5, st.Size)
	assert.EqualValues(t, 1, st.NLinks)
}

func TestMkdirRejectsDuplicate(t *testing.T) {
	fs, fp := newFs(t)
	require.Equal(t, errs.SUCCESS, fs.Mkdir(fp, "/d"))
	assert.Equal(t, errs.EEXIST, fs.Mkdir(fp, "/d"))
}

func TestListDirReturnsCreatedEntries(t *testing.T) {
	fs, fp := newFs(t)
	for _, name := range []string{"/a.txt", "/b.txt", "/c.txt"} {
		fd, err := fs.Open(fp, pathutil.Path(name), O_CREAT, RDWR)
		require.Equal(t, errs.SUCCESS, err)
		require.Equal(t, errs.SUCCESS, fs.Close(fp, fd))
	}

	names, err := fs.ListDir(fp, pathutil.Root)
	require.Equal(t, errs.SUCCESS, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "c.txt"}, names)
}

func TestListDirOnFileFails(t *testing.T) {
	fs, fp := newFs(t)
	fd, err := fs.Open(fp, "/f.txt", O_CREAT, RDWR)
	require.Equal(t, errs.SUCCESS, err)
	require.Equal(t, errs.SUCCESS, fs.Close(fp, fd))

	_, err = fs.ListDir(fp, "/f.txt")
	assert.Equal(t, errs.ENOTSUP, err)
}

func TestOpenTruncTruncatesExistingContent(t *testing.T) {
	fs, fp := newFs(t)
	fd, err := fs.Open(fp, "/t.txt", O_CREAT, RDWR)
	require.Equal(t, errs.SUCCESS, err)
	_, err = fs.Write(fp, fd, []byte("some content"))
	require.Equal(t, errs.SUCCESS, err)
	require.Equal(t, errs.SUCCESS, fs.Close(fp, fd))

	fd2, err := fs.Open(fp, "/t.txt", O_TRUNC, RDWR)
	require.Equal(t, errs.SUCCESS, err)
	st, err := fs.Stat(fp, "/t.txt")
	require.Equal(t, errs.SUCCESS, err)
	assert.EqualValues(t, 0, st.Size)
	require.Equal(t, errs.SUCCESS, fs.Close(fp, fd2))
}

func TestCloseBadFD(t *testing.T) {
	fs, fp := newFs(t)
	assert.Equal(t, errs.EBADF, fs.Close(fp, 0))
	assert.Equal(t, errs.EBADF, fs.Close(fp, limits.NANVIX_OPEN_MAX))
}

func TestOpenExhaustsOpenFileSlots(t *testing.T) {
	fs, fp := newFs(t)
	for i := 0; i < limits.NANVIX_OPEN_MAX; i++ {
		_, err := fs.Open(fp, pathutil.Root.Extend(string(rune('a'+i))), O_CREAT, RDWR)
		require.Equal(t, errs.SUCCESS, err)
	}
	_, err := fs.Open(fp, "/overflow.txt", O_CREAT, RDWR)
	assert.Equal(t, errs.EMFILE, err)
}

func TestMountReadsBackFormattedImage(t *testing.T) {
	dev, err := ramdisk.NewMemDevice(limits.RMEM_NUM_BLOCKS / 4)
	require.NoError(t, err)
	fs1, ferr := Format(dev)
	require.Equal(t, errs.SUCCESS, ferr)
	fp1 := NewFProcess(fs1.Root())
	fd, err := fs1.Open(fp1, "/persisted.txt", O_CREAT, RDWR)
	require.Equal(t, errs.SUCCESS, err)
	_, err = fs1.Write(fp1, fd, []byte("durable"))
	require.Equal(t, errs.SUCCESS, err)
	require.Equal(t, errs.SUCCESS, fs1.Close(fp1, fd))
	require.Equal(t, errs.SUCCESS, fs1.Sync())

	fs2, merr := Mount(dev)
	require.Equal(t, errs.SUCCESS, merr)
	fp2 := NewFProcess(fs2.Root())
	fd2, err := fs2.Open(fp2, "/persisted.txt", 0, RDONLY)
	require.Equal(t, errs.SUCCESS, err)
	buf := make([]byte, 16)
	n, err := fs2.Read(fp2, fd2, buf)
	require.Equal(t, errs.SUCCESS, err)
	assert.Equal(t, "durable", string(buf[:n]))
}
