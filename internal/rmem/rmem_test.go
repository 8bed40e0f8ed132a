package rmem

import (
	"testing"

	"github.com/nanvix/multikernel-sub001/internal/errs"
	"github.com/nanvix/multikernel-sub001/internal/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	s := NewStore()
	a := s.Alloc()
	require.NotEqual(t, limits.RMEM_NULL, int(a))
	b := s.Alloc()
	assert.NotEqual(t, a, b, "two allocations must not hand out the same page")

	require.Equal(t, errs.SUCCESS, s.Free(a))
	require.Equal(t, errs.SUCCESS, s.Free(b))
}

func TestFreeUnallocatedPage(t *testing.T) {
	s := NewStore()
	assert.Equal(t, errs.EINVAL, s.Free(PageNumber(5)))
}

func TestFreeDoubleFree(t *testing.T) {
	s := NewStore()
	a := s.Alloc()
	require.Equal(t, errs.SUCCESS, s.Free(a))
	assert.Equal(t, errs.EINVAL, s.Free(a), "double free must be rejected")
}

func TestAllocExhaustion(t *testing.T) {
	s := NewStore()
	for i := 0; i < limits.RMEM_NUM_BLOCKS-1; i++ {
		require.NotEqual(t, limits.RMEM_NULL, int(s.Alloc()))
	}
	assert.Equal(t, limits.RMEM_NULL, int(s.Alloc()), "pool must be exhausted after handing out every page but the reserved null page")
}

func TestReadWriteRoundTrip(t *testing.T) {
	s := NewStore()
	want := []byte("hello, rmem")
	require.Equal(t, errs.SUCCESS, s.Write(0, len(want), want))

	got := make([]byte, len(want))
	require.Equal(t, errs.SUCCESS, s.Read(0, len(got), got))
	assert.Equal(t, want, got)
}

func TestReadWriteSpansPageBoundary(t *testing.T) {
	s := NewStore()
	addr := limits.RMEM_BLOCK_SIZE - 4
	size := 16
	want := make([]byte, size)
	for i := range want {
		want[i] = byte(i + 1)
	}
	require.Equal(t, errs.SUCCESS, s.Write(addr, size, want))

	got := make([]byte, size)
	require.Equal(t, errs.SUCCESS, s.Read(addr, size, got))
	assert.Equal(t, want, got, "a transfer spanning a page boundary must not be truncated at the page edge")
}

func TestWriteRejectsNilBuffer(t *testing.T) {
	s := NewStore()
	assert.Equal(t, errs.EINVAL, s.Write(0, limits.RMEM_BLOCK_SIZE, nil), "a short/nil buffer must be rejected, not panic")
}

func TestReadRejectsShortBuffer(t *testing.T) {
	s := NewStore()
	buf := make([]byte, 4)
	assert.Equal(t, errs.EINVAL, s.Read(0, 16, buf))
}

func TestValidateExtentBounds(t *testing.T) {
	assert.Equal(t, errs.SUCCESS, validateExtent(0, limits.RMEM_SIZE))
	assert.Equal(t, errs.EINVAL, validateExtent(-1, 1))
	assert.Equal(t, errs.EINVAL, validateExtent(0, -1))
	assert.Equal(t, errs.EINVAL, validateExtent(limits.RMEM_SIZE-1, 2))
	assert.Equal(t, errs.EINVAL, validateExtent(limits.RMEM_SIZE, 0))
}

func TestReadPageWritePageRoundTrip(t *testing.T) {
	s := NewStore()
	n := s.Alloc()
	var page [limits.RMEM_BLOCK_SIZE]byte
	page[0] = 0xAB
	require.Equal(t, errs.SUCCESS, s.WritePage(n, page))

	var out [limits.RMEM_BLOCK_SIZE]byte
	require.Equal(t, errs.SUCCESS, s.ReadPage(n, &out))
	assert.Equal(t, page, out)
}

func TestReadPageRejectsFreePage(t *testing.T) {
	s := NewStore()
	var out [limits.RMEM_BLOCK_SIZE]byte
	assert.Equal(t, errs.EINVAL, s.ReadPage(PageNumber(3), &out))
}
