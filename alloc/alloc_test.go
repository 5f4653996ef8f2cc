package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/goose-filesys/disk"
)

func TestPopCnt(t *testing.T) {
	assert.Equal(t, uint64(0), popCnt(0))
	assert.Equal(t, uint64(1), popCnt(1))
	assert.Equal(t, uint64(1), popCnt(2))
	assert.Equal(t, uint64(2), popCnt(3))
	assert.Equal(t, uint64(8), popCnt(255))
}

func TestAlloc(t *testing.T) {
	assert := assert.New(t)
	max := uint64(32)
	a := MkMaxAlloc(max)

	assert.Equal(max-1, a.NumFree(), "everything (but 0) should be initially free")

	n := a.AllocNum()
	assert.NotEqual(uint64(0), n, "should not allocate 0")

	a.MarkUsed(n + 1)
	n2 := a.AllocNum()
	assert.NotEqual(n+1, n2, "should not allocate something marked used")

	assert.Equal(max-4, a.NumFree(), "should have used 4 items")

	a.FreeNum(n)
	a.FreeNum(n2)
	assert.Equal(max-2, a.NumFree(), "should have freed")
}

func TestAllocExhaustion(t *testing.T) {
	assert := assert.New(t)
	a := MkMaxAlloc(16)
	seen := make(map[uint64]bool)
	for i := 0; i < 15; i++ {
		n := a.AllocNum()
		assert.NotEqual(uint64(0), n)
		assert.False(seen[n], "duplicate allocation of %d", n)
		seen[n] = true
	}
	assert.Equal(uint64(0), a.AllocNum(), "full allocator returns 0")
	a.FreeNum(7)
	assert.Equal(uint64(7), a.AllocNum(), "freed number is reused")
}

func TestFreeNumPanics(t *testing.T) {
	a := MkMaxAlloc(16)
	assert.Panics(t, func() { a.FreeNum(0) })
	assert.Panics(t, func() { a.FreeNum(3) }, "double free")
	assert.Panics(t, func() { a.FreeNum(16) }, "out of range")
}

func TestFlushLoad(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(8)
	nunits := NBITSECTOR + 100
	a := MkMaxAlloc(NBITSECTOR * 2)
	for u := nunits; u < NBITSECTOR*2; u++ {
		a.MarkUsed(u)
	}
	var nums []uint64
	for i := 0; i < 10; i++ {
		nums = append(nums, a.AllocNum())
	}
	a.Flush(d, 2)

	a2 := Load(d, 2, nunits)
	assert.Equal(a.NumFree(), a2.NumFree())
	for _, n := range nums {
		assert.Panics(func() { a2.MarkUsed(nunits + 1000) })
		a2.FreeNum(n)
	}
	assert.Equal(nunits-1, a2.NumFree())
}
