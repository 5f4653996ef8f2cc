// Package alloc is the free-space allocator: a bitmap with one bit per
// sector of the device. The bitmap lives in memory while the file system
// is mounted and is persisted as consecutive sectors of the device by
// Flush.
package alloc

import (
	"sync"

	"github.com/mit-pdos/goose-filesys/disk"
	"github.com/mit-pdos/goose-filesys/util"
)

const (
	NBITSECTOR uint64 = disk.SectorSize * 8
)

// Alloc uses a bit map to allocate and free numbers. Bit 0 corresponds to
// number 0, bit 1 to 1, and so on. Number 0 is never handed out, so
// AllocNum can use it to report exhaustion.
type Alloc struct {
	mu     *sync.Mutex // protects next and bitmap
	next   uint64      // first number to try
	bitmap []byte
}

// MkAlloc creates an allocator over an existing bitmap. Number 0 is marked
// used regardless of its bit.
func MkAlloc(bitmap []byte) *Alloc {
	if len(bitmap) == 0 {
		panic("MkAlloc: empty bitmap")
	}
	a := &Alloc{
		mu:     new(sync.Mutex),
		next:   0,
		bitmap: bitmap,
	}
	a.bitmap[0] |= 1
	return a
}

// MkMaxAlloc creates an allocator for the numbers [0, max), all free but 0.
func MkMaxAlloc(max uint64) *Alloc {
	if max == 0 || max%8 != 0 {
		panic("MkMaxAlloc: max must be a positive multiple of 8")
	}
	return MkAlloc(make([]byte, max/8))
}

func (a *Alloc) max() uint64 {
	return uint64(len(a.bitmap)) * 8
}

func (a *Alloc) incNext() uint64 {
	a.next = a.next + 1
	if a.next >= a.max() {
		a.next = 0
	}
	return a.next
}

func (a *Alloc) isUsed(num uint64) bool {
	return a.bitmap[num/8]&(1<<(num%8)) != 0
}

// Returns a free number and marks it used, or 0 if there is none.
// Assumes caller holds a.mu.
func (a *Alloc) allocBit() uint64 {
	start := a.incNext()
	num := start
	for {
		if !a.isUsed(num) {
			a.bitmap[num/8] |= 1 << (num % 8)
			return num
		}
		num = a.incNext()
		if num == start {
			return 0
		}
	}
}

// AllocNum returns a free number, or 0 if everything is in use.
func (a *Alloc) AllocNum() uint64 {
	a.mu.Lock()
	num := a.allocBit()
	a.mu.Unlock()
	util.DPrintf(15, "AllocNum -> %d\n", num)
	return num
}

// FreeNum returns num to the free pool. Freeing 0, an out-of-range number,
// or a number that is already free is a bug in the caller.
func (a *Alloc) FreeNum(num uint64) {
	if num == 0 {
		panic("FreeNum")
	}
	a.mu.Lock()
	if num >= a.max() || !a.isUsed(num) {
		a.mu.Unlock()
		panic("FreeNum: not allocated")
	}
	a.bitmap[num/8] &= ^(1 << (num % 8))
	a.mu.Unlock()
	util.DPrintf(15, "FreeNum %d\n", num)
}

// MarkUsed reserves num without going through AllocNum (e.g., for the
// sectors holding the bitmap itself).
func (a *Alloc) MarkUsed(num uint64) {
	a.mu.Lock()
	if num >= a.max() {
		a.mu.Unlock()
		panic("MarkUsed: out of range")
	}
	a.bitmap[num/8] |= 1 << (num % 8)
	a.mu.Unlock()
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumFree returns the number of free numbers.
func (a *Alloc) NumFree() uint64 {
	a.mu.Lock()
	var count uint64
	for _, b := range a.bitmap {
		count += popCnt(b)
	}
	free := a.max() - count
	a.mu.Unlock()
	return free
}

// Bitmap returns a copy of the current bitmap.
func (a *Alloc) Bitmap() []byte {
	a.mu.Lock()
	b := util.CloneByteSlice(a.bitmap)
	a.mu.Unlock()
	return b
}

// NSectors is the number of sectors needed to store a bitmap of nunits bits.
func NSectors(nunits uint64) uint64 {
	return util.RoundUp(nunits, NBITSECTOR)
}

// Load reads a bitmap of nunits bits stored at sectors [start,
// start+NSectors(nunits)) and returns an allocator over it.
func Load(d disk.Disk, start uint64, nunits uint64) *Alloc {
	n := NSectors(nunits)
	bitmap := make([]byte, 0, n*disk.SectorSize)
	for i := uint64(0); i < n; i++ {
		blk, err := d.Read(start + i)
		if err != nil {
			panic(err)
		}
		bitmap = append(bitmap, blk...)
	}
	// units past the end of the device are never free
	bitmap = bitmap[:util.RoundUp(nunits, 8)]
	for u := nunits; u < uint64(len(bitmap))*8; u++ {
		bitmap[u/8] |= 1 << (u % 8)
	}
	util.DPrintf(1, "alloc.Load: %d units from sector %d\n", nunits, start)
	return MkAlloc(bitmap)
}

// Flush writes the bitmap to the sectors starting at start.
func (a *Alloc) Flush(d disk.Disk, start uint64) {
	bitmap := a.Bitmap()
	n := NSectors(uint64(len(bitmap)) * 8)
	for i := uint64(0); i < n; i++ {
		blk := make([]byte, disk.SectorSize)
		lo := i * disk.SectorSize
		hi := util.Min(lo+disk.SectorSize, uint64(len(bitmap)))
		copy(blk, bitmap[lo:hi])
		if err := d.Write(start+i, blk); err != nil {
			panic(err)
		}
	}
	util.DPrintf(1, "alloc.Flush: %d sectors at %d\n", n, start)
}
