// Package inode maps each file or directory onto sectors of the device.
//
// An inode is a one-sector descriptor plus a two-level index: the
// descriptor names a doubly-indirect block, whose slots name indirect
// blocks, whose slots name data sectors. Files grow on write; the index
// always covers exactly ceil(length/SECTORSZ) data sectors.
//
// Open inodes live in a cache owned by an Itable, one in-memory Inode per
// sector no matter how many handles refer to it. The last Close either
// writes the descriptor back or, for a removed inode, releases every sector
// the inode owns.
package inode

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/goose-filesys/buf"
	"github.com/mit-pdos/goose-filesys/common"
	"github.com/mit-pdos/goose-filesys/disk"
	"github.com/mit-pdos/goose-filesys/icache"
	"github.com/mit-pdos/goose-filesys/lockmap"
	"github.com/mit-pdos/goose-filesys/util"
)

// Allocator hands out and takes back single sectors. AllocNum returns
// NULLSECTOR when the device is full.
type Allocator interface {
	AllocNum() uint64
	FreeNum(num uint64)
}

// Itable owns the open-inode cache and the per-inode locks for one device.
type Itable struct {
	d      disk.Disk
	alloc  Allocator
	cache  *icache.Cache
	locks  *lockmap.LockMap // keyed by descriptor sector
	dlocks *lockmap.LockMap // keyed by data sector, held across each sector write
}

func MkItable(d disk.Disk, a Allocator) *Itable {
	return &Itable{
		d:      d,
		alloc:  a,
		cache:  icache.MkCache(),
		locks:  lockmap.MkLockMap(),
		dlocks: lockmap.MkLockMap(),
	}
}

func (it *Itable) readSector(s common.Sector) []byte {
	blk, err := it.d.Read(s)
	if err != nil {
		panic(fmt.Errorf("read sector %d: %v", s, err))
	}
	return blk
}

func (it *Itable) writeSector(s common.Sector, blk []byte) {
	if err := it.d.Write(s, blk); err != nil {
		panic(fmt.Errorf("write sector %d: %v", s, err))
	}
}

func (it *Itable) readIndex(s common.Sector) *indexBlock {
	return decodeIndex(it.readSector(s))
}

func (it *Itable) writeIndex(s common.Sector, ib *indexBlock) {
	it.writeSector(s, ib.encode())
}

// NOpen returns the number of distinct inodes currently open.
func (it *Itable) NOpen() uint64 {
	return it.cache.Len()
}

// Create writes a new inode of length zero-filled bytes to sector, which the
// caller has already allocated. Returns false if length is too large or the
// device runs out of space; in that case every sector allocated on the
// inode's behalf has been released again.
func (it *Itable) Create(sector common.Sector, length uint64, isdir bool) bool {
	if length > common.MAXFILESZ {
		return false
	}
	op := it.beginGrow(common.NULLSECTOR)
	if !op.allocDindirect() {
		return false
	}
	if !op.grow(0, util.RoundUp(length, common.SECTORSZ)) {
		op.abort()
		return false
	}
	op.commit()
	di := &dinode{
		length:    length,
		isdir:     isdir,
		parent:    common.ROOTSECTOR,
		dindirect: op.dindirect,
	}
	it.writeSector(sector, di.encode())
	util.DPrintf(1, "Create: inode %d %v\n", sector, di)
	return true
}

// Inode is the in-memory inode shared by every handle on one sector.
type Inode struct {
	it     *Itable
	sector common.Sector

	mu        *sync.Mutex // protects the fields below
	di        *dinode
	removed   bool
	denyWrite uint64
}

// Open returns the inode stored at sector, sharing the in-memory inode with
// any other opener. A sector that does not hold an inode descriptor is a
// corrupt file system and panics.
func (it *Itable) Open(sector common.Sector) *Inode {
	obj := it.cache.Acquire(sector, func() interface{} {
		ip := &Inode{
			it:     it,
			sector: sector,
			mu:     new(sync.Mutex),
		}
		di, ok := decodeDinode(it.readSector(sector))
		if ok {
			ip.di = di
		}
		return ip
	})
	ip := obj.(*Inode)
	if ip.di == nil {
		it.cache.Release(sector, func(interface{}) {})
		panic(fmt.Sprintf("inode %d: bad magic", sector))
	}
	util.DPrintf(5, "Open: inode %d\n", sector)
	return ip
}

// Reopen returns another handle on ip.
func (ip *Inode) Reopen() *Inode {
	ip.it.cache.Acquire(ip.sector, func() interface{} {
		panic("Reopen of closed inode")
	})
	return ip
}

// Close drops one handle. The last Close writes the descriptor back, or
// releases all of the inode's sectors if it was removed.
func (ip *Inode) Close() {
	ip.it.cache.Release(ip.sector, func(interface{}) {
		ip.mu.Lock()
		di := *ip.di
		removed := ip.removed
		ip.mu.Unlock()
		if removed {
			ip.it.deallocate(ip.sector, &di)
		} else {
			ip.it.writeSector(ip.sector, di.encode())
		}
	})
}

func (it *Itable) deallocate(sector common.Sector, di *dinode) {
	nsecs := util.RoundUp(di.length, common.SECTORSZ)
	dind := it.readIndex(di.dindirect)
	for i := uint64(0); i*common.NINDIRECT < nsecs; i++ {
		n := util.Min(common.NINDIRECT, nsecs-i*common.NINDIRECT)
		ind := it.readIndex(dind[i])
		for j := uint64(0); j < n; j++ {
			it.alloc.FreeNum(ind[j])
		}
		it.alloc.FreeNum(dind[i])
	}
	it.alloc.FreeNum(di.dindirect)
	it.alloc.FreeNum(sector)
	util.DPrintf(1, "deallocate: inode %d, %d data sectors\n", sector, nsecs)
}

// Remove marks ip for deletion once its last handle is closed.
func (ip *Inode) Remove() {
	ip.mu.Lock()
	ip.removed = true
	ip.mu.Unlock()
	util.DPrintf(1, "Remove: inode %d\n", ip.sector)
}

func (ip *Inode) IsRemoved() bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.removed
}

// Inumber returns the sector holding ip's descriptor.
func (ip *Inode) Inumber() common.Sector {
	return ip.sector
}

func (ip *Inode) Table() *Itable {
	return ip.it
}

func (ip *Inode) Length() uint64 {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.di.length
}

func (ip *Inode) IsDir() bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.di.isdir
}

func (ip *Inode) Parent() common.Sector {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.di.parent
}

// SetParent records the directory containing ip and writes the descriptor.
func (ip *Inode) SetParent(parent common.Sector) {
	ip.mu.Lock()
	ip.di.parent = parent
	di := *ip.di
	ip.mu.Unlock()
	ip.it.writeSector(ip.sector, di.encode())
}

// OpenCount returns the number of live handles on ip.
func (ip *Inode) OpenCount() uint64 {
	return ip.it.cache.Ref(ip.sector)
}

// Lock acquires ip's structural lock, which serializes growth of ip and,
// for directories, changes to its entries.
func (ip *Inode) Lock() {
	ip.it.locks.Acquire(ip.sector)
}

func (ip *Inode) Unlock() {
	ip.it.locks.Release(ip.sector)
}

// DenyWrite forbids writes to ip until a matching AllowWrite. At most one
// DenyWrite per handle.
func (ip *Inode) DenyWrite() {
	ip.mu.Lock()
	ip.denyWrite += 1
	n := ip.denyWrite
	ip.mu.Unlock()
	util.Assert(n <= ip.OpenCount(), "inode %d: %d write denials, %d openers",
		ip.sector, n, ip.OpenCount())
}

func (ip *Inode) AllowWrite() {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	util.Assert(ip.denyWrite > 0, "inode %d: AllowWrite without DenyWrite", ip.sector)
	ip.denyWrite -= 1
}

// ReadAt reads up to len(b) bytes starting at off and returns the number
// read, which is short only at end of file.
func (ip *Inode) ReadAt(b []byte, off uint64) uint64 {
	ip.mu.Lock()
	length := ip.di.length
	dindirect := ip.di.dindirect
	ip.mu.Unlock()
	if off >= length {
		return 0
	}
	count := util.Min(uint64(len(b)), length-off)
	m := ip.it.mkMapper(dindirect)
	var n uint64
	for n < count {
		pos := off + n
		soff := pos % common.SECTORSZ
		chunk := util.Min(common.SECTORSZ-soff, count-n)
		blk := ip.it.readSector(m.bmap(pos))
		copy(b[n:n+chunk], blk[soff:soff+chunk])
		n += chunk
	}
	util.DPrintf(10, "ReadAt: inode %d off %d -> %d\n", ip.sector, off, n)
	return n
}

// WriteAt writes b at off, growing ip first if the write ends past its
// length. Returns the number of bytes written: len(b), or 0 if writes are
// denied, the write would exceed MAXFILESZ, or the device is full.
func (ip *Inode) WriteAt(b []byte, off uint64) uint64 {
	return ip.writeAt(b, off, false)
}

// WriteAtLocked is WriteAt for a caller that already holds ip's lock.
func (ip *Inode) WriteAtLocked(b []byte, off uint64) uint64 {
	util.Assert(ip.it.locks.Held(ip.sector), "inode %d: WriteAtLocked without lock", ip.sector)
	return ip.writeAt(b, off, true)
}

func (ip *Inode) writeDenied() bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.denyWrite > 0
}

func (ip *Inode) writeAt(b []byte, off uint64, locked bool) uint64 {
	size := uint64(len(b))
	if size == 0 {
		return 0
	}
	if util.SumOverflows(off, size) || off+size > common.MAXFILESZ {
		return 0
	}
	if ip.writeDenied() {
		util.DPrintf(5, "WriteAt: inode %d write denied\n", ip.sector)
		return 0
	}
	ip.mu.Lock()
	length := ip.di.length
	dindirect := ip.di.dindirect
	ip.mu.Unlock()
	end := off + size
	if end > length {
		if !locked {
			ip.Lock()
		}
		// a DenyWrite may have landed while this writer waited for the lock
		ok := !ip.writeDenied() && ip.extend(end)
		if !locked {
			ip.Unlock()
		}
		if !ok {
			return 0
		}
	}
	m := ip.it.mkMapper(dindirect)
	var n uint64
	for n < size {
		pos := off + n
		soff := pos % common.SECTORSZ
		chunk := util.Min(common.SECTORSZ-soff, size-n)
		ip.it.writeData(m.bmap(pos), soff, b[n:n+chunk])
		n += chunk
	}
	util.DPrintf(10, "WriteAt: inode %d off %d -> %d\n", ip.sector, off, n)
	return n
}

// writeData stores data at byte soff of data sector s. A partial sector is
// read, patched and written back under s's lock, so writers of disjoint
// ranges of one sector do not lose each other's bytes.
func (it *Itable) writeData(s common.Sector, soff uint64, data []byte) {
	it.dlocks.Acquire(s)
	if uint64(len(data)) == common.SECTORSZ {
		it.writeSector(s, data)
	} else {
		sbuf := buf.MkBufLoad(it.d, s)
		sbuf.Install(soff, data)
		sbuf.WriteDirect(it.d)
	}
	it.dlocks.Release(s)
}

// extend grows ip to newlen bytes. Caller holds ip's lock. The length is
// re-checked under the lock: of several writers racing to extend to the
// same length only the first allocates anything.
func (ip *Inode) extend(newlen uint64) bool {
	ip.mu.Lock()
	length := ip.di.length
	dindirect := ip.di.dindirect
	ip.mu.Unlock()
	if length >= newlen {
		return true
	}
	op := ip.it.beginGrow(dindirect)
	oldsecs := util.RoundUp(length, common.SECTORSZ)
	newsecs := util.RoundUp(newlen, common.SECTORSZ)
	if !op.grow(oldsecs, newsecs) {
		op.abort()
		return false
	}
	op.commit()

	ip.mu.Lock()
	ip.di.length = newlen
	di := *ip.di
	ip.mu.Unlock()
	ip.it.writeSector(ip.sector, di.encode())
	util.DPrintf(5, "extend: inode %d %d -> %d bytes\n", ip.sector, length, newlen)
	return true
}
