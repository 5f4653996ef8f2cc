package inode

import (
	"github.com/mit-pdos/goose-filesys/buf"
	"github.com/mit-pdos/goose-filesys/common"
	"github.com/mit-pdos/goose-filesys/util"
)

// A growOp allocates the index and data sectors needed to grow one inode.
//
// Index blocks touched by the operation are buffered and written back once
// each by commit. Every sector handed out by the allocator is recorded, so
// that abort can return all of them when the operation cannot complete; a
// failed create or extension leaves the free map as it found it.
type growOp struct {
	it        *Itable
	dindirect common.Sector
	allocated []common.Sector
	index     map[common.Sector]*indexBlock
	dirty     []common.Sector // index blocks to write, in first-touch order
}

func (it *Itable) beginGrow(dindirect common.Sector) *growOp {
	return &growOp{
		it:        it,
		dindirect: dindirect,
		allocated: make([]common.Sector, 0),
		index:     make(map[common.Sector]*indexBlock),
		dirty:     make([]common.Sector, 0),
	}
}

func (op *growOp) allocSector() (common.Sector, bool) {
	s := op.it.alloc.AllocNum()
	if s == common.NULLSECTOR {
		util.DPrintf(1, "growOp: out of sectors after %d\n", len(op.allocated))
		return s, false
	}
	op.allocated = append(op.allocated, s)
	return s, true
}

func (op *growOp) getIndex(s common.Sector) *indexBlock {
	ib, ok := op.index[s]
	if !ok {
		ib = op.it.readIndex(s)
		op.index[s] = ib
	}
	return ib
}

// newIndex starts a fresh, all-empty index block at s.
func (op *growOp) newIndex(s common.Sector) *indexBlock {
	ib := new(indexBlock)
	op.index[s] = ib
	op.markDirty(s)
	return ib
}

func (op *growOp) markDirty(s common.Sector) {
	for _, d := range op.dirty {
		if d == s {
			return
		}
	}
	op.dirty = append(op.dirty, s)
}

// allocDindirect allocates the doubly-indirect block of a new inode.
func (op *growOp) allocDindirect() bool {
	s, ok := op.allocSector()
	if !ok {
		return false
	}
	op.dindirect = s
	op.newIndex(s)
	return true
}

// grow maps data sectors [oldsecs, newsecs) of the file. A partially filled
// last indirect block is topped up first; whenever a sector number lands on
// an indirect-block boundary a new indirect block is allocated. Every new
// data sector is zero-filled.
func (op *growOp) grow(oldsecs uint64, newsecs uint64) bool {
	if newsecs > common.MAXSECTORS {
		return false
	}
	dind := op.getIndex(op.dindirect)
	for sn := oldsecs; sn < newsecs; sn++ {
		i, j := indexPos(sn)
		if j == 0 {
			ind, ok := op.allocSector()
			if !ok {
				return false
			}
			op.newIndex(ind)
			dind[i] = ind
			op.markDirty(op.dindirect)
		}
		ind := dind[i]
		data, ok := op.allocSector()
		if !ok {
			return false
		}
		buf.MkBuf(data).WriteDirect(op.it.d)
		op.getIndex(ind)[j] = data
		op.markDirty(ind)
	}
	util.DPrintf(10, "grow: sectors %d -> %d, %d allocated\n", oldsecs, newsecs,
		len(op.allocated))
	return true
}

// commit writes back every touched index block.
func (op *growOp) commit() {
	for _, s := range op.dirty {
		op.it.writeIndex(s, op.index[s])
	}
}

// abort releases every sector allocated by the operation. Nothing the
// operation buffered has reached the disk, so the index is unchanged.
func (op *growOp) abort() {
	for i := len(op.allocated) - 1; i >= 0; i-- {
		op.it.alloc.FreeNum(op.allocated[i])
	}
	util.DPrintf(5, "growOp: abort, released %d sectors\n", len(op.allocated))
	op.allocated = op.allocated[:0]
}
