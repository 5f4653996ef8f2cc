package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/goose-filesys/common"
)

// dinode is the on-disk inode descriptor. It occupies one sector:
//
//	length u64 | magic u32 | isdir u32 | parent u32 | dindirect u32 | zeros
type dinode struct {
	length    uint64
	isdir     bool
	parent    common.Sector
	dindirect common.Sector
}

func (di *dinode) String() string {
	return fmt.Sprintf("len %d dir %v parent %d dind %d", di.length, di.isdir,
		di.parent, di.dindirect)
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (di *dinode) encode() []byte {
	enc := marshal.NewEnc(common.SECTORSZ)
	enc.PutInt(di.length)
	enc.PutInt32(common.INODEMAGIC)
	enc.PutInt32(boolToU32(di.isdir))
	enc.PutInt32(uint32(di.parent))
	enc.PutInt32(uint32(di.dindirect))
	blk := make([]byte, common.SECTORSZ)
	copy(blk, enc.Finish())
	return blk
}

// decodeDinode returns false if blk does not carry the inode magic.
func decodeDinode(blk []byte) (*dinode, bool) {
	dec := marshal.NewDec(blk)
	di := &dinode{}
	di.length = dec.GetInt()
	magic := dec.GetInt32()
	di.isdir = dec.GetInt32() != 0
	di.parent = common.Sector(dec.GetInt32())
	di.dindirect = common.Sector(dec.GetInt32())
	if magic != common.INODEMAGIC {
		return nil, false
	}
	return di, true
}
