package inode

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/goose-filesys/common"
)

// An indexBlock is the decoded content of an indirect block (data sector
// ids) or of the doubly-indirect block (indirect block ids). Unused slots
// are NULLSECTOR.
type indexBlock [common.NINDIRECT]common.Sector

func decodeIndex(blk []byte) *indexBlock {
	ib := new(indexBlock)
	dec := marshal.NewDec(blk)
	for i := uint64(0); i < common.NINDIRECT; i++ {
		ib[i] = common.Sector(dec.GetInt32())
	}
	return ib
}

func (ib *indexBlock) encode() []byte {
	enc := marshal.NewEnc(common.SECTORSZ)
	for i := uint64(0); i < common.NINDIRECT; i++ {
		enc.PutInt32(uint32(ib[i]))
	}
	blk := make([]byte, common.SECTORSZ)
	copy(blk, enc.Finish())
	return blk
}

// indexPos splits the sector number sn of a file into its slot in the
// doubly-indirect block and its slot in that indirect block.
func indexPos(sn uint64) (uint64, uint64) {
	return sn / common.NINDIRECT, sn % common.NINDIRECT
}

// A mapper translates file offsets to data sectors, caching the
// doubly-indirect block and the most recently used indirect block. A mapper
// must only be asked for offsets below a length observed before it was
// created.
type mapper struct {
	it        *Itable
	dindirect common.Sector
	dind      *indexBlock
	indSector common.Sector
	ind       *indexBlock
}

func (it *Itable) mkMapper(dindirect common.Sector) *mapper {
	return &mapper{it: it, dindirect: dindirect}
}

// bmap returns the data sector holding byte pos.
func (m *mapper) bmap(pos uint64) common.Sector {
	i, j := indexPos(pos / common.SECTORSZ)
	if m.dind == nil {
		m.dind = m.it.readIndex(m.dindirect)
	}
	s := m.dind[i]
	if s == common.NULLSECTOR {
		panic("bmap: missing indirect block")
	}
	if m.ind == nil || m.indSector != s {
		m.ind = m.it.readIndex(s)
		m.indSector = s
	}
	blkno := m.ind[j]
	if blkno == common.NULLSECTOR {
		panic("bmap: missing data sector")
	}
	return blkno
}
