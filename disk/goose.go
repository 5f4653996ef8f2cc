package disk

import (
	"fmt"

	goosedisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/goose-filesys/lockmap"
)

// SectorsPerBlock is the number of sectors packed into one goose disk block.
const SectorsPerBlock uint64 = goosedisk.BlockSize / SectorSize

var _ Disk = (*gooseDisk)(nil)

// gooseDisk exposes a goose block disk as a sector device. A sector write
// is a read-modify-write of its block, so writers to the same block are
// serialized by a per-block lock.
type gooseDisk struct {
	d     goosedisk.Disk
	locks *lockmap.LockMap
}

func NewGooseDisk(d goosedisk.Disk) Disk {
	return &gooseDisk{
		d:     d,
		locks: lockmap.MkLockMap(),
	}
}

func (g *gooseDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != SectorSize {
		panic("buffer is not sector-sized")
	}
	bn := a / SectorsPerBlock
	if bn >= g.d.Size() {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	off := (a % SectorsPerBlock) * SectorSize
	g.locks.Acquire(bn)
	blk := g.d.Read(bn)
	g.locks.Release(bn)
	copy(buf, blk[off:off+SectorSize])
	return nil
}

func (g *gooseDisk) Read(a uint64) (Block, error) {
	buf := make(Block, SectorSize)
	err := g.ReadTo(a, buf)
	return buf, err
}

func (g *gooseDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != SectorSize {
		panic(fmt.Errorf("v is not sector-sized (%d bytes)", len(v)))
	}
	bn := a / SectorsPerBlock
	if bn >= g.d.Size() {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	off := (a % SectorsPerBlock) * SectorSize
	g.locks.Acquire(bn)
	blk := g.d.Read(bn)
	copy(blk[off:off+SectorSize], v)
	g.d.Write(bn, blk)
	g.locks.Release(bn)
	return nil
}

func (g *gooseDisk) Size() (uint64, error) {
	return g.d.Size() * SectorsPerBlock, nil
}

func (g *gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g *gooseDisk) Close() error {
	g.d.Close()
	return nil
}
