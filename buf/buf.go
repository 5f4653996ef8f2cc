// buf holds one sector in memory for partial-sector updates.
package buf

import (
	"github.com/mit-pdos/goose-filesys/common"
	"github.com/mit-pdos/goose-filesys/disk"
	"github.com/mit-pdos/goose-filesys/util"
)

// A Buf is the in-memory copy of one sector (a data sector or an index
// block) together with whether it has been modified since it was loaded.
type Buf struct {
	Sector common.Sector
	Data   []byte
	dirty  bool // has this sector been written to?
}

// MkBuf makes a zero-filled buf for sector s, for sectors that are about
// to be overwritten entirely (e.g., freshly allocated ones).
func MkBuf(s common.Sector) *Buf {
	return &Buf{
		Sector: s,
		Data:   make([]byte, disk.SectorSize),
		dirty:  true,
	}
}

// MkBufLoad reads sector s from d into a new buf.
func MkBufLoad(d disk.Disk, s common.Sector) *Buf {
	blk, err := d.Read(s)
	if err != nil {
		panic(err)
	}
	return &Buf{
		Sector: s,
		Data:   blk,
		dirty:  false,
	}
}

// Install copies src into the buf at byte offset off and marks it dirty.
func (buf *Buf) Install(off uint64, src []byte) {
	if off+uint64(len(src)) > disk.SectorSize {
		panic("Install: past end of sector")
	}
	copy(buf.Data[off:], src)
	buf.SetDirty()
	util.DPrintf(20, "%d: install %d bytes at %d\n", buf.Sector, len(src), off)
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

// WriteDirect writes the buf to its sector if it is dirty.
func (buf *Buf) WriteDirect(d disk.Disk) {
	if !buf.dirty {
		return
	}
	if err := d.Write(buf.Sector, buf.Data); err != nil {
		panic(err)
	}
	buf.dirty = false
}
