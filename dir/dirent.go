package dir

import (
	"bytes"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/goose-filesys/common"
)

// dirEnt is one directory entry record:
//
//	inuse u32 | sector u32 | name [DIRENTNAME]byte (NUL padded)
type dirEnt struct {
	inUse  bool
	sector common.Sector
	name   string
}

func encodeDirEnt(de *dirEnt) []byte {
	if uint64(len(de.name)) > common.NAMEMAX {
		panic("directory entry name too long")
	}
	enc := marshal.NewEnc(8)
	var inUse uint32
	if de.inUse {
		inUse = 1
	}
	enc.PutInt32(inUse)
	enc.PutInt32(uint32(de.sector))
	b := make([]byte, common.DIRENTSZ)
	copy(b, enc.Finish())
	copy(b[8:], de.name)
	return b
}

func decodeDirEnt(b []byte) *dirEnt {
	dec := marshal.NewDec(b)
	de := &dirEnt{}
	de.inUse = dec.GetInt32() != 0
	de.sector = common.Sector(dec.GetInt32())
	name := b[8 : 8+common.DIRENTNAME]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	de.name = string(name)
	return de
}
