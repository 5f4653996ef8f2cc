package file

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/goose-filesys/alloc"
	"github.com/mit-pdos/goose-filesys/common"
	"github.com/mit-pdos/goose-filesys/disk"
	"github.com/mit-pdos/goose-filesys/inode"
)

func mkFile(t *testing.T, length uint64) (*inode.Itable, *File) {
	d := disk.NewMemDisk(1024)
	a := alloc.MkMaxAlloc(1024)
	it := inode.MkItable(d, a)
	s := a.AllocNum()
	require.True(t, it.Create(s, length, false))
	f := Open(it.Open(s))
	require.NotNil(t, f)
	return it, f
}

func TestReadWritePosition(t *testing.T) {
	assert := assert.New(t)
	_, f := mkFile(t, 0)
	defer f.Close()

	b := make([]byte, 700)
	rand.Read(b)
	assert.Equal(uint64(700), f.Write(b))
	assert.Equal(uint64(700), f.Tell())
	assert.Equal(uint64(700), f.Length())

	f.Seek(100)
	r := make([]byte, 1000)
	assert.Equal(uint64(600), f.Read(r))
	assert.Equal(b[100:], r[:600])
	assert.Equal(uint64(700), f.Tell())
	assert.Equal(uint64(0), f.Read(r), "at end of file")

	r2 := make([]byte, 50)
	assert.Equal(uint64(50), f.ReadAt(r2, 10))
	assert.Equal(b[10:60], r2)
	assert.Equal(uint64(700), f.Tell(), "ReadAt leaves the position alone")
}

func TestSeekPastEnd(t *testing.T) {
	assert := assert.New(t)
	_, f := mkFile(t, 10)
	defer f.Close()

	f.Seek(2000)
	assert.Equal(uint64(3), f.Write([]byte("end")))
	assert.Equal(uint64(2003), f.Length())
	r := make([]byte, 2003)
	assert.Equal(uint64(2003), f.ReadAt(r, 0))
	assert.Equal(make([]byte, 2000), r[:2000])
	assert.Equal([]byte("end"), r[2000:])
}

func TestWriteTooLarge(t *testing.T) {
	_, f := mkFile(t, 0)
	defer f.Close()
	f.Seek(common.MAXFILESZ - 1)
	assert.Equal(t, uint64(0), f.Write([]byte("ab")))
	assert.Equal(t, common.MAXFILESZ-1, f.Tell())
	assert.Equal(t, uint64(0), f.Length())
}

func TestDenyWrite(t *testing.T) {
	assert := assert.New(t)
	_, f := mkFile(t, 0)
	g := f.Reopen()

	f.DenyWrite()
	f.DenyWrite()
	assert.Equal(uint64(0), g.Write([]byte("x")))
	assert.Equal(uint64(0), f.WriteAt([]byte("x"), 0))

	f.AllowWrite()
	assert.Equal(uint64(1), g.Write([]byte("x")))

	f.DenyWrite()
	f.Close()
	assert.Equal(uint64(1), g.Write([]byte("y")), "close releases the hold")
	assert.Equal(uint64(2), g.Length())
	g.Close()
}

func TestCloseReleasesInode(t *testing.T) {
	it, f := mkFile(t, 100)
	g := f.Reopen()
	assert.Equal(t, uint64(2), f.Inode().OpenCount())
	assert.Nil(t, Open(nil))
	f.Close()
	assert.Equal(t, uint64(1), it.NOpen())
	g.Close()
	assert.Equal(t, uint64(0), it.NOpen())
}
