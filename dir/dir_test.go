package dir

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/goose-filesys/alloc"
	"github.com/mit-pdos/goose-filesys/common"
	"github.com/mit-pdos/goose-filesys/disk"
	"github.com/mit-pdos/goose-filesys/inode"
)

type testFs struct {
	a  *alloc.Alloc
	it *inode.Itable
}

func mkTestFs(t *testing.T) *testFs {
	d := disk.NewMemDisk(2048)
	a := alloc.MkMaxAlloc(2048)
	it := inode.MkItable(d, a)
	require.True(t, Create(it, common.ROOTSECTOR, common.ROOTDIRENTS))
	root := OpenRoot(it)
	require.NotNil(t, root)
	require.True(t, root.Add(".", common.ROOTSECTOR))
	require.True(t, root.Add("..", common.ROOTSECTOR))
	root.Close()
	return &testFs{a: a, it: it}
}

func (fs *testFs) mkfile(t *testing.T, length uint64) common.Sector {
	s := fs.a.AllocNum()
	require.True(t, fs.it.Create(s, length, false))
	return s
}

func (fs *testFs) mkdir(t *testing.T, parent *Dir, name string) common.Sector {
	s := fs.a.AllocNum()
	require.True(t, Create(fs.it, s, 2))
	d := Open(fs.it.Open(s))
	require.True(t, d.Add(".", s))
	require.True(t, d.Add("..", parent.Inode().Inumber()))
	d.Inode().SetParent(parent.Inode().Inumber())
	d.Close()
	require.True(t, parent.Add(name, s))
	return s
}

// readAll lists d through a fresh handle.
func readAll(d *Dir) []string {
	d = d.Reopen()
	defer d.Close()
	var names []string
	for {
		name, ok := d.Readdir()
		if !ok {
			break
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestDirEntEncoding(t *testing.T) {
	de := &dirEnt{inUse: true, sector: 77, name: "abcdefghijklmn"}
	b := encodeDirEnt(de)
	assert.Equal(t, common.DIRENTSZ, uint64(len(b)))
	assert.Equal(t, de, decodeDirEnt(b))
	assert.Equal(t, byte(0), b[8+common.NAMEMAX], "name is NUL terminated")

	free := decodeDirEnt(make([]byte, common.DIRENTSZ))
	assert.False(t, free.inUse)
	assert.Equal(t, "", free.name)
}

func TestOpenNotDir(t *testing.T) {
	fs := mkTestFs(t)
	s := fs.mkfile(t, 10)
	assert.Nil(t, Open(fs.it.Open(s)))
	assert.Nil(t, Open(nil))
	assert.Equal(t, uint64(0), fs.it.NOpen())
}

func TestAddLookup(t *testing.T) {
	fs := mkTestFs(t)
	root := OpenRoot(fs.it)
	defer root.Close()

	s := fs.mkfile(t, 0)
	assert.True(t, root.Add("hello", s))
	got, ok := root.Lookup("hello")
	assert.True(t, ok)
	assert.Equal(t, s, got)

	_, ok = root.Lookup("nope")
	assert.False(t, ok)

	got, ok = root.Lookup("/")
	assert.True(t, ok)
	assert.Equal(t, common.ROOTSECTOR, got)
	got, ok = root.Lookup("..")
	assert.True(t, ok)
	assert.Equal(t, common.ROOTSECTOR, got)

	assert.False(t, root.Add("hello", s), "duplicate")
	assert.False(t, root.Add("", s))
	assert.False(t, root.Add("a/b", s))
	assert.False(t, root.Add("abcdefghijklmno", s), "15 characters")
	assert.True(t, root.Add("abcdefghijklmn", s), "14 characters")
}

func TestAddGrows(t *testing.T) {
	fs := mkTestFs(t)
	root := OpenRoot(fs.it)
	defer root.Close()

	n := 3 * common.ROOTDIRENTS
	for i := uint64(0); i < n; i++ {
		require.True(t, root.Add(fmt.Sprintf("f%d", i), fs.mkfile(t, 0)))
	}
	assert.Equal(t, (n+2)*common.DIRENTSZ, root.Inode().Length())
	assert.Equal(t, int(n), len(readAll(root)))
}

func TestRemoveReusesSlot(t *testing.T) {
	fs := mkTestFs(t)
	root := OpenRoot(fs.it)
	defer root.Close()

	for i := uint64(0); i < common.ROOTDIRENTS-2; i++ {
		require.True(t, root.Add(fmt.Sprintf("f%d", i), fs.mkfile(t, 0)))
	}
	length := root.Inode().Length()
	assert.True(t, root.Remove("f3"))
	_, ok := root.Lookup("f3")
	assert.False(t, ok)
	assert.False(t, root.Remove("f3"))

	assert.True(t, root.Add("g", fs.mkfile(t, 0)))
	assert.Equal(t, length, root.Inode().Length())
}

func TestRemoveFreesOnClose(t *testing.T) {
	fs := mkTestFs(t)
	root := OpenRoot(fs.it)
	defer root.Close()

	free := fs.a.NumFree()
	s := fs.mkfile(t, 5000)
	require.True(t, root.Add("f", s))
	ip := root.LookupInode("f")
	require.NotNil(t, ip)

	assert.True(t, root.Remove("f"))
	assert.True(t, ip.IsRemoved())
	assert.Less(t, fs.a.NumFree(), free)
	ip.Close()
	assert.Equal(t, free, fs.a.NumFree())
}

func TestRemoveDir(t *testing.T) {
	fs := mkTestFs(t)
	root := OpenRoot(fs.it)
	defer root.Close()

	s := fs.mkdir(t, root, "a")
	a := Open(root.LookupInode("a"))
	require.NotNil(t, a)
	assert.Equal(t, common.ROOTSECTOR, a.Inode().Parent())
	require.True(t, a.Add("x", fs.mkfile(t, 0)))

	assert.False(t, root.Remove("a"), "open and not empty")
	a.Close()
	assert.False(t, root.Remove("a"), "not empty")

	a = Open(fs.it.Open(s))
	assert.False(t, a.Remove("."))
	assert.False(t, a.Remove(".."))
	assert.True(t, a.Remove("x"))
	assert.True(t, IsEmpty(a.Inode()))
	assert.False(t, root.Remove("a"), "still open")
	a.Close()

	assert.True(t, root.Remove("a"))
	_, ok := root.Lookup("a")
	assert.False(t, ok)
}

func TestAddToRemovedDir(t *testing.T) {
	fs := mkTestFs(t)
	root := OpenRoot(fs.it)
	defer root.Close()

	s := fs.mkdir(t, root, "a")
	require.True(t, root.Remove("a"))
	// the directory is gone; only inodes still open would keep it alive
	assert.Equal(t, uint64(1), fs.it.NOpen())

	s2 := fs.mkdir(t, root, "b")
	b := Open(fs.it.Open(s2))
	b.Inode().Remove()
	assert.False(t, b.Add("x", s))
	b.Close()
}

func TestReaddir(t *testing.T) {
	fs := mkTestFs(t)
	root := OpenRoot(fs.it)
	defer root.Close()

	assert.Empty(t, readAll(root))
	for _, n := range []string{"c", "a", "b"} {
		require.True(t, root.Add(n, fs.mkfile(t, 0)))
	}
	require.True(t, root.Remove("b"))

	assert.Equal(t, []string{"a", "c"}, readAll(root))

	d := root.Reopen()
	defer d.Close()
	n1, _ := d.Readdir()
	n2, _ := d.Readdir()
	assert.Equal(t, []string{"c", "a"}, []string{n1, n2}, "slot order")
	_, ok := d.Readdir()
	assert.False(t, ok)
	_, ok = d.Readdir()
	assert.False(t, ok, "cursor does not rewind")
}

func TestConcurrentAdd(t *testing.T) {
	fs := mkTestFs(t)
	root := OpenRoot(fs.it)
	defer root.Close()

	const nthread = 8
	const per = 10
	var wg sync.WaitGroup
	for i := 0; i < nthread; i++ {
		s := make([]common.Sector, per)
		for j := range s {
			s[j] = fs.mkfile(t, 0)
		}
		wg.Add(1)
		go func(i int, s []common.Sector) {
			defer wg.Done()
			d := root.Reopen()
			defer d.Close()
			for j := 0; j < per; j++ {
				name := fmt.Sprintf("t%d-%d", i, j)
				assert.True(t, d.Add(name, s[j]))
				// everyone races for the same name; exactly one wins
				d.Add("shared", s[j])
			}
		}(i, s)
	}
	wg.Wait()

	names := readAll(root)
	assert.Equal(t, nthread*per+1, len(names))
	for i := 0; i < nthread; i++ {
		for j := 0; j < per; j++ {
			_, ok := root.Lookup(fmt.Sprintf("t%d-%d", i, j))
			assert.True(t, ok)
		}
	}
}
