// Package filesys puts a directory tree on a block device: it formats and
// mounts the device, resolves paths, and implements the path-based
// operations (create, mkdir, open, remove, chdir).
//
// The on-disk layout is the root directory's descriptor at ROOTSECTOR, the
// free map in the sectors following FREEMAPSTART, and everything else
// allocated on demand. There is no superblock; the device size determines
// the size of the free map.
package filesys

import (
	"fmt"

	"github.com/mit-pdos/goose-filesys/alloc"
	"github.com/mit-pdos/goose-filesys/common"
	"github.com/mit-pdos/goose-filesys/dir"
	"github.com/mit-pdos/goose-filesys/disk"
	"github.com/mit-pdos/goose-filesys/file"
	"github.com/mit-pdos/goose-filesys/inode"
	"github.com/mit-pdos/goose-filesys/util"
)

type Filesys struct {
	d        disk.Disk
	nsectors uint64
	alloc    *alloc.Alloc
	it       *inode.Itable
}

func deviceSize(d disk.Disk) uint64 {
	sz, err := d.Size()
	if err != nil {
		panic(fmt.Errorf("device size: %v", err))
	}
	return sz
}

func mkFilesys(d disk.Disk, nsectors uint64, a *alloc.Alloc) *Filesys {
	return &Filesys{
		d:        d,
		nsectors: nsectors,
		alloc:    a,
		it:       inode.MkItable(d, a),
	}
}

// Format writes an empty file system to d: a free map covering the whole
// device and a root directory holding only "." and "..", both naming the
// root itself.
func Format(d disk.Disk) *Filesys {
	nsectors := deviceSize(d)
	nmap := alloc.NSectors(nsectors)
	if nsectors <= common.FREEMAPSTART+nmap {
		panic(fmt.Sprintf("Format: device of %d sectors is too small", nsectors))
	}
	a := alloc.MkAlloc(make([]byte, util.RoundUp(nsectors, 8)))
	for u := nsectors; u < util.RoundUp(nsectors, 8)*8; u++ {
		a.MarkUsed(u)
	}
	for s := common.FREEMAPSTART; s < common.FREEMAPSTART+nmap; s++ {
		a.MarkUsed(s)
	}
	fs := mkFilesys(d, nsectors, a)

	if !dir.Create(fs.it, common.ROOTSECTOR, common.ROOTDIRENTS) {
		panic("Format: cannot create root directory")
	}
	root := fs.OpenRoot()
	if !root.Add(".", common.ROOTSECTOR) || !root.Add("..", common.ROOTSECTOR) {
		panic("Format: cannot populate root directory")
	}
	root.Close()

	fs.flush()
	util.DPrintf(1, "Format: %d sectors, free map %d sectors, %d free\n",
		nsectors, nmap, a.NumFree())
	return fs
}

// Mount opens a file system previously written by Format. A device whose
// root sector does not hold a directory is corrupt and panics.
func Mount(d disk.Disk) *Filesys {
	nsectors := deviceSize(d)
	a := alloc.Load(d, common.FREEMAPSTART, nsectors)
	fs := mkFilesys(d, nsectors, a)
	root := fs.it.Open(common.ROOTSECTOR)
	isdir := root.IsDir()
	root.Close()
	if !isdir {
		panic("Mount: root is not a directory")
	}
	util.DPrintf(1, "Mount: %d sectors, %d free\n", nsectors, a.NumFree())
	return fs
}

func (fs *Filesys) flush() {
	fs.alloc.Flush(fs.d, common.FREEMAPSTART)
	if err := fs.d.Barrier(); err != nil {
		panic(fmt.Errorf("barrier: %v", err))
	}
}

// Shutdown writes the free map back to the device. Handles still open are
// not flushed; callers close them first.
func (fs *Filesys) Shutdown() {
	if n := fs.it.NOpen(); n > 0 {
		util.DPrintf(1, "Shutdown: %d inodes still open\n", n)
	}
	fs.flush()
}

func (fs *Filesys) OpenRoot() *dir.Dir {
	return dir.OpenRoot(fs.it)
}

func (fs *Filesys) NumFree() uint64 {
	return fs.alloc.NumFree()
}

// NOpen is the number of distinct inodes with live handles.
func (fs *Filesys) NOpen() uint64 {
	return fs.it.NOpen()
}

// Create makes a regular file of size zero bytes at path. Fails if the
// parent does not resolve, the name is invalid or taken, or the device is
// full; nothing is left allocated on failure.
func (fs *Filesys) Create(cwd *dir.Dir, path string, size uint64) bool {
	parent, name, ok := fs.lastDir(cwd, path)
	if !ok {
		return false
	}
	defer parent.Close()

	s := fs.alloc.AllocNum()
	if s == common.NULLSECTOR {
		return false
	}
	if !fs.it.Create(s, size, false) {
		fs.alloc.FreeNum(s)
		return false
	}
	if !parent.Add(name, s) {
		ip := fs.it.Open(s)
		ip.Remove()
		ip.Close()
		return false
	}
	util.DPrintf(1, "Create: %q -> inode %d\n", path, s)
	return true
}

// Mkdir makes an empty directory at path. The new directory has its "."
// and ".." entries and its parent pointer before it becomes visible in the
// parent.
func (fs *Filesys) Mkdir(cwd *dir.Dir, path string) bool {
	parent, name, ok := fs.lastDir(cwd, path)
	if !ok {
		return false
	}
	defer parent.Close()

	s := fs.alloc.AllocNum()
	if s == common.NULLSECTOR {
		return false
	}
	if !dir.Create(fs.it, s, 2) {
		fs.alloc.FreeNum(s)
		return false
	}
	d := dir.Open(fs.it.Open(s))
	defer d.Close()
	p := parent.Inode().Inumber()
	d.Inode().SetParent(p)
	if !d.Add(".", s) || !d.Add("..", p) || !parent.Add(name, s) {
		d.Inode().Remove()
		return false
	}
	util.DPrintf(1, "Mkdir: %q -> inode %d\n", path, s)
	return true
}

// Open returns a handle on the file or directory at path, or nil.
func (fs *Filesys) Open(cwd *dir.Dir, path string) *Handle {
	parent, name, ok := fs.lastDir(cwd, path)
	if !ok {
		return nil
	}
	ip := fs.step(parent, name)
	parent.Close()
	if ip == nil {
		return nil
	}
	if ip.IsDir() {
		return &Handle{dir: dir.Open(ip)}
	}
	return &Handle{file: file.Open(ip)}
}

// Remove unlinks path. The root cannot be removed, nor can a directory that
// is not empty or that someone else has open (as a handle or as a working
// directory).
func (fs *Filesys) Remove(cwd *dir.Dir, path string) bool {
	parent, name, ok := fs.lastDir(cwd, path)
	if !ok {
		return false
	}
	defer parent.Close()
	if name == rootName {
		return false
	}
	return parent.Remove(name)
}

// Chdir resolves path to a directory and returns a new handle on it, or nil
// if path does not name a directory. The caller closes its old working
// directory.
func (fs *Filesys) Chdir(cwd *dir.Dir, path string) *dir.Dir {
	h := fs.Open(cwd, path)
	if h == nil {
		return nil
	}
	if !h.IsDir() {
		h.Close()
		return nil
	}
	return h.Dir()
}
