// Package dir stores directories as files of fixed-size entry records.
//
// Every directory carries "." and ".." as its first two entries; they are
// ordinary records on disk but are hidden from Readdir and ignored by
// IsEmpty. Add and Remove hold the directory inode's lock for their whole
// check-then-write sequence.
package dir

import (
	"strings"

	"github.com/mit-pdos/goose-filesys/common"
	"github.com/mit-pdos/goose-filesys/inode"
	"github.com/mit-pdos/goose-filesys/util"
)

// A Dir is an open directory: an inode handle plus a Readdir cursor. The
// cursor is per-handle state; a Dir must not be shared between threads
// without external synchronization.
type Dir struct {
	ip  *inode.Inode
	pos uint64
}

// Create makes a directory inode at sector with room for n entries.
func Create(it *inode.Itable, sector common.Sector, n uint64) bool {
	return it.Create(sector, n*common.DIRENTSZ, true)
}

// Open takes ownership of ip and returns a directory handle for it, or nil
// (closing ip) if ip is nil or not a directory.
func Open(ip *inode.Inode) *Dir {
	if ip == nil {
		return nil
	}
	if !ip.IsDir() {
		ip.Close()
		return nil
	}
	return &Dir{ip: ip, pos: 0}
}

func OpenRoot(it *inode.Itable) *Dir {
	return Open(it.Open(common.ROOTSECTOR))
}

// Reopen returns a new handle, with its own cursor, on the same directory.
func (d *Dir) Reopen() *Dir {
	return Open(d.ip.Reopen())
}

func (d *Dir) Close() {
	d.ip.Close()
}

func (d *Dir) Inode() *inode.Inode {
	return d.ip
}

func (d *Dir) IsRoot() bool {
	return d.ip.Inumber() == common.ROOTSECTOR
}

func (d *Dir) readEnt(off uint64) (*dirEnt, bool) {
	b := make([]byte, common.DIRENTSZ)
	if d.ip.ReadAt(b, off) != common.DIRENTSZ {
		return nil, false
	}
	return decodeDirEnt(b), true
}

// lookup scans for an in-use entry called name. Caller holds d's lock.
func (d *Dir) lookup(name string) (*dirEnt, uint64, bool) {
	for off := uint64(0); ; off += common.DIRENTSZ {
		de, ok := d.readEnt(off)
		if !ok {
			return nil, 0, false
		}
		if de.inUse && de.name == name {
			return de, off, true
		}
	}
}

// Lookup returns the sector of the inode named name in d. "/" looked up in
// the root directory names the root itself.
func (d *Dir) Lookup(name string) (common.Sector, bool) {
	if name == "/" && d.IsRoot() {
		return common.ROOTSECTOR, true
	}
	d.ip.Lock()
	de, _, ok := d.lookup(name)
	d.ip.Unlock()
	if !ok {
		return common.NULLSECTOR, false
	}
	return de.sector, true
}

// LookupInode is Lookup followed by opening the inode, done under d's lock
// so the entry cannot be removed in between. Returns nil if name is absent.
func (d *Dir) LookupInode(name string) *inode.Inode {
	if name == "/" && d.IsRoot() {
		return d.ip.Reopen()
	}
	d.ip.Lock()
	defer d.ip.Unlock()
	de, _, ok := d.lookup(name)
	if !ok {
		return nil
	}
	return d.ip.Table().Open(de.sector)
}

func validName(name string) bool {
	if name == "" || uint64(len(name)) > common.NAMEMAX {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}

// Add links name to the inode at sector. Fails if name is empty, too long,
// or already present, if d has been removed, or if the directory cannot
// grow. A free slot left by an earlier Remove is reused before the
// directory is extended.
func (d *Dir) Add(name string, sector common.Sector) bool {
	if !validName(name) {
		return false
	}
	d.ip.Lock()
	defer d.ip.Unlock()

	if d.ip.IsRemoved() {
		return false
	}
	if _, _, ok := d.lookup(name); ok {
		util.DPrintf(5, "Add: %q already in %d\n", name, d.ip.Inumber())
		return false
	}

	var off uint64
	for off = 0; ; off += common.DIRENTSZ {
		de, ok := d.readEnt(off)
		if !ok || !de.inUse {
			break
		}
	}
	de := &dirEnt{inUse: true, sector: sector, name: name}
	ok := d.ip.WriteAtLocked(encodeDirEnt(de), off) == common.DIRENTSZ
	util.DPrintf(5, "Add: %q -> %d in %d at %d: %v\n", name, sector, d.ip.Inumber(), off, ok)
	return ok
}

// Remove unlinks name from d and marks its inode removed; the inode's
// sectors are released when its last handle closes. A directory can only
// be removed while it is empty and nobody else has it open. "." and ".."
// cannot be removed.
func (d *Dir) Remove(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	d.ip.Lock()
	defer d.ip.Unlock()

	de, off, ok := d.lookup(name)
	if !ok {
		return false
	}
	child := d.ip.Table().Open(de.sector)
	defer child.Close()

	if child.IsDir() {
		// parent before child, the order every Remove takes
		child.Lock()
		defer child.Unlock()
		if child.OpenCount() > 1 {
			util.DPrintf(5, "Remove: %q is open\n", name)
			return false
		}
		if !IsEmpty(child) {
			util.DPrintf(5, "Remove: %q is not empty\n", name)
			return false
		}
	}

	de.inUse = false
	if d.ip.WriteAtLocked(encodeDirEnt(de), off) != common.DIRENTSZ {
		return false
	}
	child.Remove()
	util.DPrintf(5, "Remove: %q (%d) from %d\n", name, de.sector, d.ip.Inumber())
	return true
}

// Readdir returns the next entry name after the cursor, skipping free slots
// and "."/"..". Returns false once the directory is exhausted; the cursor
// does not rewind.
func (d *Dir) Readdir() (string, bool) {
	for {
		d.ip.Lock()
		de, ok := d.readEnt(d.pos)
		d.ip.Unlock()
		if !ok {
			return "", false
		}
		d.pos += common.DIRENTSZ
		if de.inUse && de.name != "." && de.name != ".." {
			return de.name, true
		}
	}
}

// IsEmpty reports whether the directory inode ip has no in-use entries
// past "." and "..".
func IsEmpty(ip *inode.Inode) bool {
	b := make([]byte, common.DIRENTSZ)
	for off := 2 * common.DIRENTSZ; ip.ReadAt(b, off) == common.DIRENTSZ; off += common.DIRENTSZ {
		if decodeDirEnt(b).inUse {
			return false
		}
	}
	return true
}
