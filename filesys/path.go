package filesys

import (
	"strings"

	"github.com/mit-pdos/goose-filesys/dir"
	"github.com/mit-pdos/goose-filesys/inode"
)

// rootName is the final component of a path made only of slashes.
const rootName = "/"

func splitPath(path string) []string {
	var comps []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	return comps
}

// step opens the inode name refers to in d: d itself for ".", d's parent
// for "..", and otherwise whatever d's entry names. Nothing resolves
// through a removed directory. Returns nil if name is absent.
func (fs *Filesys) step(d *dir.Dir, name string) *inode.Inode {
	ip := d.Inode()
	if ip.IsRemoved() {
		return nil
	}
	switch name {
	case ".":
		return ip.Reopen()
	case "..":
		return fs.it.Open(ip.Parent())
	default:
		return d.LookupInode(name)
	}
}

// lastDir walks every component of path but the last, starting at the root
// for absolute paths and at cwd (the root if nil) otherwise. It returns the
// directory the last component should live in, opened for the caller, and
// that component. A path of only slashes yields the root and rootName.
func (fs *Filesys) lastDir(cwd *dir.Dir, path string) (*dir.Dir, string, bool) {
	if path == "" {
		return nil, "", false
	}
	var d *dir.Dir
	if cwd == nil || strings.HasPrefix(path, "/") {
		d = fs.OpenRoot()
	} else {
		d = cwd.Reopen()
	}

	comps := splitPath(path)
	if len(comps) == 0 {
		return d, rootName, true
	}
	for _, c := range comps[:len(comps)-1] {
		next := dir.Open(fs.step(d, c))
		d.Close()
		if next == nil {
			return nil, "", false
		}
		d = next
	}
	return d, comps[len(comps)-1], true
}
