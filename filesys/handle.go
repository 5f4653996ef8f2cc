package filesys

import (
	"github.com/mit-pdos/goose-filesys/common"
	"github.com/mit-pdos/goose-filesys/dir"
	"github.com/mit-pdos/goose-filesys/file"
	"github.com/mit-pdos/goose-filesys/inode"
)

// A Handle is what Open returns: a byte-stream handle for a regular file
// or a directory handle, never both.
type Handle struct {
	file *file.File
	dir  *dir.Dir
}

func (h *Handle) IsDir() bool {
	return h.dir != nil
}

// File returns the byte-stream handle, or nil for a directory.
func (h *Handle) File() *file.File {
	return h.file
}

// Dir returns the directory handle, or nil for a regular file.
func (h *Handle) Dir() *dir.Dir {
	return h.dir
}

func (h *Handle) inode() *inode.Inode {
	if h.dir != nil {
		return h.dir.Inode()
	}
	return h.file.Inode()
}

// Inumber is the sector holding the inode's descriptor.
func (h *Handle) Inumber() common.Sector {
	return h.inode().Inumber()
}

// Readdir returns the next name in a directory handle. It returns false at
// the end of the directory and for regular files.
func (h *Handle) Readdir() (string, bool) {
	if h.dir == nil {
		return "", false
	}
	return h.dir.Readdir()
}

func (h *Handle) Close() {
	if h.dir != nil {
		h.dir.Close()
	} else {
		h.file.Close()
	}
}
