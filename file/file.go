// Package file provides byte-stream handles over inodes.
package file

import (
	"github.com/mit-pdos/goose-filesys/inode"
	"github.com/mit-pdos/goose-filesys/util"
)

// A File is an open inode plus a current position. Position and the
// handle's deny-write hold are per-handle; a File must not be used from
// several threads at once.
type File struct {
	ip        *inode.Inode
	pos       uint64
	denyWrite bool
}

// Open takes ownership of ip. Returns nil if ip is nil.
func Open(ip *inode.Inode) *File {
	if ip == nil {
		return nil
	}
	return &File{ip: ip}
}

func (f *File) Reopen() *File {
	return Open(f.ip.Reopen())
}

// Close releases the handle's deny-write hold, if any, and the inode.
func (f *File) Close() {
	f.AllowWrite()
	f.ip.Close()
}

func (f *File) Inode() *inode.Inode {
	return f.ip
}

// Read reads into b from the current position and advances it by the
// number of bytes read.
func (f *File) Read(b []byte) uint64 {
	n := f.ip.ReadAt(b, f.pos)
	f.pos += n
	return n
}

func (f *File) ReadAt(b []byte, off uint64) uint64 {
	return f.ip.ReadAt(b, off)
}

// Write writes b at the current position, growing the file as needed, and
// advances the position by the number of bytes written. Returns 0 if
// writes are denied or the file cannot grow.
func (f *File) Write(b []byte) uint64 {
	n := f.ip.WriteAt(b, f.pos)
	f.pos += n
	return n
}

func (f *File) WriteAt(b []byte, off uint64) uint64 {
	return f.ip.WriteAt(b, off)
}

// Seek sets the position. Seeking past the end is allowed; a later Write
// there zero-fills the gap.
func (f *File) Seek(pos uint64) {
	f.pos = pos
}

func (f *File) Tell() uint64 {
	return f.pos
}

func (f *File) Length() uint64 {
	return f.ip.Length()
}

// DenyWrite forbids writes to the inode through any handle until this
// handle calls AllowWrite or is closed. Repeated calls hold only once.
func (f *File) DenyWrite() {
	if !f.denyWrite {
		f.denyWrite = true
		f.ip.DenyWrite()
		util.DPrintf(5, "DenyWrite %d\n", f.ip.Inumber())
	}
}

func (f *File) AllowWrite() {
	if f.denyWrite {
		f.denyWrite = false
		f.ip.AllowWrite()
	}
}
