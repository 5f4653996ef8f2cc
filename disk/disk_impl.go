package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/goose-filesys/util"
)

var _ Disk = fileDisk{}

type fileDisk struct {
	fd         int
	numSectors uint64
}

// NewFileDisk opens (creating if needed) the file or device at path as a disk
// of numSectors sectors. Regular files are truncated to the right size.
func NewFileDisk(path string, numSectors uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && uint64(stat.Size) != numSectors*SectorSize {
		err = unix.Ftruncate(fd, int64(numSectors*SectorSize))
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	util.DPrintf(1, "NewFileDisk: %s %d sectors\n", path, numSectors)
	return fileDisk{fd, numSectors}, nil
}

func (d fileDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != SectorSize {
		panic("buffer is not sector-sized")
	}
	if a >= d.numSectors {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	_, err := unix.Pread(d.fd, buf, int64(a*SectorSize))
	if err != nil {
		return fmt.Errorf("read sector %d: %v", a, err)
	}
	util.DPrintf(20, "read: %d\n", a)
	return nil
}

func (d fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, SectorSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d fileDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != SectorSize {
		panic(fmt.Errorf("v is not sector sized (%d bytes)", len(v)))
	}
	if a >= d.numSectors {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*SectorSize))
	if err != nil {
		return fmt.Errorf("write sector %d: %v", a, err)
	}
	util.DPrintf(20, "write: %d\n", a)
	return nil
}

func (d fileDisk) Size() (uint64, error) {
	return d.numSectors, nil
}

func (d fileDisk) Barrier() error {
	// not a full barrier on macOS, which needs F_FULLFSYNC
	return unix.Fsync(d.fd)
}

func (d fileDisk) Close() error {
	return unix.Close(d.fd)
}

var _ Disk = memDisk{}

type memDisk struct {
	l       *sync.RWMutex
	sectors [][SectorSize]byte
}

func NewMemDisk(numSectors uint64) Disk {
	sectors := make([][SectorSize]byte, numSectors)
	return memDisk{l: new(sync.RWMutex), sectors: sectors}
}

func (d memDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != SectorSize {
		panic("buffer is not sector-sized")
	}
	d.l.RLock()
	defer d.l.RUnlock()
	if a >= uint64(len(d.sectors)) {
		panic(fmt.Errorf("out-of-bounds read at %v", a))
	}
	copy(buf, d.sectors[a][:])
	return nil
}

func (d memDisk) Read(a uint64) (Block, error) {
	buf := make(Block, SectorSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d memDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != SectorSize {
		panic(fmt.Errorf("v is not sector-sized (%d bytes)", len(v)))
	}
	d.l.Lock()
	defer d.l.Unlock()
	if a >= uint64(len(d.sectors)) {
		panic(fmt.Errorf("out-of-bounds write at %v", a))
	}
	copy(d.sectors[a][:], v)
	return nil
}

func (d memDisk) Size() (uint64, error) {
	return uint64(len(d.sectors)), nil
}

func (d memDisk) Barrier() error { return nil }

func (d memDisk) Close() error { return nil }
