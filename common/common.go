package common

import (
	"github.com/mit-pdos/goose-filesys/disk"
)

// Sector names one SECTORSZ-sized unit of the device. On disk a sector id
// occupies SECTORIDSZ bytes.
type Sector = uint64

const (
	SECTORSZ   uint64 = disk.SectorSize
	SECTORIDSZ uint64 = 4
	NBITSECTOR uint64 = SECTORSZ * 8

	// NINDIRECT is the number of sector ids held by one index block, both
	// for indirect blocks (data sectors) and the doubly-indirect block
	// (indirect blocks).
	NINDIRECT uint64 = SECTORSZ / SECTORIDSZ

	MAXSECTORS uint64 = NINDIRECT * NINDIRECT
	MAXFILESZ  uint64 = MAXSECTORS * SECTORSZ

	INODEMAGIC uint32 = 0x494e4f44

	NAMEMAX    uint64 = 14
	DIRENTNAME uint64 = 16 // on-disk name field, NUL padded
	DIRENTSZ   uint64 = 4 + 4 + DIRENTNAME

	ROOTDIRENTS uint64 = 16
)

const (
	ROOTSECTOR   Sector = 0
	FREEMAPSTART Sector = 1

	// No allocation ever returns the root sector, so an index slot or
	// allocation result of 0 means "no sector".
	NULLSECTOR Sector = 0
)
