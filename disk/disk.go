// Package disk is the block store underneath the file system: a device of
// fixed-size sectors addressed by number.
//
// Implementations panic on a sector number past Size() or a buffer that is
// not exactly SectorSize bytes; both are bugs in the caller. Errors are
// reserved for the device itself failing.
package disk

type Block = []byte

const SectorSize uint64 = 512

type Disk interface {
	// Read returns a fresh copy of sector a.
	Read(a uint64) (Block, error)

	// ReadTo fills b with sector a.
	ReadTo(a uint64, b Block) error

	// Write stores v as sector a. The device keeps no reference to v.
	Write(a uint64, v Block) error

	// Size is the number of sectors on the device.
	Size() (uint64, error)

	// Barrier returns once every completed Write is durable.
	Barrier() error

	Close() error
}
