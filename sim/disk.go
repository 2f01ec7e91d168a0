package sim

import (
	"fmt"
	"io"
	"os"

	"github.com/bobuhiro11/gohba/block"
)

// Disk is the backing store behind a simulated controller.
type Disk interface {
	io.ReaderAt
	io.WriterAt

	// Sectors is the capacity in 512-byte sectors.
	Sectors() uint64

	// Sync forces buffered writes down, for flush commands.
	Sync() error
}

// MemDisk is an in-memory Disk.
type MemDisk struct {
	data []byte
}

// NewMemDisk returns a zeroed disk of the given sector count.
func NewMemDisk(sectors uint64) *MemDisk {
	return &MemDisk{data: make([]byte, sectors*block.SectorSize)}
}

func (d *MemDisk) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, io.ErrUnexpectedEOF
	}

	return copy(p, d.data[off:]), nil
}

func (d *MemDisk) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, io.ErrUnexpectedEOF
	}

	return copy(d.data[off:], p), nil
}

func (d *MemDisk) Sectors() uint64 {
	return uint64(len(d.data) / block.SectorSize)
}

func (d *MemDisk) Sync() error {
	return nil
}

// FileDisk is a Disk over a regular file.
type FileDisk struct {
	f       *os.File
	sectors uint64
}

// OpenFileDisk opens path read-write and exposes it sector-wise.
func OpenFileDisk(path string) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, err
	}

	if st.Size()%block.SectorSize != 0 {
		f.Close()

		return nil, fmt.Errorf("disk image %s is not sector aligned", path)
	}

	return &FileDisk{f: f, sectors: uint64(st.Size() / block.SectorSize)}, nil
}

func (d *FileDisk) ReadAt(p []byte, off int64) (int, error)  { return d.f.ReadAt(p, off) }
func (d *FileDisk) WriteAt(p []byte, off int64) (int, error) { return d.f.WriteAt(p, off) }
func (d *FileDisk) Sectors() uint64                          { return d.sectors }
func (d *FileDisk) Sync() error                              { return d.f.Sync() }

// Close closes the backing file.
func (d *FileDisk) Close() error {
	return d.f.Close()
}
