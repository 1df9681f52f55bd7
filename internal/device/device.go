// Package device provides sector-addressed access to disks and disk images.
package device

import (
	"errors"
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceBusy     = errors.New("device busy")
	ErrSectorIO       = errors.New("sector I/O error")
	ErrReadOnly       = errors.New("device opened read-only")
)

// BlockDevice is the storage the partition table engine reads and writes.
// Sector size and count never change while a device is open.
type BlockDevice interface {
	Name() string
	SectorSize() uint64
	SectorCount() uint64
	ReadSectors(lba, count uint64) ([]byte, error)
	WriteSectors(lba uint64, data []byte) error
}

// Device is a block device or a regular image file.
type Device struct {
	name        string
	file        *os.File
	sectorSize  uint64
	sectorCount uint64
	readOnly    bool
}

// Open opens name for reading and, unless readOnly is set, writing.
// Exclusive access is attempted first where the platform supports it.
func Open(name string, readOnly bool) (*Device, error) {
	f, err := openFile(name, readOnly)
	if err != nil {
		return nil, err
	}
	sectorSize, sectorCount, err := geometry(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading geometry of %s: %w", name, err)
	}
	if sectorSize == 0 || sectorCount == 0 {
		f.Close()
		return nil, fmt.Errorf("%s reports %d sectors of %d bytes", name, sectorCount, sectorSize)
	}
	klog.V(3).Infof("opened %s: %d sectors of %d bytes", name, sectorCount, sectorSize)
	return &Device{
		name:        name,
		file:        f,
		sectorSize:  sectorSize,
		sectorCount: sectorCount,
		readOnly:    readOnly,
	}, nil
}

func (d *Device) Name() string        { return d.name }
func (d *Device) SectorSize() uint64  { return d.sectorSize }
func (d *Device) SectorCount() uint64 { return d.sectorCount }
func (d *Device) ReadOnly() bool      { return d.readOnly }

// ReadSectors reads count sectors starting at lba.
func (d *Device) ReadSectors(lba, count uint64) ([]byte, error) {
	if err := checkRange(d, lba, count); err != nil {
		return nil, err
	}
	buf := make([]byte, count*d.sectorSize)
	n, err := d.file.ReadAt(buf, int64(lba*d.sectorSize))
	if err != nil || n != len(buf) {
		return nil, fmt.Errorf("%w: reading %d sectors at LBA %d of %s: read %d of %d bytes: %v",
			ErrSectorIO, count, lba, d.name, n, len(buf), err)
	}
	klog.V(4).Infof("read %d sectors at LBA %d", count, lba)
	return buf, nil
}

// WriteSectors writes data, which must be a whole number of sectors, at lba.
func (d *Device) WriteSectors(lba uint64, data []byte) error {
	if d.readOnly {
		return fmt.Errorf("writing %s: %w", d.name, ErrReadOnly)
	}
	count, err := sectorsIn(d, data)
	if err != nil {
		return err
	}
	if err := checkRange(d, lba, count); err != nil {
		return err
	}
	n, err := d.file.WriteAt(data, int64(lba*d.sectorSize))
	if err != nil || n != len(data) {
		return fmt.Errorf("%w: writing %d sectors at LBA %d of %s: wrote %d of %d bytes: %v",
			ErrSectorIO, count, lba, d.name, n, len(data), err)
	}
	klog.V(4).Infof("wrote %d sectors at LBA %d", count, lba)
	return nil
}

// Sync flushes written sectors to stable storage.
func (d *Device) Sync() error {
	return d.file.Sync()
}

// Close releases the device.
func (d *Device) Close() error {
	return d.file.Close()
}

func checkRange(d BlockDevice, lba, count uint64) error {
	if count == 0 || lba >= d.SectorCount() || count > d.SectorCount()-lba {
		return fmt.Errorf("%w: sectors [%d, +%d) outside device of %d sectors",
			ErrSectorIO, lba, count, d.SectorCount())
	}
	return nil
}

func sectorsIn(d BlockDevice, data []byte) (uint64, error) {
	if len(data) == 0 || uint64(len(data))%d.SectorSize() != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a whole number of %d byte sectors",
			ErrSectorIO, len(data), d.SectorSize())
	}
	return uint64(len(data)) / d.SectorSize(), nil
}
