//go:build !linux

package device

import (
	"errors"
	"fmt"
	"os"
)

// Help describes the device paths this platform accepts.
func Help() string {
	return "  <device> is a disk image file, or a raw disk device such as /dev/rdisk2\n"
}

func openFile(name string, readOnly bool) (*os.File, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(name, flags, 0)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	default:
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
}

func geometry(f *os.File) (sectorSize, sectorCount uint64, err error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, 0, fmt.Errorf("%s: only image files are supported on this platform", f.Name())
	}
	return 512, uint64(fi.Size()) / 512, nil
}

// Mount is a mounted filesystem found on one of a disk's partitions.
type Mount struct {
	Source string
	Target string
}

// MountedPartitions is not implemented on this platform.
func MountedPartitions(devPath string) ([]Mount, error) {
	return nil, nil
}

// ListDisks is not implemented on this platform.
func ListDisks() ([]Disk, error) {
	return nil, errors.New("listing disks is only supported on Linux")
}
