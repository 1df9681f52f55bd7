//go:build linux

package device

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// Help describes the device paths this platform accepts.
func Help() string {
	return "  <device> is /dev/sd* style device (full path) or a disk image file\n"
}

func openFile(name string, readOnly bool) (*os.File, error) {
	flags := unix.O_RDWR
	if readOnly {
		flags = unix.O_RDONLY
	}
	f, err := os.OpenFile(name, flags|unix.O_EXCL|unix.O_CLOEXEC, 0)
	if errors.Is(err, unix.EBUSY) {
		// Something holds the disk, most likely a mounted partition. The
		// table can still be edited; the kernel just will not reread it.
		klog.Warningf("%s is in use, opening without exclusive access", name)
		f, err = os.OpenFile(name, flags|unix.O_CLOEXEC, 0)
	}
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	case errors.Is(err, unix.EBUSY):
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, name)
	default:
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
}

func geometry(f *os.File) (sectorSize, sectorCount uint64, err error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	if fi.Mode().IsRegular() {
		return 512, uint64(fi.Size()) / 512, nil
	}

	sectorSize = blockSectorSize(f)
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, 0, fmt.Errorf("ioctl BLKGETSIZE64 failed: %v", errno)
	}
	return sectorSize, size / sectorSize, nil
}

// blockSectorSize asks the kernel for the logical sector size, then sysfs,
// then assumes 512.
func blockSectorSize(f *os.File) uint64 {
	if sz, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET); err == nil && sz > 0 {
		return uint64(sz)
	}
	data, err := os.ReadFile("/sys/class/block/" + filepath.Base(f.Name()) + "/queue/hw_sector_size")
	if err == nil {
		if sz, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && sz > 0 {
			return uint64(sz)
		}
	}
	return 512
}

// Mount is a mounted filesystem found on one of a disk's partitions.
type Mount struct {
	Source string
	Target string
}

// MountedPartitions lists mounts whose source is devPath or one of its
// partitions, by scanning /proc/self/mountinfo.
func MountedPartitions(devPath string) ([]Mount, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var mounts []Mount
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		before, after, ok := strings.Cut(scanner.Text(), " - ")
		if !ok {
			continue
		}
		beforeFields := strings.Fields(before)
		afterFields := strings.Fields(after)
		if len(beforeFields) < 5 || len(afterFields) < 2 {
			continue
		}
		source := afterFields[1]
		if source == devPath || (strings.HasPrefix(source, devPath) && isPartitionSuffix(source[len(devPath):])) {
			mounts = append(mounts, Mount{Source: source, Target: beforeFields[4]})
		}
	}
	return mounts, scanner.Err()
}

// isPartitionSuffix accepts "1" (sda1) and "p1" (nvme0n1p1).
func isPartitionSuffix(s string) bool {
	s = strings.TrimPrefix(s, "p")
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}
