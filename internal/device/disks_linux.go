//go:build linux

package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

var sysBlock = "/sys/class/block"

// ListDisks returns the whole disks listed in sysfs. Partitions and loop,
// zram and ram devices are left out.
func ListDisks() ([]Disk, error) {
	entries, err := os.ReadDir(sysBlock)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", sysBlock, err)
	}

	excludePrefixes := []string{"loop", "zram", "ram"}
	var disks []Disk
	for _, e := range entries {
		name := e.Name()
		if hasAnyPrefix(name, excludePrefixes) {
			continue
		}
		dir := filepath.Join(sysBlock, name)
		if _, err := os.Stat(filepath.Join(dir, "partition")); err == nil {
			continue
		}

		d := Disk{Path: "/dev/" + name}
		// sysfs reports the size in 512-byte units whatever the sector size.
		if n, err := readSysUint(filepath.Join(dir, "size")); err == nil {
			d.Size = n * 512
		} else {
			klog.V(3).Infof("size of %s: %v", name, err)
		}
		if n, err := readSysUint(filepath.Join(dir, "removable")); err == nil {
			d.Removable = n == 1
		}
		if mounts, err := MountedPartitions(d.Path); err == nil {
			d.Mounted = len(mounts) > 0
		}
		disks = append(disks, d)
	}
	return disks, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func readSysUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}
