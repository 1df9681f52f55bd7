package device

// Disk is a whole-disk block device found on the system.
type Disk struct {
	Path      string
	Size      uint64 // bytes, 0 if unavailable
	Removable bool
	Mounted   bool
}
