// Package session ties an open device to the table being edited on it.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gosuri/uilive"
	"k8s.io/klog/v2"

	"gptedit/internal/backup"
	"gptedit/internal/device"
	"gptedit/internal/hexdump"
	"gptedit/internal/table"
)

// ErrTableLikelyCorrupt is returned when a write fails part way through
// the record sequence. The backup taken before the write is the way back.
var ErrTableLikelyCorrupt = errors.New("partition table on disk is likely corrupt")

// Config holds the settings a session needs beyond the device.
type Config struct {
	BackupDir   string
	Compression string
}

// Session is one editing session: a device, the table loaded from it and
// whatever has been changed since.
type Session struct {
	Dev    device.BlockDevice
	Table  *table.Table
	Report *table.LoadReport
	Config Config
}

// New loads the table from dev.
func New(dev device.BlockDevice, cfg Config) (*Session, error) {
	s := &Session{Dev: dev, Config: cfg}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload discards in-memory changes and reads the table from the device
// again.
func (s *Session) Reload() error {
	t, report, err := table.Read(s.Dev)
	if err != nil {
		return fmt.Errorf("loading partition table from %s: %w", s.Dev.Name(), err)
	}
	s.Table, s.Report = t, report
	return nil
}

// Blank replaces the table with an empty one for the device geometry.
func (s *Session) Blank() error {
	t, err := table.Blank(s.Dev.SectorSize(), s.Dev.SectorCount())
	if err != nil {
		return err
	}
	s.Table = t
	return nil
}

func (s *Session) meta() backup.Meta {
	return backup.Meta{
		SectorSize:  s.Dev.SectorSize(),
		SectorCount: s.Dev.SectorCount(),
		Device:      s.Dev.Name(),
		Compression: s.Config.Compression,
	}
}

// Export saves the in-memory table to manifestPath and a blob beside it.
// The blob path is returned.
func (s *Session) Export(manifestPath string) (string, error) {
	return backup.Export(manifestPath, manifestPath+".img", s.meta(), s.Table.Records())
}

// Import replaces the in-memory table with one read from a manifest. The
// current table is kept when the import fails. Non-fatal mismatches are
// returned as warnings.
func (s *Session) Import(manifestPath string) ([]string, error) {
	res, err := backup.Import(manifestPath, s.meta())
	if err != nil {
		return nil, err
	}
	t, err := table.FromRecords(res.Records, s.Dev.SectorSize(), s.Dev.SectorCount())
	if err != nil {
		return nil, err
	}
	s.Table = t
	return res.Warnings, nil
}

// WriteOptions controls Write.
type WriteOptions struct {
	// Force writes even when the backup of the on-disk table fails.
	Force bool
	// DryRun goes through every step except the device writes.
	DryRun bool
	// Verbose dumps every record before it is written.
	Verbose bool
	// Out receives progress and dumps. Nil means standard output.
	Out io.Writer
}

// WriteResult reports what Write did.
type WriteResult struct {
	Backup  string
	Written []string
}

// Write saves the table to the device. The current on-disk content is
// backed up first; the records are then written in order: MBR, primary
// header, primary array, alternate array, alternate header.
func (s *Session) Write(opts WriteOptions) (*WriteResult, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if !s.Table.CRCValid() {
		klog.Warning("checksums did not match the table contents, recomputing before write")
		s.Table.UpdateCRC()
	}
	records := s.Table.Records()
	res := &WriteResult{}

	path, err := backup.Snapshot(s.Dev, s.Config.BackupDir, s.Config.Compression, records)
	switch {
	case err == nil:
		res.Backup = path
		fmt.Fprintf(out, "Previous table saved to %s\n", path)
	case opts.Force:
		klog.Warningf("continuing without a backup: %v", err)
	default:
		return res, err
	}

	writer := uilive.New()
	writer.Out = out
	writer.Start()
	defer writer.Stop()

	for i, r := range records {
		if opts.Verbose {
			fmt.Fprintf(writer.Bypass(), "%s: %d sectors at LBA %d\n", r.Name, r.Blocks, r.LBA)
			if err := hexdump.Dump(writer.Bypass(), r.LBA*s.Dev.SectorSize(), r.Data); err != nil {
				return res, err
			}
		}
		fmt.Fprintf(writer, "Writing %s (%d/%d)\n", r.Name, i+1, len(records))
		if opts.DryRun {
			continue
		}
		if err := s.Dev.WriteSectors(r.LBA, r.Data); err != nil {
			klog.ErrorS(err, "record write failed", "record", r.Name, "lba", r.LBA)
			if i == 0 {
				return res, fmt.Errorf("writing %s: %w", r.Name, err)
			}
			return res, fmt.Errorf("%w: writing %s failed after %d records: %w", ErrTableLikelyCorrupt, r.Name, i, err)
		}
		res.Written = append(res.Written, r.Name)
	}
	if opts.DryRun {
		fmt.Fprintln(writer, "Dry run, nothing written")
		return res, nil
	}

	if syncer, ok := s.Dev.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return res, fmt.Errorf("%w: flushing %s: %w", ErrTableLikelyCorrupt, s.Dev.Name(), err)
		}
	}
	fmt.Fprintf(writer, "Wrote %d records to %s\n", len(res.Written), s.Dev.Name())
	s.warnMounted()
	return res, nil
}

// warnMounted points out mounted partitions, whose kernel view of the
// table will not change until they are unmounted.
func (s *Session) warnMounted() {
	mounts, err := device.MountedPartitions(s.Dev.Name())
	if err != nil {
		klog.V(2).Infof("checking mounts of %s: %v", s.Dev.Name(), err)
		return
	}
	for _, m := range mounts {
		klog.Warningf("%s is mounted on %s; reboot or re-read the table before using the new layout", m.Source, m.Target)
	}
}
