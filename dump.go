package main

import (
	"fmt"
	"io"
	"strings"

	"gptedit/internal/device"
	"gptedit/internal/gpt"
	"gptedit/internal/hexdump"
	"gptedit/internal/mbr"
	"gptedit/internal/parttype"
	"gptedit/internal/table"
)

func dumpDevice(w io.Writer, dev device.BlockDevice) {
	fmt.Fprintf(w, "dev.sector_size: %d\n", dev.SectorSize())
	fmt.Fprintf(w, "dev.sector_count: %d\n", dev.SectorCount())
}

func dumpHeader(w io.Writer, h gpt.Header) {
	fmt.Fprintf(w, "signature[8]         = %.8s\n", h.Signature[:])
	fmt.Fprintf(w, "revision             = %08x\n", h.Revision)
	fmt.Fprintf(w, "header_size          = %d\n", h.HeaderSize)
	fmt.Fprintf(w, "header_crc32         = %08x\n", h.HeaderCRC32)
	fmt.Fprintf(w, "reserved             = %08x\n", h.Reserved)
	fmt.Fprintf(w, "my_lba               = %d\n", h.MyLBA)
	fmt.Fprintf(w, "alternate_lba        = %d\n", h.AlternateLBA)
	fmt.Fprintf(w, "first_usable_lba     = %d\n", h.FirstUsableLBA)
	fmt.Fprintf(w, "last_usable_lba      = %d\n", h.LastUsableLBA)
	fmt.Fprintf(w, "disk_guid            = %s\n", h.DiskGUID)
	fmt.Fprintf(w, "partition_entry_lba  = %d\n", h.PartitionEntryLBA)
	fmt.Fprintf(w, "partition_entries    = %d\n", h.NumEntries)
	fmt.Fprintf(w, "partition_entry_size = %d\n", h.EntrySize)
	fmt.Fprintf(w, "partition_crc        = %08x\n", h.PartitionArrayCRC32)
}

func dumpPartition(w io.Writer, p gpt.Partition) {
	fmt.Fprintf(w, "partition_type = %s\n", p.Type)
	if ty, ok := parttype.ByGUID(p.Type); ok {
		fmt.Fprintf(w, "      * %s\n", ty.Name)
	}
	fmt.Fprintf(w, "partition_guid = %s\n", p.GUID)
	fmt.Fprintf(w, "first_lba      = %d\n", p.FirstLBA)
	fmt.Fprintf(w, "last_lba       = %d\n", p.LastLBA)
	fmt.Fprintf(w, "attributes     = %016x\n", p.Attributes)
	fmt.Fprintf(w, "name[36]       = %s\n", p.Label())
}

// dumpPartitions dumps every used entry, numbered by its array index.
func dumpPartitions(w io.Writer, t *table.Table) {
	for i, p := range t.Partitions {
		if p.IsEmpty() {
			continue
		}
		fmt.Fprintf(w, "Partition %d of %d\n", i, len(t.Partitions))
		dumpPartition(w, p)
	}
}

func dumpMBR(w io.Writer, m mbr.MBR) {
	fmt.Fprintf(w, "disk_signature             = %08x\n", m.DiskSignature)
	fmt.Fprintf(w, "unused                     = %02x\n", m.Reserved)
	for i, p := range m.Partitions {
		fmt.Fprintf(w, "[%d] status                = %02x\n", i, p.Status)
		fmt.Fprintf(w, "[%d] first_sector.cylinder = %d\n", i, p.First.Cylinder)
		fmt.Fprintf(w, "[%d] first_sector.head     = %d\n", i, p.First.Head)
		fmt.Fprintf(w, "[%d] first_sector.sector   = %d\n", i, p.First.Sector)
		fmt.Fprintf(w, "[%d] partition_type        = %02x\n", i, p.Type)
		fmt.Fprintf(w, "[%d] last_sector.cylinder  = %d\n", i, p.Last.Cylinder)
		fmt.Fprintf(w, "[%d] last_sector.head      = %d\n", i, p.Last.Head)
		fmt.Fprintf(w, "[%d] last_sector.sector    = %d\n", i, p.Last.Sector)
		fmt.Fprintf(w, "[%d] first_sector_lba      = %d\n", i, p.FirstLBA)
		fmt.Fprintf(w, "[%d] sectors               = %d\n", i, p.Sectors)
	}
	fmt.Fprintf(w, "signature                  = %02x\n", m.Signature)
}

// dumpSectors hex dumps count sectors of the device starting at lba.
func dumpSectors(w io.Writer, dev device.BlockDevice, lba, count uint64) error {
	data, err := dev.ReadSectors(lba, count)
	if err != nil {
		return err
	}
	return hexdump.Dump(w, lba*dev.SectorSize(), data)
}

var dumpTargets = []string{"dev", "header", "alt-header", "partitions", "mbr", "sector"}

func dumpUsage() string {
	return "dump " + strings.Join(dumpTargets, "|") + " [LBA] [COUNT]"
}
