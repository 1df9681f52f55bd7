// Package table is the in-memory partition table: a GPT header pair, the
// partition entry array, and the legacy MBR kept in step with it.
package table

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"gptedit/internal/gpt"
	"gptedit/internal/guid"
	"gptedit/internal/mbr"
)

// Alias links an MBR slot to the GPT entry it mirrors. OK is false when the
// slot has no GPT counterpart.
type Alias struct {
	Index int
	OK    bool
}

// Table is a partition table being edited. It is not safe for concurrent
// use.
type Table struct {
	Header     gpt.Header
	AltHeader  gpt.Header
	Partitions []gpt.Partition
	MBR        mbr.MBR
	MBRSync    bool
	Aliases    [mbr.NumPartitions]Alias

	SectorSize  uint64
	SectorCount uint64
}

// Blank builds an empty table covering a device of the given geometry:
// 128 entries, a random disk GUID, an empty MBR and valid CRCs.
func Blank(sectorSize, sectorCount uint64) (*Table, error) {
	h := gpt.Header{
		Signature:  gpt.Signature,
		Revision:   gpt.Revision,
		HeaderSize: gpt.HeaderSize,
		NumEntries: gpt.DefaultEntries,
		EntrySize:  gpt.EntrySize,
		DiskGUID:   guid.New(),
	}
	reserved := 2 + h.ArraySectors(sectorSize)
	if sectorCount < 2*reserved+1 {
		return nil, fmt.Errorf("%w: %d sectors, need at least %d", ErrDeviceTooSmall, sectorCount, 2*reserved+1)
	}
	h.MyLBA = 1
	h.AlternateLBA = sectorCount - 1
	h.FirstUsableLBA = reserved
	h.LastUsableLBA = sectorCount - 1 - reserved
	h.PartitionEntryLBA = 2

	t := &Table{
		Header:      h,
		AltHeader:   mirrorHeader(h, true),
		Partitions:  make([]gpt.Partition, h.NumEntries),
		MBR:         mbr.New(),
		SectorSize:  sectorSize,
		SectorCount: sectorCount,
	}
	t.UpdateCRC()
	t.BuildAliasTable()
	return t, nil
}

// mirrorHeader derives the other header of the pair from h. The location
// fields are swapped and the array is placed after the last usable LBA for
// an alternate, or right after the header for a primary.
func mirrorHeader(h gpt.Header, asAlternate bool) gpt.Header {
	m := h
	m.MyLBA, m.AlternateLBA = h.AlternateLBA, h.MyLBA
	if asAlternate {
		m.PartitionEntryLBA = h.LastUsableLBA + 1
	} else {
		m.PartitionEntryLBA = m.MyLBA + 1
	}
	return m
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	c := *t
	c.Partitions = slices.Clone(t.Partitions)
	return &c
}

// UpdateCRC recomputes the partition array CRC and both header CRCs.
func (t *Table) UpdateCRC() {
	crc := gpt.ArrayCRC(t.Partitions)
	t.Header.PartitionArrayCRC32 = crc
	t.AltHeader.PartitionArrayCRC32 = crc
	t.Header.HeaderCRC32 = t.Header.ComputeCRC()
	t.AltHeader.HeaderCRC32 = t.AltHeader.ComputeCRC()
}

// CRCValid reports whether every stored CRC matches the current content.
func (t *Table) CRCValid() bool {
	crc := gpt.ArrayCRC(t.Partitions)
	return t.Header.PartitionArrayCRC32 == crc &&
		t.AltHeader.PartitionArrayCRC32 == crc &&
		t.Header.CRCValid() &&
		t.AltHeader.CRCValid()
}

// Partition returns entry i, failing for out of range or unused slots.
func (t *Table) Partition(i int) (gpt.Partition, error) {
	if i < 0 || i >= len(t.Partitions) {
		return gpt.Partition{}, fmt.Errorf("%w: %d is outside 0..%d", ErrInvalidIndex, i, len(t.Partitions)-1)
	}
	if t.Partitions[i].IsEmpty() {
		return gpt.Partition{}, fmt.Errorf("%w: entry %d is unused", ErrInvalidIndex, i)
	}
	return t.Partitions[i], nil
}

// AliasOf returns the GPT entry mirrored by MBR slot.
func (t *Table) AliasOf(slot int) (int, bool) {
	if slot < 0 || slot >= len(t.Aliases) || !t.Aliases[slot].OK {
		return 0, false
	}
	return t.Aliases[slot].Index, true
}

// MBRSlotOf returns the MBR slot mirroring GPT entry i.
func (t *Table) MBRSlotOf(i int) (int, bool) {
	for slot, a := range t.Aliases {
		if a.OK && a.Index == i {
			return slot, true
		}
	}
	return 0, false
}

// Used counts the non-empty entries.
func (t *Table) Used() int {
	n := 0
	for _, p := range t.Partitions {
		if !p.IsEmpty() {
			n++
		}
	}
	return n
}

// Verify reports every invariant the table currently violates. Disks in
// the wild break some of these, so callers treat the result as advice.
func (t *Table) Verify() error {
	var errs error
	h, a := t.Header, t.AltHeader
	if h.AlternateLBA != a.MyLBA || a.AlternateLBA != h.MyLBA {
		errs = multierr.Append(errs, fmt.Errorf("%w: primary at %d points to %d, alternate at %d points to %d",
			ErrLBAMismatch, h.MyLBA, h.AlternateLBA, a.MyLBA, a.AlternateLBA))
	}
	for _, hdr := range []gpt.Header{h, a} {
		if err := hdr.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("header at LBA %d: %w", hdr.MyLBA, err))
		}
	}
	if !t.CRCValid() {
		errs = multierr.Append(errs, fmt.Errorf("%w: table has unsaved changes or damaged checksums", ErrCRCInvalid))
	}
	for i, p := range t.Partitions {
		if p.IsEmpty() {
			continue
		}
		if p.FirstLBA > p.LastLBA {
			errs = multierr.Append(errs, fmt.Errorf("%w: entry %d starts at %d after its end %d", ErrOutOfRange, i, p.FirstLBA, p.LastLBA))
			continue
		}
		if p.FirstLBA < h.FirstUsableLBA || p.LastLBA > h.LastUsableLBA {
			errs = multierr.Append(errs, fmt.Errorf("%w: entry %d spans %d-%d, usable range is %d-%d",
				ErrOutOfRange, i, p.FirstLBA, p.LastLBA, h.FirstUsableLBA, h.LastUsableLBA))
		}
		for j := i + 1; j < len(t.Partitions); j++ {
			q := t.Partitions[j]
			if !q.IsEmpty() && q.FirstLBA <= q.LastLBA && p.FirstLBA <= q.LastLBA && q.FirstLBA <= p.LastLBA {
				errs = multierr.Append(errs, fmt.Errorf("%w: entries %d and %d", ErrOverlap, i, j))
			}
		}
	}
	if !t.MBR.Valid() {
		for _, mp := range t.MBR.Partitions {
			if !mp.IsEmpty() {
				errs = multierr.Append(errs, ErrMBRSignature)
				break
			}
		}
	}
	return errs
}
