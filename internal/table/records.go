package table

import (
	"fmt"

	"gptedit/internal/gpt"
	"gptedit/internal/mbr"
)

// Record names, in the order the records are written to disk.
const (
	RecordMBR           = "mbr"
	RecordHeader        = "gpt_header"
	RecordPartitions    = "gpt_partitions"
	RecordAltPartitions = "alt_gpt_partitions"
	RecordAltHeader     = "alt_gpt_header"
)

// RecordNames lists every record a table serializes to.
var RecordNames = []string{RecordMBR, RecordHeader, RecordPartitions, RecordAltPartitions, RecordAltHeader}

// Record is a run of whole sectors destined for a fixed place on disk.
type Record struct {
	Name   string
	LBA    uint64
	Blocks uint64
	Data   []byte
}

// Records serializes t into the five sector ranges that make up a table on
// disk.
func (t *Table) Records() []Record {
	ss := t.SectorSize
	arraySectors := t.Header.ArraySectors(ss)
	array := make([]byte, arraySectors*ss)
	copy(array, gpt.MarshalPartitions(t.Partitions))

	return []Record{
		{Name: RecordMBR, LBA: 0, Blocks: 1, Data: t.MBR.Sector(ss)},
		{Name: RecordHeader, LBA: t.Header.MyLBA, Blocks: 1, Data: t.Header.Sector(ss)},
		{Name: RecordPartitions, LBA: t.Header.PartitionEntryLBA, Blocks: arraySectors, Data: array},
		{Name: RecordAltPartitions, LBA: t.AltHeader.PartitionEntryLBA, Blocks: arraySectors, Data: array},
		{Name: RecordAltHeader, LBA: t.AltHeader.MyLBA, Blocks: 1, Data: t.AltHeader.Sector(ss)},
	}
}

// FromRecords rebuilds a table from the records produced by Records. Every
// record must be present with the expected length and location; otherwise
// no table is returned. Stored CRCs are kept as they are.
func FromRecords(records []Record, sectorSize, sectorCount uint64) (*Table, error) {
	byName := make(map[string]Record, len(records))
	for _, r := range records {
		if _, dup := byName[r.Name]; dup {
			return nil, fmt.Errorf("%w: record %q appears twice", ErrImportFormat, r.Name)
		}
		byName[r.Name] = r
	}
	get := func(name string, blocks uint64) (Record, error) {
		r, ok := byName[name]
		if !ok {
			return r, fmt.Errorf("%w: record %q missing", ErrImportFormat, name)
		}
		if r.Blocks != blocks || uint64(len(r.Data)) != blocks*sectorSize {
			return r, fmt.Errorf("%w: record %q has %d blocks and %d bytes, expected %d blocks of %d bytes",
				ErrImportFormat, name, r.Blocks, len(r.Data), blocks, sectorSize)
		}
		return r, nil
	}

	mbrRec, err := get(RecordMBR, 1)
	if err != nil {
		return nil, err
	}
	hdrRec, err := get(RecordHeader, 1)
	if err != nil {
		return nil, err
	}
	altRec, err := get(RecordAltHeader, 1)
	if err != nil {
		return nil, err
	}

	t := &Table{SectorSize: sectorSize, SectorCount: sectorCount}
	if t.MBR, err = mbr.Unmarshal(mbrRec.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
	}
	for _, h := range []struct {
		rec Record
		dst *gpt.Header
	}{{hdrRec, &t.Header}, {altRec, &t.AltHeader}} {
		hdr, err := gpt.UnmarshalHeader(h.rec.Data)
		if err == nil {
			err = hdr.Validate()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: record %q: %v", ErrImportFormat, h.rec.Name, err)
		}
		if hdr.MyLBA != h.rec.LBA {
			return nil, fmt.Errorf("%w: record %q is placed at LBA %d but describes LBA %d",
				ErrImportFormat, h.rec.Name, h.rec.LBA, hdr.MyLBA)
		}
		*h.dst = hdr
	}
	if t.Header.NumEntries != t.AltHeader.NumEntries {
		return nil, fmt.Errorf("%w: headers disagree on entry count (%d and %d)",
			ErrImportFormat, t.Header.NumEntries, t.AltHeader.NumEntries)
	}

	arraySectors := t.Header.ArraySectors(sectorSize)
	partRec, err := get(RecordPartitions, arraySectors)
	if err != nil {
		return nil, err
	}
	altPartRec, err := get(RecordAltPartitions, arraySectors)
	if err != nil {
		return nil, err
	}
	if partRec.LBA != t.Header.PartitionEntryLBA || altPartRec.LBA != t.AltHeader.PartitionEntryLBA {
		return nil, fmt.Errorf("%w: partition array records do not sit where the headers point", ErrImportFormat)
	}
	if t.Partitions, err = gpt.UnmarshalPartitions(partRec.Data, t.Header.NumEntries, t.Header.EntrySize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
	}
	t.BuildAliasTable()
	return t, nil
}
