package table

import (
	"fmt"

	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"gptedit/internal/device"
	"gptedit/internal/gpt"
	"gptedit/internal/mbr"
)

// LoadState is the outcome of Read.
type LoadState int

const (
	// StateValid means both headers were usable as found.
	StateValid LoadState = iota
	// StateRepairedFromAlternate means the primary header was rebuilt from
	// the alternate.
	StateRepairedFromAlternate
	// StateRepairedFromPrimary means the alternate header was rebuilt from
	// the primary.
	StateRepairedFromPrimary
	// StateBlankFallback means neither header was usable and a blank table
	// was substituted.
	StateBlankFallback
)

func (s LoadState) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateRepairedFromAlternate:
		return "repaired from alternate"
	case StateRepairedFromPrimary:
		return "repaired from primary"
	case StateBlankFallback:
		return "blank"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

// LoadReport explains what Read found and what it fixed in memory.
type LoadReport struct {
	State       LoadState
	Diagnostics []error
}

// Err combines the diagnostics into one error, or nil when there are none.
func (r *LoadReport) Err() error {
	return multierr.Combine(r.Diagnostics...)
}

func (r *LoadReport) add(err error) {
	klog.Warning(err)
	r.Diagnostics = append(r.Diagnostics, err)
}

// candidate is a header as read from disk and whether it passed validation.
type candidate struct {
	header gpt.Header
	valid  bool
}

// Read loads the partition table from dev, repairing in memory whatever it
// can. Header and CRC problems are reported in the LoadReport; only I/O
// failures on sector 0 or an unusable geometry return an error.
//
// Nothing is written back to dev.
func Read(dev device.BlockDevice) (*Table, *LoadReport, error) {
	report := &LoadReport{State: StateValid}
	sectorSize, sectorCount := dev.SectorSize(), dev.SectorCount()

	klog.V(3).Info("reading primary header")
	primary := readHeader(dev, 1, "primary", report)

	klog.V(3).Info("reading alternate header")
	altLBA := sectorCount - 1
	if primary.valid {
		if primary.header.AlternateLBA < sectorCount {
			altLBA = primary.header.AlternateLBA
		} else {
			report.add(fmt.Errorf("%w: primary names alternate LBA %d beyond the last sector %d",
				ErrLBAMismatch, primary.header.AlternateLBA, sectorCount-1))
		}
	}
	alternate := readHeader(dev, altLBA, "alternate", report)

	klog.V(3).Info("cross-validating headers")
	var t *Table
	switch {
	case !primary.valid && !alternate.valid:
		report.State = StateBlankFallback
	case !primary.valid:
		report.State = StateRepairedFromAlternate
		primary.header = mirrorHeader(alternate.header, false)
		report.add(fmt.Errorf("primary header rebuilt from the alternate at LBA %d", alternate.header.MyLBA))
	case !alternate.valid:
		report.State = StateRepairedFromPrimary
		alternate.header = mirrorHeader(primary.header, true)
		report.add(fmt.Errorf("alternate header rebuilt from the primary, placed at LBA %d", alternate.header.MyLBA))
	default:
		reconcileLocations(&primary.header, &alternate.header, sectorCount, report)
		reconcileShared(&primary.header, &alternate.header, report)
	}

	if report.State != StateBlankFallback {
		parts, err := readArray(dev, primary, alternate, report)
		if err != nil {
			report.add(err)
			report.State = StateBlankFallback
		} else {
			t = &Table{
				Header:      primary.header,
				AltHeader:   alternate.header,
				Partitions:  parts,
				SectorSize:  sectorSize,
				SectorCount: sectorCount,
			}
			if !t.CRCValid() {
				report.add(fmt.Errorf("%w: recomputed in memory", ErrCRCInvalid))
				t.UpdateCRC()
			}
		}
	}

	if report.State == StateBlankFallback {
		report.add(fmt.Errorf("no usable GPT found on %s, using a blank table", dev.Name()))
		blank, err := Blank(sectorSize, sectorCount)
		if err != nil {
			return nil, report, err
		}
		t = blank
	}

	klog.V(3).Info("reading MBR")
	sector, err := dev.ReadSectors(0, 1)
	if err != nil {
		return nil, report, fmt.Errorf("reading MBR: %w", err)
	}
	if t.MBR, err = mbr.Unmarshal(sector); err != nil {
		return nil, report, err
	}
	if !t.MBR.Valid() {
		report.add(fmt.Errorf("%w: found 0x%04x", ErrMBRSignature, t.MBR.Signature))
		if report.State == StateBlankFallback && mbrUnused(t.MBR) {
			// Nothing to keep; start from a signed MBR like a blank table.
			t.MBR.Signature = mbr.Signature
		}
	}
	t.BuildAliasTable()

	if err := t.Verify(); err != nil {
		for _, e := range multierr.Errors(err) {
			report.add(e)
		}
	}
	klog.V(2).Infof("loaded %s: %s, %d partitions, MBR sync %t", dev.Name(), report.State, t.Used(), t.MBRSync)
	return t, report, nil
}

func readHeader(dev device.BlockDevice, lba uint64, which string, report *LoadReport) candidate {
	sector, err := dev.ReadSectors(lba, 1)
	if err != nil {
		report.add(fmt.Errorf("%s header at LBA %d: %w", which, lba, err))
		return candidate{}
	}
	h, err := gpt.UnmarshalHeader(sector)
	if err == nil {
		err = h.Validate()
	}
	if err != nil {
		report.add(fmt.Errorf("%s header at LBA %d: %w", which, lba, err))
		return candidate{header: h}
	}
	if h.MyLBA != lba {
		report.add(fmt.Errorf("%w: %s header read at LBA %d claims LBA %d", ErrLBAMismatch, which, lba, h.MyLBA))
	}
	return candidate{header: h, valid: true}
}

// reconcileLocations makes the two headers agree on where each of them
// lives. The primary belongs at LBA 1 and the alternate at the last sector;
// when neither side says so the primary's view is kept.
func reconcileLocations(p, a *gpt.Header, sectorCount uint64, report *LoadReport) {
	if p.MyLBA != a.AlternateLBA {
		chosen := p.MyLBA
		if p.MyLBA != 1 && a.AlternateLBA == 1 {
			chosen = a.AlternateLBA
		}
		report.add(fmt.Errorf("%w: primary claims LBA %d, alternate points to %d; using %d",
			ErrLBAMismatch, p.MyLBA, a.AlternateLBA, chosen))
		p.MyLBA, a.AlternateLBA = chosen, chosen
	}
	if a.MyLBA != p.AlternateLBA {
		chosen := p.AlternateLBA
		if p.AlternateLBA != sectorCount-1 && a.MyLBA == sectorCount-1 {
			chosen = a.MyLBA
		}
		report.add(fmt.Errorf("%w: alternate claims LBA %d, primary points to %d; using %d",
			ErrLBAMismatch, a.MyLBA, p.AlternateLBA, chosen))
		a.MyLBA, p.AlternateLBA = chosen, chosen
	}
}

// reconcileShared copies the fields both headers must share from the
// primary when they differ.
func reconcileShared(p, a *gpt.Header, report *LoadReport) {
	if p.FirstUsableLBA == a.FirstUsableLBA && p.LastUsableLBA == a.LastUsableLBA &&
		p.DiskGUID == a.DiskGUID && p.NumEntries == a.NumEntries {
		return
	}
	report.add(fmt.Errorf("%w: alternate usable range, disk GUID or entry count differs; taking the primary's", ErrHeaderMismatch))
	a.FirstUsableLBA = p.FirstUsableLBA
	a.LastUsableLBA = p.LastUsableLBA
	a.DiskGUID = p.DiskGUID
	a.NumEntries = p.NumEntries
}

// readArray loads the partition entries through the header that was valid
// on disk, preferring the primary. The other copy is used when it is the
// only one matching its CRC.
func readArray(dev device.BlockDevice, primary, alternate candidate, report *LoadReport) ([]gpt.Partition, error) {
	sources := []candidate{primary, alternate}
	if !primary.valid {
		sources = []candidate{alternate, primary}
	}
	var firstParts []gpt.Partition
	var lastErr error
	for _, src := range sources {
		parts, err := loadArray(dev, src.header)
		if err != nil {
			report.add(err)
			lastErr = err
			continue
		}
		if gpt.ArrayCRC(parts) == src.header.PartitionArrayCRC32 {
			return parts, nil
		}
		if firstParts == nil {
			firstParts = parts
		}
		report.add(fmt.Errorf("%w: partition array at LBA %d", ErrCRCInvalid, src.header.PartitionEntryLBA))
	}
	if firstParts != nil {
		return firstParts, nil
	}
	return nil, lastErr
}

func loadArray(dev device.BlockDevice, h gpt.Header) ([]gpt.Partition, error) {
	sectorSize, sectorCount := dev.SectorSize(), dev.SectorCount()
	if h.ArrayBytes()/sectorSize > sectorCount/2 {
		return nil, fmt.Errorf("%w: %d entries of %d bytes on a device of %d sectors",
			ErrPartitionCountImplausible, h.NumEntries, h.EntrySize, sectorCount)
	}
	buf, err := dev.ReadSectors(h.PartitionEntryLBA, h.ArraySectors(sectorSize))
	if err != nil {
		return nil, fmt.Errorf("reading partition array at LBA %d: %w", h.PartitionEntryLBA, err)
	}
	return gpt.UnmarshalPartitions(buf, h.NumEntries, h.EntrySize)
}

func mbrUnused(m mbr.MBR) bool {
	for _, p := range m.Partitions {
		if !p.IsEmpty() {
			return false
		}
	}
	return true
}
