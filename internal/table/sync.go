package table

import (
	"fmt"
	"math"

	"k8s.io/klog/v2"

	"gptedit/internal/gpt"
	"gptedit/internal/mbr"
	"gptedit/internal/parttype"
)

// IsMBRRepresentable reports whether p fits the 32-bit start and length
// fields of an MBR record.
func IsMBRRepresentable(p gpt.Partition) bool {
	if p.IsEmpty() || p.LastLBA < p.FirstLBA {
		return false
	}
	// The sector count is last-first+1, so the difference must stay below
	// the largest 32-bit value for the count itself to fit.
	return p.FirstLBA <= math.MaxUint32 && p.LastLBA-p.FirstLBA < math.MaxUint32
}

// BuildAliasTable recomputes which GPT entry each MBR slot mirrors, and
// from that whether the MBR is in sync.
func (t *Table) BuildAliasTable() {
	t.Aliases = [mbr.NumPartitions]Alias{}
	synced := true
	for slot, mp := range t.MBR.Partitions {
		if mp.IsEmpty() {
			continue
		}
		i, ok := t.matchMBRSlot(mp)
		if !ok {
			klog.V(3).Infof("MBR slot %d (type 0x%02x, %d+%d) has no GPT counterpart", slot, mp.Type, mp.FirstLBA, mp.Sectors)
			synced = false
			continue
		}
		t.Aliases[slot] = Alias{Index: i, OK: true}
	}
	t.MBRSync = synced
}

// matchMBRSlot finds the first representable GPT entry ending where mp ends
// and starting where it starts. A protective entry at LBA 1 covers the GPT
// metadata, which has no GPT entry of its own, so its start is not compared.
func (t *Table) matchMBRSlot(mp mbr.Partition) (int, bool) {
	if mp.Sectors == 0 {
		return 0, false
	}
	protective := mp.Type == mbr.TypeGPTProtective && mp.FirstLBA == 1
	for i, p := range t.Partitions {
		if !IsMBRRepresentable(p) {
			continue
		}
		if (protective || uint64(mp.FirstLBA) == p.FirstLBA) && mp.LastLBA() == p.LastLBA {
			return i, true
		}
	}
	return 0, false
}

// SyncPartitionToMBR copies GPT entry i into the first unused MBR slot.
// The table is unchanged on error. MBRSync is left for BuildAliasTable to
// recompute.
func (t *Table) SyncPartitionToMBR(i int) error {
	p, err := t.Partition(i)
	if err != nil {
		return err
	}
	if _, ok := t.MBRSlotOf(i); ok {
		return nil
	}
	if !IsMBRRepresentable(p) {
		return fmt.Errorf("%w: entry %d spans %d-%d", ErrNotRepresentable, i, p.FirstLBA, p.LastLBA)
	}
	code, ok := parttype.MBREquivalent(p.Type)
	if !ok {
		return fmt.Errorf("%w: entry %d is %s", ErrNoMBREquivalent, i, parttype.Name(p.Type))
	}
	slot := -1
	for s, mp := range t.MBR.Partitions {
		if mp.IsEmpty() {
			slot = s
			break
		}
	}
	if slot < 0 {
		return fmt.Errorf("%w: cannot add entry %d", ErrMBRFull, i)
	}

	t.MBR.Partitions[slot] = mbr.Partition{
		Type:     code,
		FirstLBA: uint32(p.FirstLBA),
		Sectors:  uint32(p.Blocks()),
	}
	t.MBR.Signature = mbr.Signature
	t.Aliases[slot] = Alias{Index: i, OK: true}
	klog.V(3).Infof("entry %d mirrored to MBR slot %d as type 0x%02x", i, slot, code)
	return nil
}

// ResyncMBR rebuilds all four MBR records from the GPT entries in index
// order. Entries that cannot be mirrored are skipped and returned. An MBR
// already in sync is left alone unless force is set.
func (t *Table) ResyncMBR(force bool) (skipped []error, err error) {
	if t.MBRSync && !force {
		return nil, ErrMBRAlreadySynced
	}
	t.MBR.Partitions = [mbr.NumPartitions]mbr.Partition{}
	t.Aliases = [mbr.NumPartitions]Alias{}
	for i, p := range t.Partitions {
		if p.IsEmpty() {
			continue
		}
		if err := t.SyncPartitionToMBR(i); err != nil {
			klog.Warningf("skipping entry %d: %v", i, err)
			skipped = append(skipped, err)
		}
	}
	t.BuildAliasTable()
	return skipped, nil
}

// Protect replaces the MBR records with a single protective entry covering
// the whole disk, as far as 32 bits allow.
func (t *Table) Protect() {
	t.MBR.Partitions = [mbr.NumPartitions]mbr.Partition{}
	t.MBR.Partitions[0] = mbr.Partition{
		Type:     mbr.TypeGPTProtective,
		FirstLBA: 1,
		Sectors:  uint32(min(t.SectorCount-1, math.MaxUint32)),
	}
	t.MBR.Signature = mbr.Signature
	t.BuildAliasTable()
}
