package table

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"gptedit/internal/gpt"
	"gptedit/internal/guid"
	"gptedit/internal/human"
	"gptedit/internal/mbr"
	"gptedit/internal/parttype"
)

// CreateOptions describes a new partition. Empty strings and nil pointers
// mean "choose for me".
type CreateOptions struct {
	Type     string
	Size     string
	Label    string
	FirstLBA *uint64
	LastLBA  *uint64
	System   bool
	GUID     string
}

// EditOptions lists the fields to change; nil fields are kept.
type EditOptions struct {
	Type  *string
	Label *string
	GUID  *string
}

// AttrOp selects how EditAttributes applies its mask.
type AttrOp int

const (
	AttrSet AttrOp = iota
	AttrClear
)

// Create adds a partition and returns its index.
//
// Without explicit LBAs the first gap that fits Size is used, or the whole
// largest gap when Size is empty. An explicit range must lie in one gap.
func (t *Table) Create(opts CreateOptions) (int, error) {
	typeGUID, err := parttype.Resolve(opts.Type)
	if err != nil {
		return 0, err
	}

	var blocks uint64
	if opts.Size != "" {
		bytes, err := human.ParseSize(opts.Size)
		if err != nil {
			return 0, err
		}
		blocks = human.Blocks(bytes, t.SectorSize)
	}

	start, end, err := t.place(blocks, opts.FirstLBA, opts.LastLBA)
	if err != nil {
		return 0, err
	}

	id := guid.New()
	if opts.GUID != "" {
		if id, err = guid.Parse(opts.GUID); err != nil {
			return 0, err
		}
	}

	slot := -1
	for i, p := range t.Partitions {
		if p.IsEmpty() {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, fmt.Errorf("%w: all %d entries are in use", ErrTableFull, len(t.Partitions))
	}

	p := gpt.Partition{
		Type:     typeGUID,
		GUID:     id,
		FirstLBA: start,
		LastLBA:  end,
	}
	if opts.System {
		p.Attributes |= gpt.AttrSystemPartition
	}
	if err := p.SetLabel(opts.Label); err != nil {
		return 0, err
	}

	t.Partitions[slot] = p
	t.UpdateCRC()
	if t.MBRSync {
		if err := t.SyncPartitionToMBR(slot); err != nil {
			klog.V(2).Infof("entry %d not mirrored to MBR: %v", slot, err)
		}
	}
	t.BuildAliasTable()
	return slot, nil
}

// place resolves the start and end LBA of a new partition.
func (t *Table) place(blocks uint64, first, last *uint64) (uint64, uint64, error) {
	var start, end uint64
	switch {
	case first == nil && last == nil && blocks > 0:
		s, ok := t.FindFreeSpace(blocks)
		if !ok {
			return 0, 0, fmt.Errorf("%w: no gap holds %d sectors", ErrNoFreeSpace, blocks)
		}
		start, end = s, s+blocks-1
	case first == nil && last == nil:
		e := t.LargestFreeSpace()
		if e.Length == 0 {
			return 0, 0, fmt.Errorf("%w: the usable range is fully allocated", ErrNoFreeSpace)
		}
		start, end = e.Start, e.End()
	case first != nil:
		start = *first
		switch {
		case last != nil:
			end = *last
		case blocks > 0:
			end = start + blocks - 1
		default:
			e, ok := t.freeSpaceAt(start)
			if !ok {
				return 0, 0, fmt.Errorf("%w: LBA %d is allocated or outside the usable range", ErrNoFreeSpace, start)
			}
			end = e.End()
		}
	default:
		end = *last
		if blocks > 0 {
			if blocks-1 > end {
				return 0, 0, fmt.Errorf("%w: %d sectors cannot end at LBA %d", ErrNoFreeSpace, blocks, end)
			}
			start = end - blocks + 1
		} else {
			e, ok := t.freeSpaceAt(end)
			if !ok {
				return 0, 0, fmt.Errorf("%w: LBA %d is allocated or outside the usable range", ErrNoFreeSpace, end)
			}
			start = e.Start
		}
	}

	if start > end {
		return 0, 0, fmt.Errorf("%w: range %d-%d is empty or wraps", ErrNoFreeSpace, start, end)
	}
	e, ok := t.freeSpaceAt(start)
	if !ok || end > e.End() {
		return 0, 0, fmt.Errorf("%w: range %d-%d is not inside a single free gap", ErrNoFreeSpace, start, end)
	}
	return start, end, nil
}

// Delete clears entry i. When the MBR is in sync its mirror is cleared too.
func (t *Table) Delete(i int) error {
	if _, err := t.Partition(i); err != nil {
		return err
	}
	if slot, ok := t.MBRSlotOf(i); ok && t.MBRSync {
		t.MBR.Partitions[slot] = mbr.Partition{}
	}
	t.Partitions[i] = gpt.Partition{}
	t.UpdateCRC()
	t.BuildAliasTable()
	return nil
}

// Edit changes the type, label or GUID of entry i. A type change also
// updates the MBR mirror when the new type has a legacy code.
func (t *Table) Edit(i int, opts EditOptions) error {
	p, err := t.Partition(i)
	if err != nil {
		return err
	}
	if opts.Type != nil {
		if p.Type, err = parttype.Resolve(*opts.Type); err != nil {
			return err
		}
	}
	if opts.Label != nil {
		if err := p.SetLabel(*opts.Label); err != nil {
			return err
		}
	}
	if opts.GUID != nil {
		if p.GUID, err = guid.Parse(*opts.GUID); err != nil {
			return err
		}
	}

	t.Partitions[i] = p
	if opts.Type != nil {
		if slot, ok := t.MBRSlotOf(i); ok {
			if code, ok := parttype.MBREquivalent(p.Type); ok {
				t.MBR.Partitions[slot].Type = code
			} else {
				klog.Warningf("MBR slot %d keeps type 0x%02x: %s has no MBR equivalent", slot, t.MBR.Partitions[slot].Type, parttype.Name(p.Type))
			}
		}
	}
	t.UpdateCRC()
	t.BuildAliasTable()
	return nil
}

// EditAttributes sets or clears the bits of mask on entry i.
func (t *Table) EditAttributes(i int, op AttrOp, mask uint64) error {
	if _, err := t.Partition(i); err != nil {
		return err
	}
	switch op {
	case AttrSet:
		t.Partitions[i].Attributes |= mask
	case AttrClear:
		t.Partitions[i].Attributes &^= mask
	default:
		return fmt.Errorf("unknown attribute operation %d", op)
	}
	t.UpdateCRC()
	return nil
}

var attrNames = map[string]uint64{
	"system":       gpt.AttrSystemPartition,
	"read-only":    gpt.AttrReadOnly,
	"readonly":     gpt.AttrReadOnly,
	"hidden":       gpt.AttrHidden,
	"no-automount": gpt.AttrNoAutomount,
	"noautomount":  gpt.AttrNoAutomount,
}

// ParseAttributeMask parses a comma separated list of attribute names,
// numbers (decimal or 0x hex) and bit:N terms into a mask.
func ParseAttributeMask(s string) (uint64, error) {
	var mask uint64
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if bit, ok := attrNames[tok]; ok {
			mask |= bit
			continue
		}
		if n, ok := strings.CutPrefix(tok, "bit:"); ok {
			b, err := strconv.ParseUint(n, 10, 8)
			if err != nil || b > 63 {
				return 0, fmt.Errorf("%w: %q is not a bit number 0-63", ErrInvalidAttr, tok)
			}
			mask |= 1 << b
			continue
		}
		v, err := strconv.ParseUint(tok, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAttr, tok)
		}
		mask |= v
	}
	return mask, nil
}

// AttributeNames lists the named bits set in attrs.
func AttributeNames(attrs uint64) []string {
	var names []string
	for _, n := range []string{"system", "read-only", "hidden", "no-automount"} {
		if attrs&attrNames[n] != 0 {
			names = append(names, n)
		}
	}
	return names
}

// CompactAndSort moves used entries to the front in start order. Indices
// held from before the call no longer refer to the same partitions.
func (t *Table) CompactAndSort() {
	SortPartitions(t.Partitions)
	t.UpdateCRC()
	t.BuildAliasTable()
}
