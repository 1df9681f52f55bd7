package table

import (
	"cmp"
	"iter"
	"slices"

	"gptedit/internal/gpt"
)

// Extent is a run of Length sectors starting at Start.
type Extent struct {
	Start  uint64
	Length uint64
}

// End is the last sector of e. It is meaningless for an empty extent.
func (e Extent) End() uint64 {
	return e.Start + e.Length - 1
}

// Contains reports whether lba falls inside e.
func (e Extent) Contains(lba uint64) bool {
	return e.Length > 0 && lba >= e.Start && lba-e.Start < e.Length
}

// comparePartitions orders used entries by start LBA and puts unused
// entries last.
func comparePartitions(a, b gpt.Partition) int {
	ae, be := a.IsEmpty(), b.IsEmpty()
	switch {
	case ae && be:
		return 0
	case ae:
		return 1
	case be:
		return -1
	}
	return cmp.Compare(a.FirstLBA, b.FirstLBA)
}

// SortPartitions sorts parts in place, stably, used entries first by start.
func SortPartitions(parts []gpt.Partition) {
	slices.SortStableFunc(parts, comparePartitions)
}

// FreeSpaces yields the unallocated gaps of the usable range in ascending
// order. Each iteration works on a fresh sorted copy of the table.
func (t *Table) FreeSpaces() iter.Seq[Extent] {
	return func(yield func(Extent) bool) {
		scratch := t.Clone()
		SortPartitions(scratch.Partitions)

		first, last := scratch.Header.FirstUsableLBA, scratch.Header.LastUsableLBA
		if last < first {
			return
		}
		cursor := first
		for _, p := range scratch.Partitions {
			if p.IsEmpty() || p.FirstLBA > last {
				break
			}
			if p.LastLBA < p.FirstLBA || p.LastLBA < cursor {
				continue
			}
			if p.FirstLBA > cursor {
				if !yield(Extent{Start: cursor, Length: p.FirstLBA - cursor}) {
					return
				}
			}
			if p.LastLBA >= last {
				return
			}
			cursor = p.LastLBA + 1
		}
		yield(Extent{Start: cursor, Length: last - cursor + 1})
	}
}

// FindFreeSpace returns the start of the first gap that holds blocks
// sectors.
func (t *Table) FindFreeSpace(blocks uint64) (uint64, bool) {
	if blocks == 0 {
		return 0, false
	}
	for e := range t.FreeSpaces() {
		if e.Length >= blocks {
			return e.Start, true
		}
	}
	return 0, false
}

// LargestFreeSpace returns the longest gap, the earliest one on ties, or a
// zero Extent when the table is full.
func (t *Table) LargestFreeSpace() Extent {
	var best Extent
	for e := range t.FreeSpaces() {
		if e.Length > best.Length {
			best = e
		}
	}
	return best
}

// freeSpaceAt returns the gap containing lba.
func (t *Table) freeSpaceAt(lba uint64) (Extent, bool) {
	for e := range t.FreeSpaces() {
		if e.Contains(lba) {
			return e, true
		}
	}
	return Extent{}, false
}
