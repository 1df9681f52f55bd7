package table

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gptedit/internal/gpt"
	"gptedit/internal/guid"
	"gptedit/internal/human"
	"gptedit/internal/parttype"
)

func ptr[T any](v T) *T { return &v }

func TestCreateFirstFit(t *testing.T) {
	tbl := newTable(t)
	i, err := tbl.Create(CreateOptions{Type: "linux", Size: "1M", Label: "data"})
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	p := tbl.Partitions[i]
	assert.Equal(t, uint64(34), p.FirstLBA)
	assert.Equal(t, uint64(34+2047), p.LastLBA)
	assert.Equal(t, "data", p.Label())
	assert.Equal(t, guid.MustParse(linuxFS), p.Type)
	assert.False(t, p.GUID.IsEmpty())
	assert.True(t, tbl.CRCValid())

	slot, ok := tbl.MBRSlotOf(i)
	require.True(t, ok)
	assert.Equal(t, uint8(0x83), tbl.MBR.Partitions[slot].Type)
	assert.True(t, tbl.MBRSync)
}

func TestCreateLargestGap(t *testing.T) {
	tbl := newTable(t)
	tbl.Partitions[0] = entry(linuxFS, 134, 999)
	tbl.UpdateCRC()

	i, err := tbl.Create(CreateOptions{Type: "swap"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), tbl.Partitions[i].FirstLBA)
	assert.Equal(t, uint64(8157), tbl.Partitions[i].LastLBA)
}

func TestCreateExplicitRange(t *testing.T) {
	testCases := []struct {
		name      string
		opts      CreateOptions
		wantFirst uint64
		wantLast  uint64
	}{
		{"first and last", CreateOptions{FirstLBA: ptr[uint64](2048), LastLBA: ptr[uint64](4095)}, 2048, 4095},
		{"first and size", CreateOptions{FirstLBA: ptr[uint64](2048), Size: "512K"}, 2048, 3071},
		{"first to gap end", CreateOptions{FirstLBA: ptr[uint64](2048)}, 2048, 8157},
		{"last and size", CreateOptions{LastLBA: ptr[uint64](4095), Size: "512K"}, 3072, 4095},
		{"gap start to last", CreateOptions{LastLBA: ptr[uint64](4095)}, 34, 4095},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tbl := newTable(t)
			tc.opts.Type = "linux"
			i, err := tbl.Create(tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.wantFirst, tbl.Partitions[i].FirstLBA)
			assert.Equal(t, tc.wantLast, tbl.Partitions[i].LastLBA)
		})
	}
}

func TestCreateRejects(t *testing.T) {
	tbl := newTable(t)
	tbl.Partitions[0] = entry(linuxFS, 1000, 1999)
	tbl.UpdateCRC()
	before := tbl.Clone()

	testCases := []struct {
		name string
		opts CreateOptions
		want error
	}{
		{"unknown type", CreateOptions{Type: "nope"}, ErrInvalidType},
		{"empty type guid", CreateOptions{Type: "00000000-0000-0000-0000-000000000000"}, ErrInvalidType},
		{"bad size", CreateOptions{Type: "linux", Size: "lots"}, ErrInvalidSize},
		{"zero size", CreateOptions{Type: "linux", Size: "0"}, ErrInvalidSize},
		{"too big", CreateOptions{Type: "linux", Size: "1G"}, ErrNoFreeSpace},
		{"start allocated", CreateOptions{Type: "linux", FirstLBA: ptr[uint64](1500)}, ErrNoFreeSpace},
		{"spans partition", CreateOptions{Type: "linux", FirstLBA: ptr[uint64](500), LastLBA: ptr[uint64](2500)}, ErrNoFreeSpace},
		{"before usable", CreateOptions{Type: "linux", FirstLBA: ptr[uint64](1), LastLBA: ptr[uint64](40)}, ErrNoFreeSpace},
		{"reversed", CreateOptions{Type: "linux", FirstLBA: ptr[uint64](600), LastLBA: ptr[uint64](500)}, ErrNoFreeSpace},
		{"size before disk start", CreateOptions{Type: "linux", LastLBA: ptr[uint64](10), Size: "1M"}, ErrNoFreeSpace},
		{"label too long", CreateOptions{Type: "linux", Size: "1K", Label: "abcdefghijklmnopqrstuvwxyz0123456789x"}, gpt.ErrNameTooLong},
		{"bad guid", CreateOptions{Type: "linux", Size: "1K", GUID: "xyz"}, guid.ErrInvalidFormat},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tbl.Create(tc.opts)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, tbl, "table unchanged on error")
		})
	}
	assert.ErrorIs(t, ErrInvalidType, parttype.ErrInvalidType)
	assert.ErrorIs(t, ErrInvalidSize, human.ErrInvalidSize)
}

func TestCreateTableFull(t *testing.T) {
	tbl := newTable(t)
	for i := range tbl.Partitions {
		first := uint64(34 + i*10)
		tbl.Partitions[i] = entry(linuxFS, first, first+9)
	}
	tbl.UpdateCRC()
	_, err := tbl.Create(CreateOptions{Type: "linux", Size: "1K"})
	assert.ErrorIs(t, err, ErrTableFull)
}

func TestCreateOptions(t *testing.T) {
	tbl := newTable(t)
	id := "01234567-89ab-cdef-0123-456789abcdef"
	i, err := tbl.Create(CreateOptions{Type: "bios", Size: "1M", System: true, GUID: id})
	require.NoError(t, err)
	p := tbl.Partitions[i]
	assert.Equal(t, guid.MustParse(id), p.GUID)
	assert.Equal(t, gpt.AttrSystemPartition, p.Attributes)

	// BIOS boot has no MBR code, so the MBR stays empty and in sync.
	_, ok := tbl.MBRSlotOf(i)
	assert.False(t, ok)
	assert.True(t, tbl.MBRSync)
}

// Any sequence of successful creates leaves the table without overlaps.
func TestCreateNeverOverlaps(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := range 50 {
		tbl := newTable(t)
		for range 40 {
			opts := CreateOptions{Type: "linux"}
			switch rng.IntN(3) {
			case 0:
				opts.Size = human.FormatBytes(rng.Uint64N(200)*512 + 512)
			case 1:
				opts.FirstLBA = ptr(34 + rng.Uint64N(8124))
				opts.Size = "10K"
			}
			if _, err := tbl.Create(opts); err != nil {
				require.ErrorIs(t, err, ErrNoFreeSpace, "round %d", round)
			}
			if rng.IntN(4) == 0 && tbl.Used() > 0 {
				used := slices.IndexFunc(tbl.Partitions, func(p gpt.Partition) bool { return !p.IsEmpty() })
				require.NoError(t, tbl.Delete(used))
			}
		}
		require.NoError(t, tbl.Verify(), "round %d", round)
	}
}

func TestCreateDeleteRestoresArray(t *testing.T) {
	tbl := populated(t)
	before := gpt.MarshalPartitions(tbl.Partitions)
	beforeMBR := tbl.MBR

	i, err := tbl.Create(CreateOptions{Type: "linux", Size: "4K"})
	require.NoError(t, err)
	require.NoError(t, tbl.Delete(i))

	assert.Equal(t, before, gpt.MarshalPartitions(tbl.Partitions))
	assert.Equal(t, beforeMBR, tbl.MBR)
	assert.True(t, tbl.CRCValid())
	assert.True(t, tbl.MBRSync)
}

func TestDelete(t *testing.T) {
	tbl := populated(t)
	assert.ErrorIs(t, tbl.Delete(9), ErrInvalidIndex)
	assert.ErrorIs(t, tbl.Delete(-1), ErrInvalidIndex)

	require.NoError(t, tbl.Delete(0))
	assert.True(t, tbl.Partitions[0].IsEmpty())
	assert.True(t, tbl.MBR.Partitions[0].IsEmpty())
	assert.False(t, tbl.MBR.Partitions[1].IsEmpty())
	assert.True(t, tbl.MBRSync)
}

func TestDeleteLeavesMBROutOfSync(t *testing.T) {
	tbl := populated(t)
	tbl.MBR.Partitions[3] = tbl.MBR.Partitions[1]
	tbl.MBR.Partitions[3].FirstLBA++
	tbl.BuildAliasTable()
	require.False(t, tbl.MBRSync)

	require.NoError(t, tbl.Delete(0))
	assert.False(t, tbl.MBR.Partitions[0].IsEmpty(), "MBR is only maintained while in sync")
}

func TestEdit(t *testing.T) {
	tbl := populated(t)

	require.NoError(t, tbl.Edit(1, EditOptions{Type: ptr("swap"), Label: ptr("scratch")}))
	p := tbl.Partitions[1]
	assert.Equal(t, "Linux/Swap", parttype.Name(p.Type))
	assert.Equal(t, "scratch", p.Label())
	assert.Equal(t, uint8(0x82), tbl.MBR.Partitions[1].Type)
	assert.True(t, tbl.CRCValid())

	require.NoError(t, tbl.Edit(1, EditOptions{Type: ptr("bios")}))
	assert.Equal(t, uint8(0x82), tbl.MBR.Partitions[1].Type, "no equivalent keeps the old code")

	id := "11111111-2222-3333-4444-555555555555"
	require.NoError(t, tbl.Edit(0, EditOptions{GUID: ptr(id)}))
	assert.Equal(t, guid.MustParse(id), tbl.Partitions[0].GUID)

	before := tbl.Clone()
	assert.ErrorIs(t, tbl.Edit(0, EditOptions{Label: ptr("ok"), Type: ptr("bogus")}), ErrInvalidType)
	assert.ErrorIs(t, tbl.Edit(0, EditOptions{Label: ptr("0123456789012345678901234567890123456")}), gpt.ErrNameTooLong)
	assert.ErrorIs(t, tbl.Edit(7, EditOptions{Label: ptr("x")}), ErrInvalidIndex)
	assert.Equal(t, before, tbl)
}

func TestEditAttributes(t *testing.T) {
	tbl := populated(t)
	require.NoError(t, tbl.EditAttributes(0, AttrSet, gpt.AttrHidden|gpt.AttrReadOnly))
	assert.Equal(t, gpt.AttrHidden|gpt.AttrReadOnly, tbl.Partitions[0].Attributes)
	require.NoError(t, tbl.EditAttributes(0, AttrClear, gpt.AttrReadOnly))
	assert.Equal(t, gpt.AttrHidden, tbl.Partitions[0].Attributes)
	assert.True(t, tbl.CRCValid())

	assert.ErrorIs(t, tbl.EditAttributes(50, AttrSet, 1), ErrInvalidIndex)
}

func TestParseAttributeMask(t *testing.T) {
	testCases := []struct {
		in   string
		want uint64
	}{
		{"system", gpt.AttrSystemPartition},
		{"Hidden, no-automount", gpt.AttrHidden | gpt.AttrNoAutomount},
		{"readonly,bit:2", gpt.AttrReadOnly | 1<<2},
		{"0x4", 4},
		{"5", 5},
		{"bit:63", 1 << 63},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAttributeMask(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
	for _, bad := range []string{"", "shiny", "bit:64", "bit:x", "-1"} {
		_, err := ParseAttributeMask(bad)
		assert.ErrorIs(t, err, ErrInvalidAttr, bad)
	}
}

func TestAttributeNames(t *testing.T) {
	assert.Empty(t, AttributeNames(0))
	assert.Equal(t, []string{"system", "hidden"}, AttributeNames(gpt.AttrSystemPartition|gpt.AttrHidden|1<<5))
}

func TestCompactAndSort(t *testing.T) {
	tbl := newTable(t)
	tbl.Partitions[9] = entry(linuxFS, 5000, 5999)
	tbl.Partitions[3] = entry(linuxFS, 100, 199)
	tbl.Partitions[20] = entry(linuxFS, 2000, 2999)
	tbl.UpdateCRC()
	require.NoError(t, tbl.SyncPartitionToMBR(9))

	tbl.CompactAndSort()
	starts := []uint64{tbl.Partitions[0].FirstLBA, tbl.Partitions[1].FirstLBA, tbl.Partitions[2].FirstLBA}
	assert.Equal(t, []uint64{100, 2000, 5000}, starts)
	for _, p := range tbl.Partitions[3:] {
		assert.True(t, p.IsEmpty())
	}
	assert.True(t, tbl.CRCValid())

	i, ok := tbl.AliasOf(0)
	require.True(t, ok)
	assert.Equal(t, 2, i, "alias follows the moved entry")
}
