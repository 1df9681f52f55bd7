package table

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gptedit/internal/gpt"
	"gptedit/internal/mbr"
)

func TestSyncScenario(t *testing.T) {
	tbl, err := Blank(512, 1_000_000)
	require.NoError(t, err)
	tbl.Partitions[0] = entry(linuxFS, 2048, 206847)
	tbl.UpdateCRC()
	tbl.BuildAliasTable()

	require.NoError(t, tbl.SyncPartitionToMBR(0))
	mp := tbl.MBR.Partitions[0]
	assert.Equal(t, uint8(0x83), mp.Type)
	assert.Equal(t, uint32(2048), mp.FirstLBA)
	assert.Equal(t, uint32(204800), mp.Sectors)
	assert.Equal(t, mbr.CHS{}, mp.First)
	assert.Equal(t, mbr.CHS{}, mp.Last)

	tbl.BuildAliasTable()
	assert.True(t, tbl.MBRSync)
	i, ok := tbl.AliasOf(0)
	require.True(t, ok)
	assert.Equal(t, 0, i)
}

func TestIsMBRRepresentable(t *testing.T) {
	testCases := []struct {
		name  string
		first uint64
		last  uint64
		want  bool
	}{
		{"small", 2048, 4095, true},
		{"single sector", 100, 100, true},
		{"start at 32-bit limit", math.MaxUint32, math.MaxUint32, true},
		{"start beyond 32 bits", math.MaxUint32 + 1, math.MaxUint32 + 1, false},
		{"largest count", 1, math.MaxUint32, true},
		{"count overflows", 1, math.MaxUint32 + 1, false},
		{"reversed", 10, 9, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsMBRRepresentable(entry(linuxFS, tc.first, tc.last)))
		})
	}
	assert.False(t, IsMBRRepresentable(gpt.Partition{}))
}

func TestSyncErrors(t *testing.T) {
	tbl := newTable(t)
	tbl.Partitions[0] = entry(biosBoot, 34, 2047)
	tbl.UpdateCRC()

	err := tbl.SyncPartitionToMBR(0)
	assert.ErrorIs(t, err, ErrNoMBREquivalent)
	assert.True(t, tbl.MBR.Partitions[0].IsEmpty(), "table unchanged on error")

	assert.ErrorIs(t, tbl.SyncPartitionToMBR(5), ErrInvalidIndex)

	big, err := Blank(512, 1<<33)
	require.NoError(t, err)
	big.Partitions[0] = entry(linuxFS, 1<<32+10, 1<<32+20)
	assert.ErrorIs(t, big.SyncPartitionToMBR(0), ErrNotRepresentable)
}

func TestSyncMBRFull(t *testing.T) {
	tbl := newTable(t)
	for i := range 5 {
		first := uint64(100 + i*100)
		tbl.Partitions[i] = entry(linuxFS, first, first+49)
	}
	tbl.UpdateCRC()
	for i := range 4 {
		require.NoError(t, tbl.SyncPartitionToMBR(i))
	}
	err := tbl.SyncPartitionToMBR(4)
	assert.ErrorIs(t, err, ErrMBRFull)
}

func TestSyncIdempotent(t *testing.T) {
	tbl := newTable(t)
	tbl.Partitions[0] = entry(linuxFS, 100, 199)
	tbl.UpdateCRC()

	require.NoError(t, tbl.SyncPartitionToMBR(0))
	before := tbl.MBR
	require.NoError(t, tbl.SyncPartitionToMBR(0))
	assert.Equal(t, before, tbl.MBR)
	assert.True(t, tbl.MBR.Partitions[1].IsEmpty())
}

func TestAliasSymmetry(t *testing.T) {
	tbl := populated(t)
	tbl.Partitions[5] = entry(biosBoot, 7000, 7100)
	tbl.UpdateCRC()
	tbl.BuildAliasTable()

	for slot := range mbr.NumPartitions {
		i, ok := tbl.AliasOf(slot)
		if !ok {
			continue
		}
		back, ok := tbl.MBRSlotOf(i)
		require.True(t, ok)
		assert.Equal(t, slot, back)
		p := tbl.Partitions[i]
		mp := tbl.MBR.Partitions[slot]
		assert.Equal(t, p.FirstLBA, uint64(mp.FirstLBA))
		assert.Equal(t, p.LastLBA, mp.LastLBA())
	}
	_, ok := tbl.MBRSlotOf(5)
	assert.False(t, ok)

	before := tbl.Aliases
	tbl.BuildAliasTable()
	assert.Equal(t, before, tbl.Aliases)
}

func TestResyncMBR(t *testing.T) {
	tbl := populated(t)
	_, err := tbl.ResyncMBR(false)
	assert.ErrorIs(t, err, ErrMBRAlreadySynced)

	tbl.Partitions[5] = entry(biosBoot, 7000, 7100)
	tbl.UpdateCRC()
	skipped, err := tbl.ResyncMBR(true)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.ErrorIs(t, skipped[0], ErrNoMBREquivalent)
	assert.True(t, tbl.MBRSync)
	assert.Equal(t, uint8(0xef), tbl.MBR.Partitions[0].Type)
	assert.Equal(t, uint8(0x83), tbl.MBR.Partitions[1].Type)
	assert.True(t, tbl.MBR.Partitions[2].IsEmpty())

	// A stray record makes the MBR out of sync, after which no force is needed.
	tbl.MBR.Partitions[3] = mbr.Partition{Type: 0x07, FirstLBA: 5000, Sectors: 10}
	tbl.BuildAliasTable()
	require.False(t, tbl.MBRSync)
	_, err = tbl.ResyncMBR(false)
	require.NoError(t, err)
	assert.True(t, tbl.MBR.Partitions[3].IsEmpty())
	assert.True(t, tbl.MBRSync)
}

func TestProtect(t *testing.T) {
	tbl := populated(t)
	tbl.Protect()

	mp := tbl.MBR.Partitions[0]
	assert.Equal(t, uint8(mbr.TypeGPTProtective), mp.Type)
	assert.Equal(t, uint32(1), mp.FirstLBA)
	assert.Equal(t, uint32(testSectorCount-1), mp.Sectors)
	for _, other := range tbl.MBR.Partitions[1:] {
		assert.True(t, other.IsEmpty())
	}
	assert.Equal(t, uint16(mbr.Signature), tbl.MBR.Signature)
	// No GPT entry ends on the last sector, so the protective record is unmatched.
	assert.False(t, tbl.MBRSync)

	_, err := tbl.ResyncMBR(false)
	require.NoError(t, err)
	assert.NotEqual(t, uint8(mbr.TypeGPTProtective), tbl.MBR.Partitions[0].Type)
}

func TestProtectiveMatchesByEnd(t *testing.T) {
	tbl := newTable(t)
	last := tbl.Header.LastUsableLBA
	tbl.Partitions[0] = entry(linuxFS, 34, last)
	tbl.MBR.Partitions[0] = mbr.Partition{Type: mbr.TypeGPTProtective, FirstLBA: 1, Sectors: uint32(last)}
	tbl.BuildAliasTable()

	i, ok := tbl.AliasOf(0)
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.True(t, tbl.MBRSync)
}
