package hexdump

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpLine(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Dump(&sb, 0x200, []byte("EFI PART\x00\x00\x01\x00\x5c\x00\x00\x00")))
	assert.Equal(t,
		"00000200  45 46 49 20 50 41 52 54  00 00 01 00 5C 00 00 00   |EFI PART....\\...|\n",
		sb.String())
}

func TestDumpShortRow(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Dump(&sb, 0, []byte{0x55, 0xaa}))
	assert.Equal(t, "00000000  55 AA                                              |U.|\n", sb.String())
}

func TestDumpElidesZeroRuns(t *testing.T) {
	data := make([]byte, 512)
	data[0] = 1
	data[510], data[511] = 0x55, 0xaa

	var sb strings.Builder
	require.NoError(t, Dump(&sb, 0, data))
	lines := strings.Split(strings.TrimSuffix(sb.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "00000000  01 00"))
	assert.True(t, strings.HasPrefix(lines[1], "00000010  00 00"))
	assert.Equal(t, "*", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "000001F0  00 00"))
}

func TestDumpAllZeroKeepsLastRow(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Dump(&sb, 0, make([]byte, 64)))
	lines := strings.Split(strings.TrimSuffix(sb.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "*", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "00000030"))
}
