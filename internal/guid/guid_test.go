package guid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMixedEndian(t *testing.T) {
	g, err := Parse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	require.NoError(t, err)

	want := GUID{
		0x28, 0x73, 0x2a, 0xc1,
		0x1f, 0xf8,
		0xd2, 0x11,
		0xba, 0x4b,
		0x00, 0xa0, 0xc9, 0x3e, 0xc9, 0x3b,
	}
	assert.Equal(t, want, g)
	assert.Equal(t, "c12a7328-f81f-11d2-ba4b-00a0c93ec93b", g.String())
}

func TestParseHexStream(t *testing.T) {
	hyphenated, err := Parse("ebd0a0a2-b9e5-4433-87c0-68b6b72699c7")
	require.NoError(t, err)
	stream, err := Parse("ebd0a0a2b9e5443387c068b6b72699c7")
	require.NoError(t, err)
	assert.Equal(t, hyphenated, stream)
}

func TestParseInvalid(t *testing.T) {
	testCases := []string{
		"",
		"not-a-guid",
		"c12a7328-f81f-11d2-ba4b-00a0c93ec93",
		"c12a7328-f81f-11d2-ba4b-00a0c93ec93bb",
		"g12a7328-f81f-11d2-ba4b-00a0c93ec93b",
		"{c12a7328-f81f-11d2-ba4b-00a0c93ec93b}",
		"urn:uuid:c12a7328-f81f-11d2-ba4b-00a0c93ec93b",
		"zbd0a0a2b9e5443387c068b6b72699c7",
	}
	for _, s := range testCases {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalidFormat, "input %q", s)
	}
}

func TestStringRoundTrip(t *testing.T) {
	testCases := []GUID{
		Empty,
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		New(),
		New(),
	}
	for i, g := range testCases {
		back, err := Parse(g.String())
		require.NoError(t, err, "case %d", i+1)
		assert.Equal(t, g, back, "case %d", i+1)
	}
}

func TestNewIsUnique(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsEmpty())
	assert.True(t, Empty.IsEmpty())
}

func TestUUIDConversion(t *testing.T) {
	g := New()
	assert.Equal(t, g, FromUUID(ToUUID(g)))
}
