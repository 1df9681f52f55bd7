package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gptedit/internal/device"
	"gptedit/internal/table"
)

func sampleTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.Blank(512, 4096)
	require.NoError(t, err)
	_, err = tbl.Create(table.CreateOptions{Type: "linux", Size: "100K", Label: "root"})
	require.NoError(t, err)
	return tbl
}

func meta(compression string) Meta {
	return Meta{SectorSize: 512, SectorCount: 4096, Device: "/dev/sdz", Compression: compression}
}

func TestExportManifest(t *testing.T) {
	dir := t.TempDir()
	tbl := sampleTable(t)
	manifest := filepath.Join(dir, "table.gpt")

	data, err := Export(manifest, filepath.Join(dir, "table.img"), meta(""), tbl.Records())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "table.img"), data)

	content, err := os.ReadFile(manifest)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, []string{
		"# gptedit backup",
		"#sector_size: 512",
		"#sector_count: 4096",
		"#device: /dev/sdz",
		"#compression: none",
		"dd if=table.img of=/dev/sdz bs=512 skip=0 seek=0 count=1 # mbr offset=0",
		"dd if=table.img of=/dev/sdz bs=512 skip=1 seek=1 count=1 # gpt_header offset=512",
		"dd if=table.img of=/dev/sdz bs=512 skip=2 seek=2 count=32 # gpt_partitions offset=1024",
		"dd if=table.img of=/dev/sdz bs=512 skip=34 seek=4062 count=32 # alt_gpt_partitions offset=2079744",
		"dd if=table.img of=/dev/sdz bs=512 skip=66 seek=4095 count=1 # alt_gpt_header offset=2096640",
	}, lines)

	info, err := os.Stat(data)
	require.NoError(t, err)
	assert.Equal(t, int64(67*512), info.Size())
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, c := range Compressions {
		t.Run(c, func(t *testing.T) {
			dir := t.TempDir()
			tbl := sampleTable(t)
			manifest := filepath.Join(dir, "t.gpt")

			data, err := Export(manifest, filepath.Join(dir, "t.img"), meta(c), tbl.Records())
			require.NoError(t, err)
			ext, err := Extension(c)
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(data, ".img"+ext))

			got, err := Import(manifest, meta(""))
			require.NoError(t, err)
			assert.Empty(t, got.Warnings)
			assert.Equal(t, c, got.Meta.Compression)
			assert.Equal(t, tbl.Records(), got.Records)

			restored, err := table.FromRecords(got.Records, 512, 4096)
			require.NoError(t, err)
			assert.Equal(t, tbl.Partitions, restored.Partitions)
			assert.Equal(t, tbl.Header, restored.Header)
		})
	}
}

func TestImportChecksGeometry(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "t.gpt")
	_, err := Export(manifest, filepath.Join(dir, "t.img"), meta(""), sampleTable(t).Records())
	require.NoError(t, err)

	other := meta("")
	other.SectorCount = 8192
	_, err = Import(manifest, other)
	assert.ErrorIs(t, err, table.ErrImportFormat)

	other = meta("")
	other.Device = "/dev/sdy"
	got, err := Import(manifest, other)
	require.NoError(t, err)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "/dev/sdz")
}

func TestImportAbsoluteBlobPath(t *testing.T) {
	dir := t.TempDir()
	blobDir := filepath.Join(dir, "blobs")
	require.NoError(t, os.Mkdir(blobDir, 0o700))
	manifest := filepath.Join(dir, "t.gpt")
	_, err := Export(manifest, filepath.Join(blobDir, "t.img"), meta("gzip"), sampleTable(t).Records())
	require.NoError(t, err)

	content, err := os.ReadFile(manifest)
	require.NoError(t, err)
	assert.Contains(t, string(content), "if="+filepath.Join(blobDir, "t.img.gz"))

	got, err := Import(manifest, meta(""))
	require.NoError(t, err)
	assert.Len(t, got.Records, 5)
}

func TestExportImportPathsWithSpaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "VM disks")
	require.NoError(t, os.Mkdir(dir, 0o700))
	tbl := sampleTable(t)
	manifest := filepath.Join(dir, "my table.gpt")
	m := meta("gzip")
	m.Device = "/tmp/VM disks/it's #1.img"

	_, err := Export(manifest, manifest+".img", m, tbl.Records())
	require.NoError(t, err)

	content, err := os.ReadFile(manifest)
	require.NoError(t, err)
	assert.Contains(t, string(content), `dd if='my table.gpt.img.gz' of='/tmp/VM disks/it'\''s #1.img' bs=512 skip=0 seek=0 count=1 # mbr offset=0`)

	got, err := Import(manifest, m)
	require.NoError(t, err)
	assert.Empty(t, got.Warnings)
	assert.Equal(t, m.Device, got.Meta.Device)
	assert.Equal(t, tbl.Records(), got.Records)
}

func TestParseDDLine(t *testing.T) {
	testCases := []struct {
		line   string
		input  string
		record string
	}{
		{"dd if=t.img of=/dev/sdz bs=512 skip=0 seek=0 count=1 # mbr offset=0", "t.img", "mbr"},
		{"dd if='a b#c.img' of=/dev/sdz bs=512 skip=0 seek=0 count=1 # mbr", "a b#c.img", "mbr"},
		{`dd if="a b.img" of=x bs=512 skip=0 seek=0 count=1 # gpt_header`, "a b.img", "gpt_header"},
		{`dd if=a\ b.img of=x bs=512 skip=0 seek=0 count=1 #gpt_partitions`, "a b.img", "gpt_partitions"},
	}
	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			d, err := parseDDLine(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.input, d.input)
			assert.Equal(t, tc.record, d.record)
			assert.Equal(t, uint64(512), d.bs)
			assert.Equal(t, uint64(1), d.count)
		})
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "/dev/sdz", shellQuote("/dev/sdz"))
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, "'a b'", shellQuote("a b"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestImportRejectsMalformed(t *testing.T) {
	header := "#sector_size: 512\n#sector_count: 4096\n#device: /dev/sdz\n"
	testCases := []struct {
		name string
		body string
	}{
		{"no records", header},
		{"not dd", header + "cp a b # mbr\n"},
		{"missing count", header + "dd if=t.img bs=512 skip=0 seek=0 # mbr\n"},
		{"bad number", header + "dd if=t.img bs=512 skip=x seek=0 count=1 # mbr\n"},
		{"no name", header + "dd if=t.img bs=512 skip=0 seek=0 count=1\n"},
		{"wrong bs", header + "dd if=t.img bs=4096 skip=0 seek=0 count=1 # mbr\n"},
		{"past blob end", header + "dd if=t.img bs=512 skip=1 seek=0 count=1 # mbr\n"},
		{"bad sector size", "#sector_size: lots\n"},
		{"unterminated quote", header + "dd if='t.img bs=512 skip=0 seek=0 count=1 # mbr\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "t.img"), make([]byte, 512), 0o600))
			manifest := filepath.Join(dir, "t.gpt")
			require.NoError(t, os.WriteFile(manifest, []byte(tc.body), 0o600))

			_, err := Import(manifest, meta(""))
			assert.ErrorIs(t, err, table.ErrImportFormat)
		})
	}
}

func TestExtension(t *testing.T) {
	_, err := Extension("zip")
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
	ext, err := Extension("zstd")
	require.NoError(t, err)
	assert.Equal(t, ".zst", ext)
}

func TestSnapshot(t *testing.T) {
	dev := device.NewMemory("/dev/sdz", 512, 4096)
	old := sampleTable(t)
	for _, r := range old.Records() {
		require.NoError(t, dev.WriteSectors(r.LBA, r.Data))
	}

	replacement, err := table.Blank(512, 4096)
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "backups")

	manifest, err := Snapshot(dev, dir, "zstd", replacement.Records())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(manifest))
	assert.True(t, strings.HasPrefix(filepath.Base(manifest), "sdz-"))
	assert.True(t, strings.HasSuffix(manifest, ".gpt"))

	got, err := Import(manifest, Meta{SectorSize: 512, SectorCount: 4096, Device: "/dev/sdz"})
	require.NoError(t, err)
	assert.Equal(t, old.Records(), got.Records, "the snapshot holds what was on disk")
}

func TestSnapshotReadFailure(t *testing.T) {
	dev := device.NewMemory("/dev/sdz", 512, 16)
	records := []table.Record{{Name: "mbr", LBA: 100, Blocks: 1, Data: make([]byte, 512)}}
	_, err := Snapshot(dev, t.TempDir(), "", records)
	assert.ErrorIs(t, err, ErrBackupFailed)
}
