// Package backup saves partition table records to a flat blob plus a
// manifest of dd command lines, and reads them back.
package backup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"k8s.io/klog/v2"

	"gptedit/internal/device"
	"gptedit/internal/human"
	"gptedit/internal/table"
)

const manifestTitle = "# gptedit backup"

// ErrBackupFailed is returned when a snapshot of the on-disk table cannot
// be taken.
var ErrBackupFailed = errors.New("backup failed")

// Meta describes the device a backup was taken from.
type Meta struct {
	SectorSize  uint64
	SectorCount uint64
	Device      string
	Compression string
}

// Imported is the result of Import.
type Imported struct {
	Meta     Meta
	Records  []table.Record
	Warnings []string
}

// Export writes records to a blob next to dataPath and a manifest at
// manifestPath. The blob gets the compression suffix, if any; its final
// path is returned.
func Export(manifestPath, dataPath string, meta Meta, records []table.Record) (string, error) {
	if meta.Compression == "" {
		meta.Compression = CompressionNone
	}
	ext, err := Extension(meta.Compression)
	if err != nil {
		return "", err
	}
	dataPath += ext

	blob, err := os.Create(dataPath)
	if err != nil {
		return "", fmt.Errorf("failed to create backup data file: %w", err)
	}
	defer func() {
		_ = blob.Close()
	}()

	cw := &countingWriter{w: blob}
	w, err := newCompressionWriter(meta.Compression, cw)
	if err != nil {
		return "", err
	}

	var manifest bytes.Buffer
	fmt.Fprintln(&manifest, manifestTitle)
	fmt.Fprintf(&manifest, "#sector_size: %d\n", meta.SectorSize)
	fmt.Fprintf(&manifest, "#sector_count: %d\n", meta.SectorCount)
	fmt.Fprintf(&manifest, "#device: %s\n", meta.Device)
	fmt.Fprintf(&manifest, "#compression: %s\n", meta.Compression)

	blobRef := dataPath
	if filepath.Dir(dataPath) == filepath.Dir(manifestPath) {
		blobRef = filepath.Base(dataPath)
	}

	var skip uint64
	for _, r := range records {
		if uint64(len(r.Data)) != r.Blocks*meta.SectorSize {
			return "", fmt.Errorf("record %s holds %d bytes, expected %d", r.Name, len(r.Data), r.Blocks*meta.SectorSize)
		}
		if _, err := w.Write(r.Data); err != nil {
			return "", fmt.Errorf("failed to write record %s: %w", r.Name, err)
		}
		fmt.Fprintf(&manifest, "dd if=%s of=%s bs=%d skip=%d seek=%d count=%d # %s offset=%d\n",
			shellQuote(blobRef), shellQuote(meta.Device), meta.SectorSize, skip, r.LBA, r.Blocks, r.Name, r.LBA*meta.SectorSize)
		skip += r.Blocks
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish %s stream: %w", meta.Compression, err)
	}
	if err := blob.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync backup data file: %w", err)
	}

	if err := os.WriteFile(manifestPath, manifest.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	klog.V(2).Infof("exported %d records (%s, %s on disk) to %s", len(records),
		human.FormatBytes(skip*meta.SectorSize), human.FormatBytes(uint64(cw.count)), manifestPath)
	return dataPath, nil
}

type ddLine struct {
	input  string
	bs     uint64
	skip   uint64
	seek   uint64
	count  uint64
	record string
}

// shellQuote returns s as a single shell word. Plain paths are left
// untouched so manifests stay readable.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:+,@%=", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// splitComment cuts line at the first # that starts a shell comment, that
// is one outside quotes and at the start of a word.
func splitComment(line string) (string, string) {
	var single, double, escaped bool
	for i, r := range line {
		switch {
		case escaped:
			escaped = false
		case single:
			single = r != '\''
		case r == '\\':
			escaped = true
		case double:
			double = r != '"'
		case r == '\'':
			single = true
		case r == '"':
			double = true
		case r == '#' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t'):
			return line[:i], line[i+1:]
		}
	}
	return line, ""
}

func parseDDLine(line string) (ddLine, error) {
	var d ddLine
	cmd, comment := splitComment(line)
	fields, err := shellwords.Parse(cmd)
	if err != nil {
		return d, err
	}
	if len(fields) == 0 || fields[0] != "dd" {
		return d, fmt.Errorf("not a dd command: %q", line)
	}
	nums := map[string]*uint64{"bs": &d.bs, "skip": &d.skip, "seek": &d.seek, "count": &d.count}
	seen := map[string]bool{}
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return d, fmt.Errorf("malformed operand %q", f)
		}
		seen[key] = true
		if p, ok := nums[key]; ok {
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return d, fmt.Errorf("operand %s: %w", key, err)
			}
			*p = n
			continue
		}
		if key == "if" {
			d.input = value
		}
	}
	for _, key := range []string{"if", "bs", "skip", "seek", "count"} {
		if !seen[key] {
			return d, fmt.Errorf("missing operand %s", key)
		}
	}
	name := strings.Fields(comment)
	if len(name) == 0 {
		return d, errors.New("missing record name")
	}
	d.record = name[0]
	return d, nil
}

// Import reads a manifest written by Export. Sector geometry must match
// expect; a different device name only produces a warning.
func Import(manifestPath string, expect Meta) (*Imported, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	res := &Imported{Meta: Meta{Compression: CompressionNone}}
	var lines []ddLine
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || line == manifestTitle:
		case strings.HasPrefix(line, "#"):
			key, value, ok := strings.Cut(strings.TrimPrefix(line, "#"), ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.TrimSpace(key) {
			case "sector_size":
				res.Meta.SectorSize, err = strconv.ParseUint(value, 10, 64)
			case "sector_count":
				res.Meta.SectorCount, err = strconv.ParseUint(value, 10, 64)
			case "device":
				res.Meta.Device = value
			case "compression":
				res.Meta.Compression = value
			default:
				klog.V(2).Infof("%s:%d: ignoring key %q", manifestPath, lineNo, key)
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", table.ErrImportFormat, manifestPath, lineNo, err)
			}
		default:
			d, err := parseDDLine(line)
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%d: %v", table.ErrImportFormat, manifestPath, lineNo, err)
			}
			lines = append(lines, d)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m := res.Meta
	if m.SectorSize != expect.SectorSize || m.SectorCount != expect.SectorCount {
		return nil, fmt.Errorf("%w: backup is %d sectors of %d bytes, device is %d sectors of %d bytes",
			table.ErrImportFormat, m.SectorCount, m.SectorSize, expect.SectorCount, expect.SectorSize)
	}
	if m.Device != expect.Device {
		res.Warnings = append(res.Warnings, fmt.Sprintf("backup was taken from %s, not %s", m.Device, expect.Device))
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s lists no records", table.ErrImportFormat, manifestPath)
	}

	blobs := map[string][]byte{}
	for _, d := range lines {
		if d.bs != m.SectorSize {
			return nil, fmt.Errorf("%w: record %s uses bs=%d on a %d byte sector device", table.ErrImportFormat, d.record, d.bs, m.SectorSize)
		}
		blob, ok := blobs[d.input]
		if !ok {
			path := d.input
			if !filepath.IsAbs(path) {
				path = filepath.Join(filepath.Dir(manifestPath), path)
			}
			if blob, err = readBlob(path, m.Compression); err != nil {
				return nil, err
			}
			blobs[d.input] = blob
		}
		start, end := d.skip*d.bs, (d.skip+d.count)*d.bs
		if end > uint64(len(blob)) || start > end {
			return nil, fmt.Errorf("%w: record %s needs bytes %d-%d of a %d byte blob", table.ErrImportFormat, d.record, start, end, len(blob))
		}
		res.Records = append(res.Records, table.Record{
			Name:   d.record,
			LBA:    d.seek,
			Blocks: d.count,
			Data:   blob[start:end],
		})
	}
	for _, w := range res.Warnings {
		klog.Warning(w)
	}
	return res, nil
}

func readBlob(path, compression string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup data: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	r, err := newDecompressionReader(compression, bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s backup data %s: %w", compression, path, err)
	}
	return data, nil
}

// Snapshot saves what is currently on dev at the locations records are
// about to overwrite. The manifest is named after the device and the
// current time; its path is returned.
func Snapshot(dev device.BlockDevice, dir, compression string, records []table.Record) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}
	current := make([]table.Record, 0, len(records))
	for _, r := range records {
		data, err := dev.ReadSectors(r.LBA, r.Blocks)
		if err != nil {
			return "", fmt.Errorf("%w: reading %s at LBA %d: %v", ErrBackupFailed, r.Name, r.LBA, err)
		}
		current = append(current, table.Record{Name: r.Name, LBA: r.LBA, Blocks: r.Blocks, Data: data})
	}

	name := fmt.Sprintf("%s-%d.gpt", filepath.Base(dev.Name()), time.Now().UnixNano())
	manifest := filepath.Join(dir, name)
	meta := Meta{
		SectorSize:  dev.SectorSize(),
		SectorCount: dev.SectorCount(),
		Device:      dev.Name(),
		Compression: compression,
	}
	if _, err := Export(manifest, manifest+".img", meta, current); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}
	klog.V(1).Infof("saved the previous table of %s to %s", dev.Name(), manifest)
	return manifest, nil
}
