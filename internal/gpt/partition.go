package gpt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"golang.org/x/text/encoding/unicode"

	"gptedit/internal/guid"
)

// Attribute bits.
const (
	AttrSystemPartition uint64 = 1 << 0
	AttrReadOnly        uint64 = 1 << 60
	AttrHidden          uint64 = 1 << 62
	AttrNoAutomount     uint64 = 1 << 63
)

// ErrNameTooLong is returned by SetLabel when the label needs more than
// NameLength UTF-16 code units.
var ErrNameTooLong = errors.New("partition name too long")

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Partition is one entry of the partition entry array.
type Partition struct {
	Type       guid.GUID
	GUID       guid.GUID
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       [NameLength]uint16
}

// IsEmpty reports whether the slot is unused.
func (p Partition) IsEmpty() bool {
	return p.Type.IsEmpty()
}

// Blocks is the number of sectors covered by the entry.
func (p Partition) Blocks() uint64 {
	if p.IsEmpty() || p.LastLBA < p.FirstLBA {
		return 0
	}
	return p.LastLBA - p.FirstLBA + 1
}

// Label decodes the name up to the first NUL code unit.
func (p Partition) Label() string {
	raw := make([]byte, 0, NameLength*2)
	for _, u := range p.Name {
		if u == 0 {
			break
		}
		raw = binary.LittleEndian.AppendUint16(raw, u)
	}
	s, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return string(s)
}

// SetLabel encodes s into the name field, zero-padding the rest.
func (p *Partition) SetLabel(s string) error {
	raw, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("encoding partition name %q: %w", s, err)
	}
	if len(raw)/2 > NameLength {
		return fmt.Errorf("%w: %q needs %d code units, limit is %d", ErrNameTooLong, s, len(raw)/2, NameLength)
	}
	var name [NameLength]uint16
	for i := 0; i+1 < len(raw); i += 2 {
		name[i/2] = binary.LittleEndian.Uint16(raw[i:])
	}
	p.Name = name
	return nil
}

// UnmarshalPartition decodes one EntrySize record.
func UnmarshalPartition(b []byte) (Partition, error) {
	var p Partition
	if len(b) < EntrySize {
		return p, fmt.Errorf("decoding GPT partition: %w: got %d bytes", ErrShortBuffer, len(b))
	}
	le := binary.LittleEndian
	p.Type = guid.FromBytes(b[0:16])
	p.GUID = guid.FromBytes(b[16:32])
	p.FirstLBA = le.Uint64(b[32:40])
	p.LastLBA = le.Uint64(b[40:48])
	p.Attributes = le.Uint64(b[48:56])
	for i := range p.Name {
		p.Name[i] = le.Uint16(b[56+2*i:])
	}
	return p, nil
}

// Marshal returns the EntrySize-byte on-disk form of p.
func (p Partition) Marshal() []byte {
	b := make([]byte, EntrySize)
	p.put(b)
	return b
}

func (p Partition) put(b []byte) {
	le := binary.LittleEndian
	copy(b[0:16], p.Type[:])
	copy(b[16:32], p.GUID[:])
	le.PutUint64(b[32:40], p.FirstLBA)
	le.PutUint64(b[40:48], p.LastLBA)
	le.PutUint64(b[48:56], p.Attributes)
	for i, u := range p.Name {
		le.PutUint16(b[56+2*i:], u)
	}
}

// UnmarshalPartitions decodes count entries of entrySize bytes each.
// Only EntrySize is accepted.
func UnmarshalPartitions(b []byte, count, entrySize uint32) ([]Partition, error) {
	if entrySize != EntrySize {
		return nil, fmt.Errorf("%w: %d, expected %d", ErrEntrySizeMismatch, entrySize, EntrySize)
	}
	need := uint64(count) * EntrySize
	if uint64(len(b)) < need {
		return nil, fmt.Errorf("decoding partition array: %w: got %d bytes, need %d", ErrShortBuffer, len(b), need)
	}
	parts := make([]Partition, count)
	for i := range parts {
		p, err := UnmarshalPartition(b[i*EntrySize:])
		if err != nil {
			return nil, err
		}
		parts[i] = p
	}
	return parts, nil
}

// MarshalPartitions returns the raw partition array, without sector padding.
func MarshalPartitions(parts []Partition) []byte {
	b := make([]byte, len(parts)*EntrySize)
	for i, p := range parts {
		p.put(b[i*EntrySize:])
	}
	return b
}

// ArrayCRC returns the CRC32 of the on-disk partition array.
func ArrayCRC(parts []Partition) uint32 {
	return crc32.ChecksumIEEE(MarshalPartitions(parts))
}
