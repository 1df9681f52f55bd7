// Package gpt encodes and decodes GUID Partition Table headers and
// partition entries. All multi-byte fields are little-endian on disk;
// values in memory are host order.
package gpt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"gptedit/internal/guid"
)

const (
	// HeaderSize is the size of the header record that the CRC covers.
	HeaderSize = 92
	// EntrySize is the only partition record size this codec trusts.
	EntrySize = 128
	// DefaultEntries is the entry count used for new tables.
	DefaultEntries = 128
	// Revision is GPT revision 1.0.
	Revision = 0x00010000
	// NameLength is the partition name length in UTF-16 code units.
	NameLength = 36
)

// Signature is the magic at the start of every GPT header.
var Signature = [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'}

var (
	ErrSignatureInvalid   = errors.New("GPT header signature invalid")
	ErrHeaderSizeMismatch = errors.New("GPT header size mismatch")
	ErrEntrySizeMismatch  = errors.New("GPT partition entry size mismatch")
	ErrShortBuffer        = errors.New("buffer too short")
)

// Header is the logical content of a GPT header sector.
type Header struct {
	Signature           [8]byte
	Revision            uint32
	HeaderSize          uint32
	HeaderCRC32         uint32
	Reserved            uint32
	MyLBA               uint64
	AlternateLBA        uint64
	FirstUsableLBA      uint64
	LastUsableLBA       uint64
	DiskGUID            guid.GUID
	PartitionEntryLBA   uint64
	NumEntries          uint32
	EntrySize           uint32
	PartitionArrayCRC32 uint32
}

// UnmarshalHeader decodes the first HeaderSize bytes of b without
// validating them.
func UnmarshalHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("decoding GPT header: %w: got %d bytes", ErrShortBuffer, len(b))
	}
	le := binary.LittleEndian
	copy(h.Signature[:], b[0:8])
	h.Revision = le.Uint32(b[8:12])
	h.HeaderSize = le.Uint32(b[12:16])
	h.HeaderCRC32 = le.Uint32(b[16:20])
	h.Reserved = le.Uint32(b[20:24])
	h.MyLBA = le.Uint64(b[24:32])
	h.AlternateLBA = le.Uint64(b[32:40])
	h.FirstUsableLBA = le.Uint64(b[40:48])
	h.LastUsableLBA = le.Uint64(b[48:56])
	h.DiskGUID = guid.FromBytes(b[56:72])
	h.PartitionEntryLBA = le.Uint64(b[72:80])
	h.NumEntries = le.Uint32(b[80:84])
	h.EntrySize = le.Uint32(b[84:88])
	h.PartitionArrayCRC32 = le.Uint32(b[88:92])
	return h, nil
}

// Marshal returns the HeaderSize-byte on-disk form of h.
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	h.put(b)
	return b
}

// Sector returns h padded with zeros to a full sector.
func (h Header) Sector(sectorSize uint64) []byte {
	b := make([]byte, max(sectorSize, HeaderSize))
	h.put(b)
	return b
}

func (h Header) put(b []byte) {
	le := binary.LittleEndian
	copy(b[0:8], h.Signature[:])
	le.PutUint32(b[8:12], h.Revision)
	le.PutUint32(b[12:16], h.HeaderSize)
	le.PutUint32(b[16:20], h.HeaderCRC32)
	le.PutUint32(b[20:24], h.Reserved)
	le.PutUint64(b[24:32], h.MyLBA)
	le.PutUint64(b[32:40], h.AlternateLBA)
	le.PutUint64(b[40:48], h.FirstUsableLBA)
	le.PutUint64(b[48:56], h.LastUsableLBA)
	copy(b[56:72], h.DiskGUID[:])
	le.PutUint64(b[72:80], h.PartitionEntryLBA)
	le.PutUint32(b[80:84], h.NumEntries)
	le.PutUint32(b[84:88], h.EntrySize)
	le.PutUint32(b[88:92], h.PartitionArrayCRC32)
}

// Validate checks the fields a header must carry before anything else in
// it can be trusted.
func (h Header) Validate() error {
	if h.Signature != Signature {
		return fmt.Errorf("%w: %q", ErrSignatureInvalid, h.Signature[:])
	}
	if h.HeaderSize != HeaderSize {
		return fmt.Errorf("%w: %d, expected %d", ErrHeaderSizeMismatch, h.HeaderSize, HeaderSize)
	}
	if h.EntrySize != EntrySize {
		return fmt.Errorf("%w: %d, expected %d", ErrEntrySizeMismatch, h.EntrySize, EntrySize)
	}
	return nil
}

// ComputeCRC returns the CRC32 of the header with its CRC field zeroed.
func (h Header) ComputeCRC() uint32 {
	h.HeaderCRC32 = 0
	return crc32.ChecksumIEEE(h.Marshal())
}

// CRCValid reports whether the stored header CRC matches its content.
func (h Header) CRCValid() bool {
	return h.ComputeCRC() == h.HeaderCRC32
}

// ArrayBytes is the byte length of the partition entry array.
func (h Header) ArrayBytes() uint64 {
	return uint64(h.NumEntries) * uint64(h.EntrySize)
}

// ArraySectors is the partition entry array length rounded up to sectors.
func (h Header) ArraySectors(sectorSize uint64) uint64 {
	return (h.ArrayBytes() + sectorSize - 1) / sectorSize
}
