// Package mbr encodes and decodes the legacy Master Boot Record in sector 0.
package mbr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Size is the number of bytes of sector 0 the MBR occupies.
	Size = 512
	// CodeSize is the length of the boot code area.
	CodeSize = 440
	// NumPartitions is the number of primary partition records.
	NumPartitions = 4
	// Signature is the boot signature stored at offset 510.
	Signature = 0xAA55
	// StatusBootable marks an active partition.
	StatusBootable = 0x80

	// TypeEmpty marks an unused record.
	TypeEmpty = 0x00
	// TypeGPTProtective covers the GPT metadata on a protective MBR.
	TypeGPTProtective = 0xEE

	partitionOffset = 446
	recordSize      = 16
)

// ErrShortBuffer is returned when fewer than Size bytes are supplied.
var ErrShortBuffer = errors.New("MBR buffer too short")

// CHS is a legacy cylinder/head/sector address. Values are kept for
// round-tripping and display only.
type CHS struct {
	Cylinder uint16
	Head     uint8
	Sector   uint8
}

func unpackCHS(b []byte) CHS {
	return CHS{
		Head:     b[0],
		Sector:   b[1] & 0x3f,
		Cylinder: uint16(b[1]&0xc0)<<2 | uint16(b[2]),
	}
}

func (c CHS) pack(b []byte) {
	b[0] = c.Head
	b[1] = c.Sector&0x3f | uint8(c.Cylinder>>2)&0xc0
	b[2] = uint8(c.Cylinder)
}

// Partition is one of the four primary partition records.
type Partition struct {
	Status   uint8
	First    CHS
	Type     uint8
	Last     CHS
	FirstLBA uint32
	Sectors  uint32
}

// IsEmpty reports whether the record is unused.
func (p Partition) IsEmpty() bool {
	return p.Type == TypeEmpty
}

// Bootable reports whether the active flag is set.
func (p Partition) Bootable() bool {
	return p.Status&StatusBootable != 0
}

// LastLBA is the inclusive end of the record. It is only meaningful when
// Sectors is non-zero.
func (p Partition) LastLBA() uint64 {
	return uint64(p.FirstLBA) + uint64(p.Sectors) - 1
}

// MBR is the decoded content of sector 0.
type MBR struct {
	Code          [CodeSize]byte
	DiskSignature uint32
	Reserved      uint16
	Partitions    [NumPartitions]Partition
	Signature     uint16
}

// New returns an empty MBR carrying the boot signature.
func New() MBR {
	return MBR{Signature: Signature}
}

// Unmarshal decodes an MBR from the first Size bytes of b.
func Unmarshal(b []byte) (MBR, error) {
	var m MBR
	if len(b) < Size {
		return m, fmt.Errorf("decoding MBR: %w: got %d bytes", ErrShortBuffer, len(b))
	}
	le := binary.LittleEndian
	copy(m.Code[:], b[:CodeSize])
	m.DiskSignature = le.Uint32(b[440:444])
	m.Reserved = le.Uint16(b[444:446])
	for i := range m.Partitions {
		r := b[partitionOffset+i*recordSize:]
		m.Partitions[i] = Partition{
			Status:   r[0],
			First:    unpackCHS(r[1:4]),
			Type:     r[4],
			Last:     unpackCHS(r[5:8]),
			FirstLBA: le.Uint32(r[8:12]),
			Sectors:  le.Uint32(r[12:16]),
		}
	}
	m.Signature = le.Uint16(b[510:512])
	return m, nil
}

// Sector returns m as a full sector of sectorSize bytes.
func (m MBR) Sector(sectorSize uint64) []byte {
	b := make([]byte, max(sectorSize, Size))
	le := binary.LittleEndian
	copy(b[:CodeSize], m.Code[:])
	le.PutUint32(b[440:444], m.DiskSignature)
	le.PutUint16(b[444:446], m.Reserved)
	for i, p := range m.Partitions {
		r := b[partitionOffset+i*recordSize:]
		r[0] = p.Status
		p.First.pack(r[1:4])
		r[4] = p.Type
		p.Last.pack(r[5:8])
		le.PutUint32(r[8:12], p.FirstLBA)
		le.PutUint32(r[12:16], p.Sectors)
	}
	le.PutUint16(b[510:512], m.Signature)
	return b
}

// Valid reports whether the boot signature is present.
func (m MBR) Valid() bool {
	return m.Signature == Signature
}

// IsExtendedType reports whether t is a DOS or Linux extended container.
func IsExtendedType(t uint8) bool {
	switch t {
	case 0x05, 0x0F, 0x85:
		return true
	default:
		return false
	}
}
