package device

import "fmt"

// Memory is a BlockDevice held entirely in RAM. It backs tests and lets a
// table be built against a geometry without touching a disk.
type Memory struct {
	name        string
	sectorSize  uint64
	sectorCount uint64
	data        []byte

	// FailWritesFrom, when non-zero, makes the Nth and later writes fail.
	FailWritesFrom int
	writes         int
}

// NewMemory returns a zero-filled device.
func NewMemory(name string, sectorSize, sectorCount uint64) *Memory {
	return &Memory{
		name:        name,
		sectorSize:  sectorSize,
		sectorCount: sectorCount,
		data:        make([]byte, sectorSize*sectorCount),
	}
}

func (m *Memory) Name() string        { return m.name }
func (m *Memory) SectorSize() uint64  { return m.sectorSize }
func (m *Memory) SectorCount() uint64 { return m.sectorCount }

// ReadSectors returns a copy of count sectors starting at lba.
func (m *Memory) ReadSectors(lba, count uint64) ([]byte, error) {
	if err := checkRange(m, lba, count); err != nil {
		return nil, err
	}
	off := lba * m.sectorSize
	return append([]byte(nil), m.data[off:off+count*m.sectorSize]...), nil
}

// WriteSectors copies data to lba.
func (m *Memory) WriteSectors(lba uint64, data []byte) error {
	m.writes++
	if m.FailWritesFrom > 0 && m.writes >= m.FailWritesFrom {
		return fmt.Errorf("%w: injected failure on write %d", ErrSectorIO, m.writes)
	}
	count, err := sectorsIn(m, data)
	if err != nil {
		return err
	}
	if err := checkRange(m, lba, count); err != nil {
		return err
	}
	copy(m.data[lba*m.sectorSize:], data)
	return nil
}

// Bytes exposes the backing store.
func (m *Memory) Bytes() []byte {
	return m.data
}

// Writes is the number of WriteSectors calls so far.
func (m *Memory) Writes() int {
	return m.writes
}
