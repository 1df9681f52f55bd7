// Package hexdump prints sector buffers as offset, hex and ASCII columns.
package hexdump

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

const width = 16

func isPrintable(b byte) bool {
	return b >= 32 && b <= 126
}

func line(offset uint64, row []byte) string {
	var hexStr, charStr strings.Builder
	for j, b := range row {
		fmt.Fprintf(&hexStr, "%02X ", b)
		if j == 7 {
			hexStr.WriteByte(' ')
		}
		if isPrintable(b) {
			charStr.WriteByte(b)
		} else {
			charStr.WriteByte('.')
		}
	}
	return fmt.Sprintf("%08X  %-49s  |%s|\n", offset, hexStr.String(), charStr.String())
}

// Dump writes data to w, numbering rows from base. A run of more than one
// all-zero row is printed once and followed by a "*" line.
func Dump(w io.Writer, base uint64, data []byte) error {
	var zero [width]byte
	skipping := false
	for i := 0; i < len(data); i += width {
		row := data[i:min(i+width, len(data))]
		isZero := len(row) == width && bytes.Equal(row, zero[:])
		last := i+width >= len(data)
		if isZero && !last && i > 0 && bytes.Equal(data[i-width:i], zero[:]) {
			if !skipping {
				if _, err := io.WriteString(w, "*\n"); err != nil {
					return err
				}
				skipping = true
			}
			continue
		}
		skipping = false
		if _, err := io.WriteString(w, line(base+uint64(i), row)); err != nil {
			return err
		}
	}
	return nil
}
