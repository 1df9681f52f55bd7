// Package human parses and formats byte sizes for the command line.
package human

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

// ErrInvalidSize is returned for sizes that cannot be parsed or are zero.
var ErrInvalidSize = errors.New("invalid size")

// binaryUnits rewrites bare and SI-looking suffixes to their 1024-based
// spelling. Disk tools conventionally mean 2^30 by "G".
var binaryUnits = map[string]string{
	"k": "kib", "kb": "kib",
	"m": "mib", "mb": "mib",
	"g": "gib", "gb": "gib",
	"t": "tib", "tb": "tib",
	"p": "pib", "pb": "pib",
	"e": "eib", "eb": "eib",
}

// ParseSize parses strings like "512", "100M", "1.5GiB" or "2 TB" into a
// byte count. All units are powers of 1024.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidSize)
	}

	i := strings.LastIndexFunc(s, func(r rune) bool { return unicode.IsDigit(r) || r == '.' })
	if i < 0 {
		return 0, fmt.Errorf("%w: %q has no number", ErrInvalidSize, s)
	}
	number, unit := s[:i+1], strings.ToLower(strings.TrimSpace(s[i+1:]))
	if u, ok := binaryUnits[unit]; ok {
		unit = u
	}

	n, err := humanize.ParseBytes(number + unit)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSize, s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %q is zero", ErrInvalidSize, s)
	}
	return n, nil
}

// FormatBytes renders n with 1024-based units, e.g. "100 MiB".
func FormatBytes(n uint64) string {
	return humanize.IBytes(n)
}

// Blocks converts a byte count to whole sectors, rounding up.
func Blocks(bytes, sectorSize uint64) uint64 {
	return (bytes + sectorSize - 1) / sectorSize
}
