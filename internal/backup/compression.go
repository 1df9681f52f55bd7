package backup

import (
	"errors"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// CompressionNone stores the blob as raw sectors.
const CompressionNone = "none"

// ErrUnsupportedCompression is returned for an unknown algorithm name.
var ErrUnsupportedCompression = errors.New("unsupported compression algorithm")

// Compressions lists the accepted algorithm names.
var Compressions = []string{CompressionNone, "gzip", "zlib", "zstd", "bzip2", "s2", "snappy"}

type countingWriter struct {
	w     io.Writer
	count int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count += int64(n)
	return n, err
}

// Extension returns the file suffix used for blobs compressed with
// algorithm.
func Extension(algorithm string) (string, error) {
	switch algorithm {
	case "", CompressionNone:
		return "", nil
	case "gzip":
		return ".gz", nil
	case "zlib":
		return ".zlib", nil
	case "bzip2":
		return ".bz2", nil
	case "snappy":
		return ".snappy", nil
	case "s2":
		return ".s2", nil
	case "zstd":
		return ".zst", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCompression, algorithm)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newCompressionWriter wraps output so that everything written is
// compressed with algorithm. Close flushes the stream but leaves output
// open.
func newCompressionWriter(algorithm string, output io.Writer) (io.WriteCloser, error) {
	switch algorithm {
	case "", CompressionNone:
		return nopWriteCloser{output}, nil
	case "gzip":
		return gzip.NewWriter(output), nil
	case "zlib":
		return zlib.NewWriter(output), nil
	case "bzip2":
		return bzip2.NewWriter(output, &bzip2.WriterConfig{})
	case "snappy":
		return snappy.NewBufferedWriter(output), nil
	case "s2":
		return s2.NewWriter(output), nil
	case "zstd":
		return zstd.NewWriter(output)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, algorithm)
	}
}

// newDecompressionReader undoes newCompressionWriter.
func newDecompressionReader(algorithm string, input io.Reader) (io.ReadCloser, error) {
	switch algorithm {
	case "", CompressionNone:
		return io.NopCloser(input), nil
	case "gzip":
		return gzip.NewReader(input)
	case "zlib":
		return zlib.NewReader(input)
	case "bzip2":
		return bzip2.NewReader(input, &bzip2.ReaderConfig{})
	case "snappy":
		return io.NopCloser(snappy.NewReader(input)), nil
	case "s2":
		return io.NopCloser(s2.NewReader(input)), nil
	case "zstd":
		d, err := zstd.NewReader(input)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, algorithm)
	}
}
