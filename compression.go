package csvagent

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/nao1215/csvagent/domain/model"
)

// CompressionHandler wraps readers and writers with a compression codec
type CompressionHandler interface {
	// CreateReader wraps an io.Reader with a decompression reader if needed
	CreateReader(reader io.Reader) (io.Reader, func() error, error)
	// CreateWriter wraps an io.Writer with a compression writer if needed
	CreateWriter(writer io.Writer) (io.Writer, func() error, error)
	// Extension returns the file extension for this compression type (e.g., ".gz")
	Extension() string
}

// compressionHandlerImpl implements the CompressionHandler interface
type compressionHandlerImpl struct {
	compressionType model.CompressionType
}

// NewCompressionHandler creates a new compression handler for the given compression type
func NewCompressionHandler(compressionType model.CompressionType) CompressionHandler {
	return &compressionHandlerImpl{
		compressionType: compressionType,
	}
}

func nopCleanup() error { return nil }

// CreateReader creates a decompression reader based on the compression type
func (h *compressionHandlerImpl) CreateReader(reader io.Reader) (io.Reader, func() error, error) {
	switch h.compressionType {
	case model.CompressionNone:
		return reader, nopCleanup, nil

	case model.CompressionGZ:
		gzReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gzReader, gzReader.Close, nil

	case model.CompressionBZ2:
		return bzip2.NewReader(reader), nopCleanup, nil

	case model.CompressionXZ:
		xzReader, err := xz.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xzReader, nopCleanup, nil

	case model.CompressionZSTD:
		decoder, err := zstd.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return decoder, func() error {
			decoder.Close()
			return nil
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression type for reading: %v", h.compressionType)
	}
}

// CreateWriter creates a compression writer based on the compression type
func (h *compressionHandlerImpl) CreateWriter(writer io.Writer) (io.Writer, func() error, error) {
	switch h.compressionType {
	case model.CompressionNone:
		return writer, nopCleanup, nil

	case model.CompressionGZ:
		gzWriter := gzip.NewWriter(writer)
		return gzWriter, gzWriter.Close, nil

	case model.CompressionBZ2:
		return nil, nil, errors.New("bzip2 compression is not supported for writing")

	case model.CompressionXZ:
		xzWriter, err := xz.NewWriter(writer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xzWriter, xzWriter.Close, nil

	case model.CompressionZSTD:
		zstdWriter, err := zstd.NewWriter(writer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zstdWriter, zstdWriter.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported compression type for writing: %v", h.compressionType)
	}
}

// Extension returns the file extension for this compression type
func (h *compressionHandlerImpl) Extension() string {
	return h.compressionType.Extension()
}

// decompress returns the fully decompressed content
func decompress(data []byte, compressionType model.CompressionType) ([]byte, error) {
	if compressionType == model.CompressionNone {
		return data, nil
	}
	r, cleanup, err := NewCompressionHandler(compressionType).CreateReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cleanup() }()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s data: %w", compressionType, err)
	}
	return out, nil
}
