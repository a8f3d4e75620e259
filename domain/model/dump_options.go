package model

import (
	"fmt"
	"strings"
)

// OutputFormat represents the export file format
type OutputFormat int

const (
	// OutputFormatCSV represents CSV output format
	OutputFormatCSV OutputFormat = iota
	// OutputFormatTSV represents TSV output format
	OutputFormatTSV
	// OutputFormatXLSX represents Excel XLSX output format
	OutputFormatXLSX
)

// String returns the string representation of OutputFormat
func (f OutputFormat) String() string {
	switch f {
	case OutputFormatTSV:
		return "tsv"
	case OutputFormatXLSX:
		return "xlsx"
	default:
		return "csv"
	}
}

// Extension returns the file extension for the format
func (f OutputFormat) Extension() string {
	switch f {
	case OutputFormatTSV:
		return extTSV
	case OutputFormatXLSX:
		return extXLSX
	default:
		return extCSV
	}
}

// ParseOutputFormat parses "csv", "tsv" or "xlsx". Empty means csv.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return OutputFormatCSV, nil
	case "tsv":
		return OutputFormatTSV, nil
	case "xlsx":
		return OutputFormatXLSX, nil
	default:
		return OutputFormatCSV, fmt.Errorf("unknown output format: %q", s)
	}
}

// CompressionType represents the compression type
type CompressionType int

const (
	// CompressionNone represents no compression
	CompressionNone CompressionType = iota
	// CompressionGZ represents gzip compression
	CompressionGZ
	// CompressionBZ2 represents bzip2 compression (read only)
	CompressionBZ2
	// CompressionXZ represents xz compression
	CompressionXZ
	// CompressionZSTD represents zstd compression
	CompressionZSTD
)

// String returns the string representation of CompressionType
func (c CompressionType) String() string {
	switch c {
	case CompressionGZ:
		return "gz"
	case CompressionBZ2:
		return "bz2"
	case CompressionXZ:
		return "xz"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// Extension returns the file extension for the compression type
func (c CompressionType) Extension() string {
	switch c {
	case CompressionGZ:
		return extGZ
	case CompressionBZ2:
		return extBZ2
	case CompressionXZ:
		return extXZ
	case CompressionZSTD:
		return extZSTD
	default:
		return ""
	}
}

// ParseCompressionType parses "none", "gz", "bz2", "xz" or "zstd". Empty means none.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "gz", "gzip":
		return CompressionGZ, nil
	case "bz2", "bzip2":
		return CompressionBZ2, nil
	case "xz":
		return CompressionXZ, nil
	case "zst", "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression type: %q", s)
	}
}

// DefaultExportBaseName is the file name, without extension, of an exported table
const DefaultExportBaseName = "updated_file"

// DumpOptions configures how an edited table is exported.
//
// Example:
//
//	options := NewDumpOptions().
//		WithFormat(OutputFormatTSV).
//		WithCompression(CompressionGZ)
type DumpOptions struct {
	// Format specifies the output file format
	Format OutputFormat
	// Compression specifies the compression type
	Compression CompressionType
	// BaseName is the output file name without extensions
	BaseName string
}

// NewDumpOptions creates default export options (updated_file.csv, no compression).
func NewDumpOptions() DumpOptions {
	return DumpOptions{
		Format:      OutputFormatCSV,
		Compression: CompressionNone,
		BaseName:    DefaultExportBaseName,
	}
}

// WithFormat sets the output file format.
func (o DumpOptions) WithFormat(format OutputFormat) DumpOptions {
	o.Format = format
	return o
}

// WithCompression adds compression to the output file.
func (o DumpOptions) WithCompression(compression CompressionType) DumpOptions {
	o.Compression = compression
	return o
}

// WithBaseName sets the output file name without extensions.
func (o DumpOptions) WithBaseName(name string) DumpOptions {
	o.BaseName = name
	return o
}

// FileExtension returns the complete file extension including compression
func (o DumpOptions) FileExtension() string {
	return o.Format.Extension() + o.Compression.Extension()
}

// FileName returns the output file name
func (o DumpOptions) FileName() string {
	base := o.BaseName
	if base == "" {
		base = DefaultExportBaseName
	}
	return base + o.FileExtension()
}
