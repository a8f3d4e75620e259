package model

import (
	"path/filepath"
	"strings"
)

// FileType represents a supported tabular input format
type FileType int

const (
	// FileTypeUnsupported represents an unsupported file type
	FileTypeUnsupported FileType = iota
	// FileTypeCSV represents comma-separated text
	FileTypeCSV
	// FileTypeTSV represents tab-separated text
	FileTypeTSV
	// FileTypeXLSX represents an Excel 2007+ workbook
	FileTypeXLSX
	// FileTypeXLS represents a legacy Excel 97-2003 workbook
	FileTypeXLS
	// FileTypeParquet represents an Apache Parquet file
	FileTypeParquet
)

// File extensions
const (
	extCSV     = ".csv"
	extTSV     = ".tsv"
	extXLSX    = ".xlsx"
	extXLS     = ".xls"
	extParquet = ".parquet"
	extGZ      = ".gz"
	extBZ2     = ".bz2"
	extXZ      = ".xz"
	extZSTD    = ".zst"
)

// String returns the format name
func (ft FileType) String() string {
	switch ft {
	case FileTypeCSV:
		return "csv"
	case FileTypeTSV:
		return "tsv"
	case FileTypeXLSX:
		return "xlsx"
	case FileTypeXLS:
		return "xls"
	case FileTypeParquet:
		return "parquet"
	default:
		return "unsupported"
	}
}

// Extension returns the file extension for the FileType
func (ft FileType) Extension() string {
	switch ft {
	case FileTypeCSV:
		return extCSV
	case FileTypeTSV:
		return extTSV
	case FileTypeXLSX:
		return extXLSX
	case FileTypeXLS:
		return extXLS
	case FileTypeParquet:
		return extParquet
	default:
		return ""
	}
}

// IsDelimited reports whether the format is delimited text
func (ft FileType) IsDelimited() bool {
	return ft == FileTypeCSV || ft == FileTypeTSV
}

// Delimiter returns the field separator for delimited formats
func (ft FileType) Delimiter() rune {
	if ft == FileTypeTSV {
		return '\t'
	}
	return ','
}

// DetectFileType determines the input format and compression from a file name.
// Extension matching ignores case.
func DetectFileType(name string) (FileType, CompressionType) {
	lower := strings.ToLower(filepath.Base(name))

	compression := CompressionNone
	for _, c := range []CompressionType{CompressionGZ, CompressionBZ2, CompressionXZ, CompressionZSTD} {
		if strings.HasSuffix(lower, c.Extension()) {
			compression = c
			lower = strings.TrimSuffix(lower, c.Extension())
			break
		}
	}

	switch filepath.Ext(lower) {
	case extCSV:
		return FileTypeCSV, compression
	case extTSV:
		return FileTypeTSV, compression
	case extXLSX:
		return FileTypeXLSX, compression
	case extXLS:
		return FileTypeXLS, compression
	case extParquet:
		return FileTypeParquet, compression
	default:
		return FileTypeUnsupported, compression
	}
}

// IsSupportedFile reports whether the file name has a supported extension
func IsSupportedFile(name string) bool {
	ft, _ := DetectFileType(name)
	return ft != FileTypeUnsupported
}

// TableNameFromPath derives a table name from a file path by removing
// compression and format extensions.
func TableNameFromPath(path string) string {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	for _, ext := range []string{extGZ, extBZ2, extXZ, extZSTD} {
		if strings.HasSuffix(lower, ext) {
			name = name[:len(name)-len(ext)]
			break
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
