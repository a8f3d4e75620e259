package csvagent

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nao1215/csvagent/domain/model"
)

const peopleCSV = "id,name\n1,Alice\n2,Bob\n3,Carol\n"

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func xlsxBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func parquetBytes(t *testing.T) []byte {
	t.Helper()
	pool := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()
	builder.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	builder.Field(1).(*array.StringBuilder).AppendValues([]string{"Alice", "", "Carol"}, []bool{true, false, true})
	record := builder.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	w, err := pqarrow.NewFileWriter(schema, &buf, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	require.NoError(t, w.Write(record))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fileName string
		data     func(t *testing.T) []byte
		fileType model.FileType
		header   []string
		rows     int
	}{
		{
			name:     "csv",
			fileName: "people.csv",
			data:     func(*testing.T) []byte { return []byte(peopleCSV) },
			fileType: model.FileTypeCSV,
			header:   []string{"id", "name"},
			rows:     3,
		},
		{
			name:     "tsv",
			fileName: "people.tsv",
			data:     func(*testing.T) []byte { return []byte("id\tname\n1\tAlice\n2\tBob\n") },
			fileType: model.FileTypeTSV,
			header:   []string{"id", "name"},
			rows:     2,
		},
		{
			name:     "csv with byte order mark",
			fileName: "bom.csv",
			data:     func(*testing.T) []byte { return append([]byte("\xEF\xBB\xBF"), peopleCSV...) },
			fileType: model.FileTypeCSV,
			header:   []string{"id", "name"},
			rows:     3,
		},
		{
			name:     "gzip compressed csv",
			fileName: "people.csv.gz",
			data:     func(t *testing.T) []byte { return gzipBytes(t, []byte(peopleCSV)) },
			fileType: model.FileTypeCSV,
			header:   []string{"id", "name"},
			rows:     3,
		},
		{
			name:     "zstd compressed csv",
			fileName: "people.csv.zst",
			data:     func(t *testing.T) []byte { return zstdBytes(t, []byte(peopleCSV)) },
			fileType: model.FileTypeCSV,
			header:   []string{"id", "name"},
			rows:     3,
		},
		{
			name:     "xlsx first sheet",
			fileName: "people.xlsx",
			data: func(t *testing.T) []byte {
				return xlsxBytes(t, [][]any{{"id", "name"}, {1, "Alice"}, {2, "Bob"}})
			},
			fileType: model.FileTypeXLSX,
			header:   []string{"id", "name"},
			rows:     2,
		},
		{
			name:     "parquet",
			fileName: "people.parquet",
			data:     parquetBytes,
			fileType: model.FileTypeParquet,
			header:   []string{"id", "name"},
			rows:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "uploads")
			data := tt.data(t)
			result, err := NewLoader(dir).Load(context.Background(), data, tt.fileName)
			require.NoError(t, err)

			assert.Equal(t, tt.fileType, result.FileType)
			assert.Equal(t, tt.header, result.Table.Header())
			assert.Equal(t, tt.rows, result.Table.RowCount())
			assert.Equal(t, tt.rows, result.Summary.TotalRows)
			assert.Equal(t, len(tt.header), result.Summary.TotalColumns)
			assert.Equal(t, int64(len(data)), result.Summary.SizeBytes)
			assert.Len(t, result.Profiles, len(tt.header))
			assert.Equal(t, model.ColumnTypeInteger, result.Table.Columns()[0].Type)

			assert.Equal(t, filepath.Join(dir, tt.fileName), result.Path)
			persisted, err := os.ReadFile(result.Path)
			require.NoError(t, err)
			assert.Equal(t, data, persisted)
		})
	}
}

func TestLoader_LoadParquetNulls(t *testing.T) {
	t.Parallel()

	result, err := NewLoader(t.TempDir()).Load(context.Background(), parquetBytes(t), "people.parquet")
	require.NoError(t, err)

	records := result.Table.Records()
	require.Len(t, records, 3)
	assert.True(t, records[1][1].IsNull())
	assert.Equal(t, "Carol", records[2][1].String())

	profiles := result.Profiles
	assert.Equal(t, 2, profiles[1].NonNullCount)
	assert.Equal(t, 2, profiles[1].DistinctCount)
}

func TestLoader_LoadRejectsBeforeWriting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fileName string
		wantErr  error
	}{
		{name: "unsupported extension", fileName: "notes.txt", wantErr: ErrUnsupportedFormat},
		{name: "no extension", fileName: "people", wantErr: ErrUnsupportedFormat},
		{name: "path traversal", fileName: "../people.csv", wantErr: ErrInvalidFileName},
		{name: "nested path", fileName: "a/people.csv", wantErr: ErrInvalidFileName},
		{name: "empty name", fileName: "  ", wantErr: ErrInvalidFileName},
		{name: "dot dot", fileName: "..", wantErr: ErrInvalidFileName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "uploads")
			result, err := NewLoader(dir).Load(context.Background(), []byte(peopleCSV), tt.fileName)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoDirExists(t, dir)
		})
	}
}

func TestLoader_LoadParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fileName string
		data     []byte
	}{
		{name: "empty csv", fileName: "empty.csv", data: []byte{}},
		{name: "unterminated quote", fileName: "broken.csv", data: []byte("id,name\n1,\"Alice\n")},
		{name: "corrupt xlsx", fileName: "broken.xlsx", data: []byte("not a zip archive")},
		{name: "corrupt xls", fileName: "broken.xls", data: []byte("not a biff workbook")},
		{name: "corrupt parquet", fileName: "broken.parquet", data: []byte("PAR1 garbage")},
		{name: "corrupt gzip", fileName: "broken.csv.gz", data: []byte("not gzip")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			_, err := NewLoader(dir).Load(context.Background(), tt.data, tt.fileName)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)

			// The raw upload is persisted before parsing starts
			assert.FileExists(t, filepath.Join(dir, tt.fileName))
		})
	}
}

func TestLoader_LoadPersistError(t *testing.T) {
	t.Parallel()

	// A regular file where the upload directory should be
	blocker := filepath.Join(t.TempDir(), "uploads")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewLoader(blocker).Load(context.Background(), []byte(peopleCSV), "people.csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)
}

func TestLoader_LoadReplacesExistingUpload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	loader := NewLoader(dir)
	_, err := loader.Load(context.Background(), []byte("a\n1\n"), "data.csv")
	require.NoError(t, err)

	result, err := loader.Load(context.Background(), []byte(peopleCSV), "data.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Table.RowCount())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}
