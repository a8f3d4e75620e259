package csvagent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/csvagent/domain/model"
)

const mixedCSV = "id,name,score,active,joined,note\n" +
	"1,Alice,1.50,true,2024-01-02,\n" +
	"2,\"Bob, Jr.\",2,FALSE,2024-02-03 10:00:00,NA\n" +
	"3,Carol,-0.25,true,2024-03-04,n/a\n"

func TestExport(t *testing.T) {
	t.Parallel()

	t.Run("default options write updated_file.csv", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path, err := Export(context.Background(), peopleTable(), dir, model.NewDumpOptions())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "updated_file.csv"), path)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, peopleCSV, string(content))
	})

	t.Run("nulls become empty cells", func(t *testing.T) {
		t.Parallel()

		table := model.NewTable("t", []string{"a", "b"}, [][]string{{"1", "NA"}, {"", "x"}})
		path, err := Export(context.Background(), table, t.TempDir(), model.NewDumpOptions().WithFormat(model.OutputFormatTSV))
		require.NoError(t, err)
		assert.Equal(t, "updated_file.tsv", filepath.Base(path))

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "a\tb\n1\t\n\tx\n", string(content))
	})

	t.Run("no table", func(t *testing.T) {
		t.Parallel()

		_, err := Export(context.Background(), nil, t.TempDir(), model.NewDumpOptions())
		assert.ErrorIs(t, err, ErrNoTable)
	})

	t.Run("bzip2 cannot be written", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		options := model.NewDumpOptions().WithCompression(model.CompressionBZ2)
		_, err := Export(context.Background(), peopleTable(), dir, options)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIO)
		assert.NoFileExists(t, filepath.Join(dir, options.FileName()))
	})

	t.Run("base name must stay in the directory", func(t *testing.T) {
		t.Parallel()

		for _, base := range []string{"../escape", "sub/file", ".."} {
			_, err := Export(context.Background(), peopleTable(), t.TempDir(), model.NewDumpOptions().WithBaseName(base))
			assert.ErrorIs(t, err, ErrInvalidFileName, base)
		}
	})
}

// TestExport_RoundTrip renames columns, exports and reloads the file
func TestExport_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		options model.DumpOptions
	}{
		{name: "csv", options: model.NewDumpOptions()},
		{name: "tsv", options: model.NewDumpOptions().WithFormat(model.OutputFormatTSV)},
		{name: "xlsx", options: model.NewDumpOptions().WithFormat(model.OutputFormatXLSX)},
		{name: "gzip csv", options: model.NewDumpOptions().WithCompression(model.CompressionGZ)},
		{name: "xz csv", options: model.NewDumpOptions().WithCompression(model.CompressionXZ)},
		{name: "zstd tsv", options: model.NewDumpOptions().WithFormat(model.OutputFormatTSV).WithCompression(model.CompressionZSTD)},
		{name: "custom base name", options: model.NewDumpOptions().WithBaseName("people_edit")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			loader := NewLoader(dir)
			loaded, err := loader.Load(context.Background(), []byte(mixedCSV), "people.csv")
			require.NoError(t, err)

			names := []string{"user_id", "full name", "score", "is_active", "joined_at", "remarks"}
			renamed, err := loaded.Table.Rename(names)
			require.NoError(t, err)

			path, err := Export(context.Background(), renamed, dir, tt.options)
			require.NoError(t, err)
			assert.Equal(t, tt.options.FileName(), filepath.Base(path))

			reloaded, err := loader.Load(context.Background(), mustReadFile(t, path), filepath.Base(path))
			require.NoError(t, err)

			assert.Equal(t, names, reloaded.Table.Header())
			assert.Equal(t, renamed.Columns(), reloaded.Table.Columns())
			require.Equal(t, renamed.RowCount(), reloaded.Table.RowCount())
			for i, record := range renamed.Records() {
				assert.True(t, record.Equal(reloaded.Table.Records()[i]), "row %d: %v != %v",
					i+1, record.Strings(), reloaded.Table.Records()[i].Strings())
			}
		})
	}
}

func TestXLSXCellValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value model.Value
		want  any
	}{
		{name: "null", value: model.Null(), want: nil},
		{name: "integer", value: model.ParseValue("42", model.ColumnTypeInteger), want: int64(42)},
		{name: "integer with leading zero", value: model.ParseValue("007", model.ColumnTypeInteger), want: "007"},
		{name: "float", value: model.ParseValue("1.5", model.ColumnTypeFloat), want: 1.5},
		{name: "float with trailing zero", value: model.ParseValue("1.50", model.ColumnTypeFloat), want: "1.50"},
		{name: "boolean", value: model.ParseValue("TRUE", model.ColumnTypeBoolean), want: "TRUE"},
		{name: "text", value: model.TextValue("hello"), want: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, xlsxCellValue(tt.value))
		})
	}
}

func mustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test file under t.TempDir
	require.NoError(t, err)
	return data
}
