package csvagent

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/csvagent/domain/model"
)

const exportSheetName = "Sheet1"

// Export writes table to dir using options and returns the written path.
// The default options produce "updated_file.csv". Cells are written from
// their original text and nulls become empty cells, so reloading the file
// yields the same values.
func Export(ctx context.Context, table *model.Table, dir string, options model.DumpOptions) (string, error) {
	path := filepath.Join(dir, options.FileName())
	ec := NewErrorContext("export", path)
	if table == nil {
		return "", ec.Error(ErrNoTable, nil)
	}
	if base := options.BaseName; base != "" && (base != filepath.Base(base) || base == "." || base == "..") {
		return "", ec.WithDetails(base).Error(ErrInvalidFileName, nil)
	}
	if err := ctx.Err(); err != nil {
		return "", ec.Error(ErrIO, err)
	}

	var body bytes.Buffer
	writer, closeWriter, err := NewCompressionHandler(options.Compression).CreateWriter(&body)
	if err != nil {
		return "", ec.WithDetails(options.Compression.String()).Error(ErrIO, err)
	}

	switch options.Format {
	case model.OutputFormatXLSX:
		err = writeXLSX(writer, table)
	case model.OutputFormatTSV:
		err = writeDelimited(writer, table, '\t')
	default:
		err = writeDelimited(writer, table, ',')
	}
	if closeErr := closeWriter(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", ec.WithDetails(options.Format.String()).Error(ErrIO, err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", ec.Error(ErrIO, err)
	}
	if err := writeFileAtomic(path, body.Bytes()); err != nil {
		return "", ec.Error(ErrIO, err)
	}
	return path, nil
}

func writeDelimited(w io.Writer, table *model.Table, delimiter rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write(table.Header()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, record := range table.Records() {
		if err := cw.Write(record.Strings()); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, table *model.Table) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close() // Ignore close error
	}()

	header := make([]any, table.ColumnCount())
	for i, name := range table.Header() {
		header[i] = name
	}
	if err := f.SetSheetRow(exportSheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for r, record := range table.Records() {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		row := make([]any, len(record))
		for i, v := range record {
			row[i] = xlsxCellValue(v)
		}
		if err := f.SetSheetRow(exportSheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// xlsxCellValue keeps numbers numeric when that does not change their text
func xlsxCellValue(v model.Value) any {
	switch v.Kind() {
	case model.KindNull:
		return nil
	case model.KindInteger:
		if model.IntegerValue(v.Int()).String() == v.String() {
			return v.Int()
		}
	case model.KindFloat:
		if model.FloatValue(v.Float()).String() == v.String() {
			return v.Float()
		}
	}
	return v.String()
}
