package csvagent

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v18/arrow/array"
	pqfile "github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/nao1215/csvagent/domain/model"
)

var (
	errEmptyInput    = errors.New("input is empty")
	errMissingHeader = errors.New("header row is missing")
	errNoSheets      = errors.New("workbook has no sheets")
)

// parseTable decodes raw (already decompressed) file content into a table
func parseTable(ctx context.Context, data []byte, fileType model.FileType, tableName string) (*model.Table, error) {
	if len(data) == 0 {
		return nil, errEmptyInput
	}

	switch fileType {
	case model.FileTypeCSV, model.FileTypeTSV:
		return parseDelimited(data, fileType.Delimiter(), tableName)
	case model.FileTypeXLSX:
		return parseXLSX(data, tableName)
	case model.FileTypeXLS:
		return parseXLS(data, tableName)
	case model.FileTypeParquet:
		return parseParquet(ctx, data, tableName)
	default:
		return nil, fmt.Errorf("no parser for %s", fileType)
	}
}

// parseDelimited parses CSV or TSV text. The first record is the header.
// A leading byte-order mark selects UTF-8 or UTF-16 decoding and is dropped.
func parseDelimited(data []byte, delimiter rune, tableName string) (*model.Table, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	reader := csv.NewReader(transform.NewReader(bytes.NewReader(data), decoder))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = delimiter == '\t'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read delimited data: %w", err)
	}
	if len(records) == 0 {
		return nil, errMissingHeader
	}
	return model.NewTable(tableName, records[0], records[1:]), nil
}

// parseXLSX parses the first sheet of an XLSX workbook
func parseXLSX(data []byte, tableName string) (*model.Table, error) {
	xlsxFile, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() {
		_ = xlsxFile.Close() // Ignore close error
	}()

	sheetNames := xlsxFile.GetSheetList()
	if len(sheetNames) == 0 {
		return nil, errNoSheets
	}

	sheetName := sheetNames[0]
	rows, err := xlsxFile.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
	}
	return tableFromRows(rows, tableName)
}

// parseXLS parses the first sheet of a legacy BIFF workbook
func parseXLS(data []byte, tableName string) (table *model.Table, err error) {
	// The BIFF decoder panics on some corrupt inputs
	defer func() {
		if r := recover(); r != nil {
			table, err = nil, fmt.Errorf("corrupt workbook: %v", r)
		}
	}()

	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	if workbook.NumSheets() == 0 {
		return nil, errNoSheets
	}
	sheet := workbook.GetSheet(0)
	if sheet == nil {
		return nil, errNoSheets
	}

	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		rows = append(rows, cells)
	}
	return tableFromRows(trimTrailingEmptyRows(rows), tableName)
}

// parseParquet parses a Parquet file through Arrow
func parseParquet(ctx context.Context, data []byte, tableName string) (*model.Table, error) {
	pqReader, err := pqfile.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	arrowTable, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	defer arrowTable.Release()

	schema := arrowTable.Schema()
	header := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		header[i] = field.Name
	}

	tableReader := array.NewTableReader(arrowTable, 0)
	defer tableReader.Release()

	var rows [][]string
	for tableReader.Next() {
		batch := tableReader.Record()
		numRows := int(batch.NumRows())
		for i := range numRows {
			row := make([]string, batch.NumCols())
			for j, col := range batch.Columns() {
				if !col.IsNull(i) {
					row[j] = col.ValueStr(i)
				}
			}
			rows = append(rows, row)
		}
	}
	if err := tableReader.Err(); err != nil {
		return nil, fmt.Errorf("error reading table records: %w", err)
	}

	return model.NewTable(tableName, header, rows), nil
}

// tableFromRows treats the first spreadsheet row as the header
func tableFromRows(rows [][]string, tableName string) (*model.Table, error) {
	if len(rows) == 0 || isBlankRow(rows[0]) {
		return nil, errMissingHeader
	}
	return model.NewTable(tableName, rows[0], rows[1:]), nil
}

func trimTrailingEmptyRows(rows [][]string) [][]string {
	for len(rows) > 0 && isBlankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
