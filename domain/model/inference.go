package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// datetimePattern groups parse layouts that share a textual shape.
// store is the layout used to render matching values for SQLite.
type datetimePattern struct {
	pattern *regexp.Regexp
	formats []string
	store   string
}

// Common datetime shapes to detect
var datetimePatterns = []datetimePattern{
	// ISO8601 with timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`),
		[]string{time.RFC3339, time.RFC3339Nano},
		time.RFC3339Nano,
	},
	// ISO8601 without timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999"},
		isoDateTime,
	},
	// ISO8601 date and time with space
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}(:\d{2}(\.\d+)?)?$`),
		[]string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.999999999", "2006-01-02 15:04"},
		isoDateTime,
	},
	// ISO8601 date only
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		[]string{"2006-01-02"},
		isoDate,
	},
	// Slash separated year first
	{
		regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}$`),
		[]string{"2006/1/2", "2006/01/02"},
		isoDate,
	},
	// US formats
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4} \d{1,2}:\d{2}(:\d{2})?( (AM|PM))?$`),
		[]string{"1/2/2006 15:04:05", "1/2/2006 3:04:05 PM", "01/02/2006 15:04:05", "1/2/2006 15:04", "1/2/2006 3:04 PM"},
		isoDateTime,
	},
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),
		[]string{"1/2/2006", "01/02/2006"},
		isoDate,
	},
	// European formats
	{
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4} \d{1,2}:\d{2}:\d{2}$`),
		[]string{"2.1.2006 15:04:05", "02.01.2006 15:04:05"},
		isoDateTime,
	},
	{
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`),
		[]string{"2.1.2006", "02.01.2006"},
		isoDate,
	},
	// Time only
	{
		regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"15:04:05", "15:04:05.999999999", "3:04:05"},
		isoTime,
	},
	{
		regexp.MustCompile(`^\d{1,2}:\d{2}$`),
		[]string{"15:04", "3:04"},
		isoTime,
	},
}

// parseDatetime returns the parsed time and the layout used to store it
func parseDatetime(value string) (time.Time, string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, "", false
	}

	for _, dp := range datetimePatterns {
		if !dp.pattern.MatchString(value) {
			continue
		}
		for _, format := range dp.formats {
			if t, err := time.Parse(format, value); err == nil {
				return t, dp.store, true
			}
		}
	}
	return time.Time{}, "", false
}

// IsDatetime reports whether a string value represents a datetime
func IsDatetime(value string) bool {
	_, _, ok := parseDatetime(value)
	return ok
}

// InferColumnType infers the logical column type from raw cell text.
// Null tokens are ignored. Priority: TEXT > DATETIME > FLOAT > INTEGER, with
// booleans only when every non-null cell is a boolean.
func InferColumnType(values []string) ColumnType {
	var (
		hasDatetime bool
		hasFloat    bool
		hasInteger  bool
		hasBoolean  bool
		seen        bool
	)

	for _, value := range values {
		if IsNullToken(value) {
			continue
		}
		value = strings.TrimSpace(value)
		seen = true

		if _, ok := parseBool(value); ok {
			hasBoolean = true
			continue
		}
		// Datetime first, so "2024-01-02" is not read as arithmetic
		if IsDatetime(value) {
			hasDatetime = true
			continue
		}
		if _, err := strconv.ParseInt(value, 10, 64); err == nil {
			hasInteger = true
			continue
		}
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			hasFloat = true
			continue
		}
		// Any text makes the whole column text
		return ColumnTypeText
	}

	numeric := hasInteger || hasFloat
	switch {
	case !seen:
		return ColumnTypeText
	case hasBoolean:
		if hasDatetime || numeric {
			return ColumnTypeText
		}
		return ColumnTypeBoolean
	case hasDatetime:
		if numeric {
			return ColumnTypeText
		}
		return ColumnTypeDatetime
	case hasFloat:
		return ColumnTypeFloat
	default:
		return ColumnTypeInteger
	}
}

// InferColumns infers column metadata from a header and raw records.
// Missing trailing cells count as null.
func InferColumns(header []string, records [][]string) []Column {
	columns := make([]Column, len(header))
	for i, name := range header {
		values := make([]string, 0, len(records))
		for _, record := range records {
			if i < len(record) {
				values = append(values, record[i])
			}
		}
		columns[i] = Column{Name: name, Type: InferColumnType(values)}
	}
	return columns
}
