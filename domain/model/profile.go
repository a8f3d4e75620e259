package model

// ColumnProfile holds descriptive statistics for one column
type ColumnProfile struct {
	Name          string     `json:"name"`
	Type          ColumnType `json:"type"`
	NonNullCount  int        `json:"non_null_count"`
	DistinctCount int        `json:"distinct_count"`
}

// TableSummary holds the headline figures of an uploaded file
type TableSummary struct {
	SizeBytes    int64 `json:"size_bytes"`
	TotalRows    int   `json:"total_rows"`
	TotalColumns int   `json:"total_columns"`
}

// Profile computes per-column statistics. Distinct counts ignore nulls.
func (t *Table) Profile() []ColumnProfile {
	profiles := make([]ColumnProfile, len(t.columns))
	for c, col := range t.columns {
		distinct := make(map[string]struct{})
		nonNull := 0
		for _, record := range t.records {
			v := record[c]
			if v.IsNull() {
				continue
			}
			nonNull++
			distinct[v.key()] = struct{}{}
		}
		profiles[c] = ColumnProfile{
			Name:          col.Name,
			Type:          col.Type,
			NonNullCount:  nonNull,
			DistinctCount: len(distinct),
		}
	}
	return profiles
}

// Summarize returns the summary of the table read from sizeBytes of input
func (t *Table) Summarize(sizeBytes int64) TableSummary {
	return TableSummary{
		SizeBytes:    sizeBytes,
		TotalRows:    t.RowCount(),
		TotalColumns: t.ColumnCount(),
	}
}
