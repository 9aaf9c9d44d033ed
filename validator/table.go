package validator

// Column is one named column of an in-memory tabular snapshot. Type is the
// declared type label ("int64", "float64", "string", ...); a nil entry in
// Values is a missing value.
type Column struct {
	Type   string
	Values []interface{}
}

// Table is the tabular input to validation: a set of named columns.
type Table struct {
	Columns map[string]Column
}

// RowCount returns the length of the longest column.
func (t Table) RowCount() int {
	rows := 0
	for _, col := range t.Columns {
		if len(col.Values) > rows {
			rows = len(col.Values)
		}
	}
	return rows
}
