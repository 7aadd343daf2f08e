// Package datatable holds the in-memory tabular value exchanged with bulk jobs:
// an ordered column list shared by a sequence of rows.
package datatable

// Row maps a column name to its string value. Columns without a value are
// absent from the map rather than set to an empty string.
type Row map[string]string

// Get returns the value of column and whether the row has one.
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	return v, ok
}

// DataTable is an immutable table. Column order defines serialization order.
// Every row only carries keys that appear in the column list.
type DataTable struct {
	columns []string
	rows    []Row
}

// Empty returns a table with the given columns and no rows.
func Empty(columns ...string) DataTable {
	return NewBuilder(columns...).Build()
}

// Columns returns a copy of the column list.
func (t DataTable) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

func (t DataTable) Len() int {
	return len(t.rows)
}

// Row returns the row at index i. The returned map must not be modified.
func (t DataTable) Row(i int) Row {
	return t.rows[i]
}

// Rows returns the rows in insertion order. The row maps are shared with the
// table and must not be modified.
func (t DataTable) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Value returns the value of column in row i.
func (t DataTable) Value(i int, column string) (string, bool) {
	if i < 0 || i >= len(t.rows) {
		return "", false
	}
	return t.rows[i].Get(column)
}

// Records returns the table as positional records in column order. Absent
// values are rendered as empty strings.
func (t DataTable) Records() [][]string {
	records := make([][]string, 0, len(t.rows))
	for _, r := range t.rows {
		records = append(records, record(t.columns, r, nil))
	}
	return records
}

// record renders r in column order, reusing buf when it has enough capacity.
func record(columns []string, r Row, buf []string) []string {
	buf = buf[:0]
	for _, c := range columns {
		buf = append(buf, r[c])
	}
	return buf
}
