package datatable

// Builder accumulates rows under a fixed column set.
type Builder struct {
	columns []string
	known   map[string]struct{}
	rows    []Row
}

func NewBuilder(columns ...string) *Builder {
	cols := make([]string, len(columns))
	copy(cols, columns)

	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c] = struct{}{}
	}

	return &Builder{columns: cols, known: known}
}

// AddRow adds a row from positional values matched to the columns in order.
// Values beyond the last column are ignored.
func (b *Builder) AddRow(values ...string) *Builder {
	row := make(Row, len(b.columns))
	for i, v := range values {
		if i >= len(b.columns) {
			break
		}
		row[b.columns[i]] = v
	}
	b.rows = append(b.rows, row)
	return b
}

// AddRowMap adds a row from a column to value mapping. Keys that are not one
// of the builder columns are dropped.
func (b *Builder) AddRowMap(values map[string]string) *Builder {
	row := make(Row, len(values))
	for k, v := range values {
		if _, ok := b.known[k]; ok {
			row[k] = v
		}
	}
	b.rows = append(b.rows, row)
	return b
}

// appendRow adds r as is. Callers guarantee its keys are a subset of the columns.
func (b *Builder) appendRow(r Row) {
	b.rows = append(b.rows, r)
}

func (b *Builder) Len() int {
	return len(b.rows)
}

// Build returns the table. The builder can keep accepting rows afterwards
// without affecting tables that were already built.
func (b *Builder) Build() DataTable {
	rows := make([]Row, len(b.rows))
	copy(rows, b.rows)
	cols := make([]string, len(b.columns))
	copy(cols, b.columns)
	return DataTable{columns: cols, rows: rows}
}
