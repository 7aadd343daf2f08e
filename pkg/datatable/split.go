package datatable

// DefaultChunkSizeLimit is the serialized CSV size, header included, that a
// single chunk must stay under.
const DefaultChunkSizeLimit = 100_000_000

// Split partitions t into chunks whose serialized size stays under
// DefaultChunkSizeLimit.
func Split(t DataTable) []DataTable {
	return SplitWithLimit(t, DefaultChunkSizeLimit)
}

// SplitWithLimit partitions t into chunks whose serialized size, header
// included, is strictly less than limit. Row order is preserved and rows are
// never split: a row that reaches the limit on its own is emitted as a chunk
// of one. At least one table is always returned.
func SplitWithLimit(t DataTable, limit int) []DataTable {
	s := newSizer(t.columns)
	headerSize := s.header()

	var chunks []DataTable
	current := NewBuilder(t.columns...)
	size := headerSize

	for _, r := range t.rows {
		rowSize := s.row(r)
		if size+rowSize < limit || current.Len() == 0 {
			current.appendRow(r)
			size += rowSize
			continue
		}

		chunks = append(chunks, current.Build())
		current = NewBuilder(t.columns...)
		current.appendRow(r)
		size = headerSize + rowSize
	}

	return append(chunks, current.Build())
}
