package datatable

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// Encoder writes a table as comma delimited CSV with LF line endings, one
// row at a time, so callers never hold the serialized table in memory.
type Encoder struct {
	out     io.Writer
	w       *csv.Writer
	columns []string
	buf     []string
}

func NewEncoder(w io.Writer, columns []string) *Encoder {
	cw := csv.NewWriter(w)
	cw.UseCRLF = false
	return &Encoder{out: w, w: cw, columns: columns, buf: make([]string, 0, len(columns))}
}

func (e *Encoder) WriteHeader() error {
	return e.w.Write(e.columns)
}

// WriteRow writes r in column order. A lone empty field is written quoted,
// otherwise the row would be a blank line that readers skip.
func (e *Encoder) WriteRow(r Row) error {
	e.buf = record(e.columns, r, e.buf)
	if len(e.buf) == 1 && e.buf[0] == "" {
		if err := e.Flush(); err != nil {
			return err
		}
		_, err := io.WriteString(e.out, "\"\"\n")
		return err
	}
	return e.w.Write(e.buf)
}

// Flush pushes buffered rows to the underlying writer.
func (e *Encoder) Flush() error {
	e.w.Flush()
	return e.w.Error()
}

// Encode writes the header and every row of t to w.
func Encode(w io.Writer, t DataTable) error {
	enc := NewEncoder(w, t.columns)
	if err := enc.WriteHeader(); err != nil {
		return err
	}
	for _, r := range t.rows {
		if err := enc.WriteRow(r); err != nil {
			return err
		}
	}
	return enc.Flush()
}

// ErrDuplicateColumn is returned by Decode when a header names a column twice.
var ErrDuplicateColumn = errors.New("duplicate column")

// Decode reads CSV whose first record names the columns. An empty input
// yields an empty table without columns.
func Decode(r io.Reader) (DataTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Empty(), nil
	}
	if err != nil {
		return DataTable{}, fmt.Errorf("reading csv header: %w", err)
	}
	seen := make(map[string]struct{}, len(header))
	for _, c := range header {
		if _, ok := seen[c]; ok {
			return DataTable{}, fmt.Errorf("reading csv header: %w %q", ErrDuplicateColumn, c)
		}
		seen[c] = struct{}{}
	}
	b := NewBuilder(header...)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return DataTable{}, fmt.Errorf("reading csv record %d: %w", b.Len()+1, err)
		}
		b.AddRow(rec...)
	}

	return b.Build(), nil
}

// sizer measures the serialized size of rows through a reusable buffer.
type sizer struct {
	buf bytes.Buffer
	enc *Encoder
}

func newSizer(columns []string) *sizer {
	s := &sizer{}
	s.enc = NewEncoder(&s.buf, columns)
	return s
}

func (s *sizer) header() int {
	s.buf.Reset()
	_ = s.enc.WriteHeader()
	_ = s.enc.Flush()
	return s.buf.Len()
}

func (s *sizer) row(r Row) int {
	s.buf.Reset()
	_ = s.enc.WriteRow(r)
	_ = s.enc.Flush()
	return s.buf.Len()
}
