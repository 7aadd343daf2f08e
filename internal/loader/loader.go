// Package loader reads record files into data tables ready for ingest.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

type options struct {
	sheet   string
	columns []string
}

type Option func(o *options)

// WithSheet selects the workbook sheet to read. The first sheet is used
// when unset. Ignored for csv files.
func WithSheet(name string) Option {
	return func(o *options) {
		o.sheet = name
	}
}

// WithColumns keeps only the named columns, in the given order.
func WithColumns(columns ...string) Option {
	return func(o *options) {
		o.columns = columns
	}
}

// LoadFile reads a .csv or .xlsx file. The first record names the columns.
func LoadFile(path string, opts ...Option) (datatable.DataTable, error) {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}

	var (
		t   datatable.DataTable
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		t, err = loadCSV(path)
	case ".xlsx":
		t, err = loadXLSX(path, o.sheet)
	default:
		return datatable.DataTable{}, errors.Wrapf(ErrUnsupportedFormat, "%q", ext)
	}
	if err != nil {
		return datatable.DataTable{}, err
	}

	if err := checkColumns(t.Columns()); err != nil {
		return datatable.DataTable{}, errors.Wrapf(err, "loading %s", path)
	}

	if len(o.columns) > 0 {
		return project(t, o.columns)
	}
	return t, nil
}

func loadCSV(path string) (datatable.DataTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return datatable.DataTable{}, errors.Wrap(err, "failed to open csv file")
	}
	defer f.Close()

	t, err := datatable.Decode(f)
	if err != nil {
		return datatable.DataTable{}, errors.Wrapf(err, "failed to decode %s", path)
	}
	return t, nil
}

func checkColumns(columns []string) error {
	if funk.ContainsString(columns, "") {
		return errors.New("header contains an empty column name")
	}
	if uniq := funk.UniqString(columns); len(uniq) != len(columns) {
		return fmt.Errorf("header contains duplicate columns: %s", strings.Join(duplicates(columns), ", "))
	}
	return nil
}

func duplicates(columns []string) []string {
	seen := map[string]int{}
	for _, c := range columns {
		seen[c]++
	}
	return funk.FilterString(funk.UniqString(columns), func(c string) bool {
		return seen[c] > 1
	})
}

// project returns a table holding only columns.
func project(t datatable.DataTable, columns []string) (datatable.DataTable, error) {
	missing := funk.FilterString(columns, func(c string) bool {
		return !funk.ContainsString(t.Columns(), c)
	})
	if len(missing) > 0 {
		return datatable.DataTable{}, fmt.Errorf("unknown columns: %s", strings.Join(missing, ", "))
	}

	b := datatable.NewBuilder(columns...)
	for _, r := range t.Rows() {
		b.AddRowMap(r)
	}
	return b.Build(), nil
}
