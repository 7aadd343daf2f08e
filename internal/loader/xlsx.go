package loader

import (
	"strings"

	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

func loadXLSX(path string, sheet string) (datatable.DataTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return datatable.DataTable{}, errors.Wrap(err, "failed to open xlsx file")
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return datatable.Empty(), nil
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return datatable.DataTable{}, errors.Wrapf(err, "failed to read sheet %q", sheet)
	}
	if len(rows) == 0 {
		return datatable.Empty(), nil
	}

	header := trimTrailingEmpty(rows[0])
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	b := datatable.NewBuilder(header...)
	for _, row := range rows[1:] {
		// GetRows drops trailing empty cells, AddRow leaves those columns blank
		if len(trimTrailingEmpty(row)) == 0 {
			continue
		}
		b.AddRow(row...)
	}
	return b.Build(), nil
}

func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}
