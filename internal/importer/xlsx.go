package importer

import (
	"context"
	"iter"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXRows yields the rows of one sheet of the workbook at path. An empty
// sheet name selects the first sheet.
func XLSXRows(ctx context.Context, path, sheet string) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		f, err := xlsx.OpenFile(path)
		if err != nil {
			yield(nil, eris.Wrap(err, "xlsx: open file"))
			return
		}
		s, err := pickSheet(f, sheet)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, row := range s.Rows {
			if ctx.Err() != nil {
				yield(nil, eris.Wrap(ctx.Err(), "xlsx: context cancelled"))
				return
			}
			if row == nil {
				continue
			}
			if !yield(cellStrings(row), nil) {
				return
			}
		}
	}
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		s, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return s, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func cellStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = strings.TrimSpace(cell.String())
	}
	return cells
}
