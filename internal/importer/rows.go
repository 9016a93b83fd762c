// Package importer reads firm registry exports from CSV and XLSX files.
package importer

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Rows yields every row of the file at path, header included. The format
// is chosen by extension: .csv, .tsv and .txt are delimited text, .xlsx is
// read from its first sheet.
func Rows(ctx context.Context, path string) iter.Seq2[[]string, error] {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		return fileRows(ctx, path, ',')
	case ".tsv":
		return fileRows(ctx, path, '\t')
	case ".xlsx":
		return XLSXRows(ctx, path, "")
	default:
		return func(yield func([]string, error) bool) {
			yield(nil, eris.Errorf("importer: unsupported file type %q", ext))
		}
	}
}

func fileRows(ctx context.Context, path string, delim rune) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, eris.Wrapf(err, "importer: open %s", path))
			return
		}
		defer f.Close() //nolint:errcheck

		for row, err := range CSVRows(ctx, f, delim) {
			if !yield(row, err) {
				return
			}
		}
	}
}
