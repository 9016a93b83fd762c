package importer

import (
	"context"
	"encoding/csv"
	"io"
	"iter"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVRows yields trimmed records from r. Rows may have differing field
// counts. Iteration stops at the first read error.
func CSVRows(ctx context.Context, r io.Reader, delim rune) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		reader := csv.NewReader(r)
		if delim != 0 {
			reader.Comma = delim
		}
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for {
			if ctx.Err() != nil {
				yield(nil, eris.Wrap(ctx.Err(), "csv: context cancelled"))
				return
			}
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, eris.Wrap(err, "csv: read row"))
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}
