package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/importer"
	"github.com/sells-group/contact-enricher/internal/model"
)

const seedChunk = 1000

// registrySeeder is implemented by stores that can load firms into local
// registry tables.
type registrySeeder interface {
	registryMigrator
	SeedFirms(ctx context.Context, firms []model.Firm) (int64, error)
}

var seedCmd = &cobra.Command{
	Use:         "seed <file>",
	Short:       "Load firms from a CSV or XLSX export into the local registry",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{configMode: "migrate"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sd, ok := st.(registrySeeder)
		if !ok {
			return eris.Errorf("seed: not supported by the %s store", cfg.Store.Driver)
		}
		if err := sd.MigrateRegistry(ctx); err != nil {
			return eris.Wrap(err, "seed: migrate registry")
		}

		sheet, _ := cmd.Flags().GetString("sheet")
		var rows iter.Seq2[[]string, error]
		if sheet != "" && strings.EqualFold(filepath.Ext(path), ".xlsx") {
			rows = importer.XLSXRows(ctx, path, sheet)
		} else {
			rows = importer.Rows(ctx, path)
		}

		var (
			pending     []model.Firm
			loaded, bad int64
		)
		flush := func() error {
			if len(pending) == 0 {
				return nil
			}
			n, err := sd.SeedFirms(ctx, pending)
			if err != nil {
				return err
			}
			loaded += n
			pending = pending[:0]
			return nil
		}

		for f, err := range importer.Firms(rows, time.Now().UTC()) {
			var rowErr *importer.RowError
			if errors.As(err, &rowErr) {
				bad++
				zap.L().Warn("seed: skipping row", zap.Int("row", rowErr.Row), zap.Error(rowErr.Err))
				continue
			}
			if err != nil {
				return eris.Wrapf(err, "seed: read %s", path)
			}
			pending = append(pending, f)
			if len(pending) >= seedChunk {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := flush(); err != nil {
			return err
		}

		zap.L().Info("seed complete",
			zap.String("file", path),
			zap.Int64("firms", loaded),
			zap.Int64("skipped", bad),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d firms (%d rows skipped).\n", loaded, bad)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("sheet", "", "worksheet to read from an XLSX file (default first sheet)")
	rootCmd.AddCommand(seedCmd)
}
