package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// registryMigrator is implemented by stores that can create local registry tables.
type registryMigrator interface {
	MigrateRegistry(ctx context.Context) error
}

var migrateCmd = &cobra.Command{
	Use:         "migrate",
	Short:       "Create the run bookkeeping tables",
	Annotations: map[string]string{configMode: "migrate"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		withRegistry, _ := cmd.Flags().GetBool("registry")
		if withRegistry {
			rm, ok := st.(registryMigrator)
			if !ok {
				return eris.Errorf("migrate: --registry is not supported by the %s store", cfg.Store.Driver)
			}
			if err := rm.MigrateRegistry(ctx); err != nil {
				return eris.Wrap(err, "migrate registry")
			}
		}

		zap.L().Info("migration complete",
			zap.String("driver", cfg.Store.Driver),
			zap.Bool("registry", withRegistry),
		)
		fmt.Fprintln(cmd.OutOrStdout(), "Migration complete.")
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("registry", false, "also create empty firm registry tables (sqlite only)")
	rootCmd.AddCommand(migrateCmd)
}
