//go:build !integration

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-enricher/internal/config"
)

// loadTestConfig loads defaults from an empty temp dir and installs them as
// the package config.
func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	chdirTemp(t)
	c, err := config.Load()
	require.NoError(t, err)
	cfg = c
	return c
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

// sqliteEnv points the CLI at a fresh SQLite file with web search off.
func sqliteEnv(t *testing.T) string {
	t.Helper()
	dir := chdirTemp(t)
	dbPath := filepath.Join(dir, "enricher.db")
	t.Setenv("ENRICH_STORE_DRIVER", "sqlite")
	t.Setenv("ENRICH_STORE_DATABASE_URL", dbPath)
	t.Setenv("ENRICH_SEARCH_PROVIDER", "none")
	t.Setenv("ENRICH_LOG_LEVEL", "error")
	return dbPath
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})
	err := rootCmd.Execute()
	return out.String() + errOut.String(), err
}

// resetFlags restores every flag in the tree so executions do not leak
// values into each other.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
