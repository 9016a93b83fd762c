package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/monitoring"
	"github.com/sells-group/contact-enricher/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
	Long: "Commands for listing and checking the activities recorded against the configured script run. " +
		"They only read; run migrate first on a fresh database.",
	Annotations: map[string]string{configMode: "runs"},
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List activities of the configured run, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")

		run, err := st.FindRun(ctx, cfg.Script.Name, cfg.Script.Version)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(cmd.ErrOrStderr(), "No run named %s %s.\n", cfg.Script.Name, cfg.Script.Version)
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		acts, err := st.ListActivities(ctx, run.ID, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(acts) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No activities found.")
			return nil
		}

		formatActivities(cmd.OutOrStdout(), run, acts)
		return nil
	},
}

// -- runs health --

var runsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check recent activities of the configured run and raise alerts",
	Long: "Summarizes activity outcomes over the lookback window, evaluates the monitoring " +
		"thresholds and posts any alerts to monitoring.webhook_url when it is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lookback := cfg.Monitoring.LookbackHours
		if cmd.Flags().Changed("lookback") {
			lookback, _ = cmd.Flags().GetInt("lookback")
		}

		collector := monitoring.NewCollector(st, cfg.Monitoring.StaleAfter)
		snap, err := collector.Collect(ctx, cfg.Script.Name, cfg.Script.Version, lookback)
		if err != nil {
			return eris.Wrap(err, "runs health")
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		sent := alerter.SendAlerts(ctx, alerts)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(healthReport{Snapshot: snap, Alerts: alerts, Sent: sent})
	},
}

// healthReport is the output of runs health.
type healthReport struct {
	Snapshot *monitoring.Snapshot `json:"snapshot"`
	Alerts   []monitoring.Alert   `json:"alerts"`
	Sent     int                  `json:"alerts_sent"`
}

func init() {
	runsListCmd.Flags().Int("limit", 50, "max number of activities to display")
	runsHealthCmd.Flags().Int("lookback", 0, "hours of history to inspect (default monitoring.lookback_hours)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsHealthCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatActivities writes a tabular list of activities to out.
func formatActivities(out io.Writer, run *model.ScriptRun, acts []model.ScriptActivity) {
	_, _ = fmt.Fprintf(out, "Run %d: %s %s\n", run.ID, run.Name, run.Version)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t--------\t-----")

	for _, a := range acts {
		status, dur := "running", ""
		if !a.Open() {
			status = "ok"
			dur = a.TerminatedAt.Sub(a.StartedAt).Round(time.Second).String()
		}

		errText := ""
		if a.Failed() {
			status = *a.ErrorCode
			if a.ErrorText != nil {
				errText = *a.ErrorText
			}
		}
		if r := []rune(errText); len(r) > 60 {
			errText = string(r[:57]) + "..."
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.StartedAt.Format("2006-01-02 15:04"),
			status,
			dur,
			errText,
		)
	}
	_ = w.Flush()
}
