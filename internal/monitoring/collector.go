// Package monitoring checks run health from recorded activities and
// delivers alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/model"
)

// maxActivities bounds how many activities one snapshot inspects.
const maxActivities = 10000

// Snapshot holds a point-in-time view of one run's health.
type Snapshot struct {
	RunID   int64  `json:"run_id"`
	Name    string `json:"name"`
	Version string `json:"version"`

	// Activity counts within the lookback window.
	Total     int     `json:"total"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Running   int     `json:"running"`
	Stale     int     `json:"stale"`
	FailRate  float64 `json:"fail_rate"`

	// ErrorCodes counts failed activities by error code.
	ErrorCodes map[string]int `json:"error_codes,omitempty"`
	// LastFailure is the error of the newest finished activity, when it failed.
	LastFailure *Failure `json:"last_failure,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Failure describes one failed activity.
type Failure struct {
	ActivityID int64  `json:"activity_id"`
	Code       string `json:"code"`
	Text       string `json:"text,omitempty"`
}

// ActivityLister abstracts the store methods the collector needs.
type ActivityLister interface {
	FindRun(ctx context.Context, name, version string) (*model.ScriptRun, error)
	ListActivities(ctx context.Context, runID int64, limit int) ([]model.ScriptActivity, error)
}

// Collector gathers activity metrics for a run.
type Collector struct {
	store      ActivityLister
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. An open activity older than staleAfter
// counts as stale; zero disables the check.
func NewCollector(st ActivityLister, staleAfter time.Duration) *Collector {
	return &Collector{store: st, staleAfter: staleAfter, now: time.Now}
}

// Collect gathers a snapshot of the run (name, version) over the lookback
// window. A lookback of zero covers all history.
func (c *Collector) Collect(ctx context.Context, name, version string, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		Name:          name,
		Version:       version,
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	run, err := c.store.FindRun(ctx, name, version)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: find run")
	}
	snap.RunID = run.ID

	acts, err := c.store.ListActivities(ctx, run.ID, maxActivities)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list activities")
	}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	// Activities arrive newest first.
	for i := range acts {
		a := &acts[i]
		if a.StartedAt.Before(cutoff) {
			continue
		}
		snap.Total++

		switch {
		case a.Open():
			snap.Running++
			if c.staleAfter > 0 && now.Sub(a.StartedAt) > c.staleAfter {
				snap.Stale++
			}
			continue
		case a.Failed():
			snap.Failed++
			if snap.ErrorCodes == nil {
				snap.ErrorCodes = make(map[string]int)
			}
			snap.ErrorCodes[*a.ErrorCode]++
		default:
			snap.Succeeded++
		}

		if snap.Succeeded+snap.Failed == 1 && a.Failed() {
			f := &Failure{ActivityID: a.ID, Code: *a.ErrorCode}
			if a.ErrorText != nil {
				f.Text = *a.ErrorText
			}
			snap.LastFailure = f
		}
	}

	if finished := snap.Succeeded + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
