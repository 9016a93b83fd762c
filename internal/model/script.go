package model

import "time"

// ScriptRun identifies one logical enrichment job definition.
type ScriptRun struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	Description *string `json:"description,omitempty"`
}

// ScriptActivity is a single execution attempt of a ScriptRun.
type ScriptActivity struct {
	ID           int64      `json:"id"`
	RunID        int64      `json:"run_id"`
	StartedAt    time.Time  `json:"started_at"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
	ErrorCode    *string    `json:"error_code,omitempty"`
	ErrorText    *string    `json:"error_text,omitempty"`
}

// Open reports whether the activity has not been closed yet.
func (a *ScriptActivity) Open() bool {
	return a.TerminatedAt == nil
}

// Failed reports whether the activity was closed with an error.
func (a *ScriptActivity) Failed() bool {
	return a.ErrorCode != nil
}

// ProcessedMark records that a firm was handled by a run.
type ProcessedMark struct {
	FirmID     int64 `json:"firm_id"`
	RunID      int64 `json:"run_id"`
	ActivityID int64 `json:"activity_id"`
}
