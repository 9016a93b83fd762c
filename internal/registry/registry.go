// Package registry records enrichment runs and their execution attempts.
package registry

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MaxErrorText bounds the error text stored on an activity.
const MaxErrorText = 2000

// Fallback error codes for failures that carry no code of their own.
const (
	CodeCanceled = "CANCELED"
	CodeInternal = "INTERNAL"
)

// endTimeout bounds closing an activity after the run context is gone.
const endTimeout = 10 * time.Second

// Backend is the storage the registry needs.
type Backend interface {
	GetOrCreateRun(ctx context.Context, name, version string, description *string) (int64, error)
	StartActivity(ctx context.Context, runID int64) (int64, error)
	EndActivity(ctx context.Context, activityID int64, errorCode, errorText *string) error
}

// Coder is implemented by errors that know their activity error code.
type Coder interface {
	ErrorCode() string
}

// Registry tracks runs (one per name and version) and activities (one per
// execution attempt).
type Registry struct {
	backend Backend
}

// New creates a Registry over backend.
func New(backend Backend) *Registry {
	return &Registry{backend: backend}
}

// GetOrCreateRun returns the run id for (name, version), creating it on
// first use. An empty description is stored as NULL.
func (r *Registry) GetOrCreateRun(ctx context.Context, name, version, description string) (int64, error) {
	if name == "" || version == "" {
		return 0, eris.New("registry: run name and version are required")
	}
	var desc *string
	if description != "" {
		desc = &description
	}
	id, err := r.backend.GetOrCreateRun(ctx, name, version, desc)
	if err != nil {
		return 0, eris.Wrap(err, "registry: get or create run")
	}
	return id, nil
}

// StartActivity opens an execution attempt for runID.
func (r *Registry) StartActivity(ctx context.Context, runID int64) (int64, error) {
	id, err := r.backend.StartActivity(ctx, runID)
	if err != nil {
		return 0, eris.Wrap(err, "registry: start activity")
	}
	zap.L().Info("activity started", zap.Int64("run_id", runID), zap.Int64("activity_id", id))
	return id, nil
}

// EndActivity closes an activity. A nil runErr records a clean finish;
// otherwise its code and text are stored. It still runs when ctx has been
// canceled so interrupted runs are closed too.
func (r *Registry) EndActivity(ctx context.Context, activityID int64, runErr error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
	defer cancel()

	var code, text *string
	if runErr != nil {
		c, t := Describe(runErr)
		code, text = &c, &t
	}

	if err := r.backend.EndActivity(ctx, activityID, code, text); err != nil {
		return eris.Wrapf(err, "registry: end activity %d", activityID)
	}

	fields := []zap.Field{zap.Int64("activity_id", activityID)}
	if runErr != nil {
		zap.L().Error("activity failed", append(fields, zap.String("error_code", *code), zap.Error(runErr))...)
	} else {
		zap.L().Info("activity finished", fields...)
	}
	return nil
}

// Describe returns the error code and bounded error text for err.
func Describe(err error) (code, text string) {
	var c Coder
	switch {
	case errors.As(err, &c):
		code = c.ErrorCode()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = CodeCanceled
	default:
		code = CodeInternal
	}
	return code, truncate(err.Error(), MaxErrorText)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
