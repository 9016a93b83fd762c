// Package enrich drives the batch loop that fills missing contact fields.
package enrich

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/resolve"
	"github.com/sells-group/contact-enricher/internal/store"
)

// Store is the subset of store.Store the loop uses.
type Store interface {
	NextBatch(ctx context.Context, q store.BatchQuery) ([]int64, error)
	LoadFirms(ctx context.Context, ids []int64) ([]model.Firm, error)
	AcquireLeases(ctx context.Context, l store.Lease, ids []int64) ([]int64, error)
	ReleaseLeases(ctx context.Context, runID int64, token uuid.UUID) error
	WriteGeneratedValues(ctx context.Context, rows []model.GeneratedValue) (int64, error)
	WriteProcessedMarks(ctx context.Context, firmIDs []int64, runID, activityID int64) (int64, error)
	PersistBatch(ctx context.Context, b store.BatchResult) error
}

// Registry records the run and the activity the loop executes under.
type Registry interface {
	GetOrCreateRun(ctx context.Context, name, version, description string) (int64, error)
	StartActivity(ctx context.Context, runID int64) (int64, error)
	EndActivity(ctx context.Context, activityID int64, runErr error) error
}

// Resolver finds a website for a firm without one.
type Resolver interface {
	Resolve(ctx context.Context, firm *model.Firm) (resolve.Resolution, bool)
}

// Extractor yields candidate values for one field from one page.
type Extractor interface {
	Extract(ctx context.Context, firmID int64, url string, field model.FieldType) iter.Seq2[string, error]
}

// Options configures a run.
type Options struct {
	Name        string
	Version     string
	Description string

	Variant   model.Variant
	BatchSize int
	// MaxBatches stops the loop early when > 0.
	MaxBatches int
	// MinAgeMonths excludes firms registered within this many months.
	MinAgeMonths int
	// LeaseTTL is how long a claimed batch stays reserved. 0 disables leasing.
	LeaseTTL time.Duration
	// MaxCandidates caps accepted values per firm per batch. Default 2.
	MaxCandidates int
	// Atomic writes values, marks and lease release in one transaction.
	// When false values and marks are written separately.
	Atomic bool

	Note       string
	Confidence float64
	TypeID     int
}

// Summary reports what a run did.
type Summary struct {
	RunID      int64  `json:"run_id"`
	ActivityID int64  `json:"activity_id"`
	Batches    int    `json:"batches"`
	Firms      int    `json:"firms"`
	Resolved   int    `json:"resolved"`
	Values     int    `json:"values"`
	Failures   int    `json:"record_failures"`
	Contended  int    `json:"contended"`
	Stopped    string `json:"stopped"`
}

// Stop reasons reported in Summary.Stopped.
const (
	StopDrained    = "drained"
	StopMaxBatches = "max_batches"
)

// Orchestrator runs the select, enrich and persist loop.
type Orchestrator struct {
	store     Store
	registry  Registry
	resolver  Resolver
	extractor Extractor
	opts      Options

	now      func() time.Time
	newToken func() uuid.UUID
}

// New returns an Orchestrator.
func New(st Store, reg Registry, res Resolver, ex Extractor, opts Options) *Orchestrator {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 2
	}
	return &Orchestrator{
		store:     st,
		registry:  reg,
		resolver:  res,
		extractor: ex,
		opts:      opts,
		now:       time.Now,
		newToken:  uuid.New,
	}
}

// Run registers the run, opens an activity, drains eligible firms batch by
// batch and closes the activity. A fatal error is recorded on the activity
// and returned.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	runID, err := o.registry.GetOrCreateRun(ctx, o.opts.Name, o.opts.Version, o.opts.Description)
	if err != nil {
		return sum, fail(KindConnectivity, "get or create run", 0, err)
	}
	sum.RunID = runID

	activityID, err := o.registry.StartActivity(ctx, runID)
	if err != nil {
		return sum, fail(KindConnectivity, "start activity", 0, err)
	}
	sum.ActivityID = activityID

	zap.L().Info("enrich: run started",
		zap.String("script", o.opts.Name),
		zap.String("version", o.opts.Version),
		zap.String("variant", string(o.opts.Variant)),
		zap.Int("batch_size", o.opts.BatchSize),
		zap.Int64("run_id", runID),
		zap.Int64("activity_id", activityID),
	)

	runErr := o.loop(ctx, &sum)

	if endErr := o.registry.EndActivity(ctx, activityID, runErr); endErr != nil {
		if runErr == nil {
			return sum, fail(KindPersistence, "end activity", sum.Batches, endErr)
		}
		zap.L().Error("enrich: could not record failure on activity", zap.Error(endErr))
	}
	if runErr != nil {
		return sum, runErr
	}

	zap.L().Info("enrich: run finished",
		zap.Int("batches", sum.Batches),
		zap.Int("firms", sum.Firms),
		zap.Int("values", sum.Values),
		zap.String("stopped", sum.Stopped),
	)
	return sum, nil
}

func (o *Orchestrator) loop(ctx context.Context, sum *Summary) error {
	for n := 1; ; n++ {
		if o.opts.MaxBatches > 0 && n > o.opts.MaxBatches {
			sum.Stopped = StopMaxBatches
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fail(KindCanceled, "fetch batch", n, err)
		}

		done, err := o.batch(ctx, n, sum)
		if err != nil {
			return err
		}
		if done {
			sum.Stopped = StopDrained
			return nil
		}
	}
}

// batch runs one iteration. done is true when no eligible firm is left.
func (o *Orchestrator) batch(ctx context.Context, n int, sum *Summary) (done bool, err error) {
	now := o.now().UTC()
	ids, err := o.store.NextBatch(ctx, store.BatchQuery{
		RunID:         sum.RunID,
		Variant:       o.opts.Variant,
		Size:          o.opts.BatchSize,
		CreatedBefore: now.AddDate(0, -o.opts.MinAgeMonths, 0),
		Now:           now,
	})
	if err != nil {
		return false, fail(KindConnectivity, "fetch batch", n, err)
	}
	if len(ids) == 0 {
		return true, nil
	}

	log := zap.L().With(zap.Int("batch", n))
	log.Info("batch fetched", zap.Int("firms", len(ids)))

	var token uuid.UUID
	if o.opts.LeaseTTL > 0 {
		token = o.newToken()
		claimed, err := o.store.AcquireLeases(ctx, store.Lease{
			RunID:      sum.RunID,
			ActivityID: sum.ActivityID,
			Token:      token,
			ExpiresAt:  now.Add(o.opts.LeaseTTL),
			Now:        now,
		}, ids)
		if err != nil {
			return false, fail(KindConnectivity, "acquire leases", n, err)
		}
		if lost := len(ids) - len(claimed); lost > 0 {
			sum.Contended += lost
			log.Info("batch partly claimed by another activity", zap.Int("lost", lost))
		}
		if len(claimed) == 0 {
			return false, nil
		}
		ids = claimed

		// A failed batch stays unmarked; drop its leases so the next run
		// can pick the firms up without waiting out the TTL.
		defer func() {
			if err != nil {
				o.releaseLeases(ctx, sum.RunID, token, n)
			}
		}()
	}

	firms, err := o.store.LoadFirms(ctx, ids)
	if err != nil {
		return false, fail(KindConnectivity, "load firms", n, err)
	}

	acc := NewAcceptor(o.opts.Variant.Target(), o.opts.MaxCandidates)
	var rows []model.GeneratedValue
	for i := range firms {
		if err := ctx.Err(); err != nil {
			return false, fail(KindCanceled, "enrich batch", n, err)
		}
		rows = append(rows, o.enrichFirm(ctx, &firms[i], acc, sum)...)
	}

	if err := o.persist(ctx, sum, ids, rows, token); err != nil {
		return false, fail(KindPersistence, "persist batch", n, err)
	}

	sum.Batches++
	sum.Firms += len(ids)
	sum.Values += len(rows)
	log.Info("batch persisted",
		zap.Int("firms", len(ids)),
		zap.Int("values", len(rows)),
		zap.Int("total_firms", sum.Firms),
		zap.Int("total_values", sum.Values),
	)
	return false, nil
}

func (o *Orchestrator) persist(ctx context.Context, sum *Summary, ids []int64, rows []model.GeneratedValue, token uuid.UUID) error {
	if o.opts.Atomic {
		return o.store.PersistBatch(ctx, store.BatchResult{
			RunID:      sum.RunID,
			ActivityID: sum.ActivityID,
			FirmIDs:    ids,
			Values:     rows,
			LeaseToken: token,
		})
	}
	// Values first: a crash in between leaves the firms unmarked and
	// eligible again.
	if _, err := o.store.WriteGeneratedValues(ctx, rows); err != nil {
		return eris.Wrap(err, "write generated values")
	}
	if _, err := o.store.WriteProcessedMarks(ctx, ids, sum.RunID, sum.ActivityID); err != nil {
		return eris.Wrap(err, "write processed marks")
	}
	if token != uuid.Nil {
		o.releaseLeases(ctx, sum.RunID, token, 0)
	}
	return nil
}

// releaseLeases is best effort: it runs even when ctx is canceled, and a
// failure only leaves the leases to expire.
func (o *Orchestrator) releaseLeases(ctx context.Context, runID int64, token uuid.UUID, batch int) {
	if err := o.store.ReleaseLeases(context.WithoutCancel(ctx), runID, token); err != nil {
		zap.L().Warn("enrich: release leases",
			zap.Int("batch", batch),
			zap.String("token", token.String()),
			zap.Error(err),
		)
	}
}

// enrichFirm returns the rows to stage for one firm. Resolution and
// extraction failures are logged and yield no rows.
func (o *Orchestrator) enrichFirm(ctx context.Context, firm *model.Firm, acc *Acceptor, sum *Summary) []model.GeneratedValue {
	log := zap.L().With(zap.Int64("firm_id", firm.ID))
	field := o.opts.Variant.Target()

	page := pageURL(firm.URL())
	statusID := model.StatusUnverified
	if page == "" {
		res, ok := o.resolver.Resolve(ctx, firm)
		if !ok {
			log.Debug("enrich: no website", zap.String("search", string(res.Search)), zap.Int("rejected", len(res.Rejected)))
			return nil
		}
		sum.Resolved++
		page = res.URL
		if field == model.FieldURL {
			statusID = model.StatusValid
		}
	}

	values, err := acc.Accept(firm, o.extractor.Extract(ctx, firm.ID, page, field))
	if err != nil {
		sum.Failures++
		log.Warn("enrich: extraction failed", zap.String("url", page), zap.Error(err))
		return nil
	}

	rows := make([]model.GeneratedValue, 0, len(values))
	for _, v := range values {
		rows = append(rows, model.GeneratedValue{
			FirmID:     firm.ID,
			Field:      field,
			Value:      v,
			Domain:     domainOf(field, v),
			TypeID:     o.opts.TypeID,
			StatusID:   statusID,
			Confidence: o.opts.Confidence,
			Note:       o.opts.Note,
			ActivityID: sum.ActivityID,
		})
	}
	return rows
}

// pageURL turns a stored website into a fetchable URL. Registry values
// are often bare hosts.
func pageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		return "http://" + raw
	}
	return raw
}

func domainOf(field model.FieldType, v string) string {
	switch field {
	case model.FieldEmail:
		return model.EmailDomain(v)
	case model.FieldURL:
		return model.URLHost(v)
	}
	return ""
}
