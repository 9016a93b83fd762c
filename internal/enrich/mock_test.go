package enrich

import (
	"context"
	"iter"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/resolve"
	"github.com/sells-group/contact-enricher/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) NextBatch(ctx context.Context, q store.BatchQuery) ([]int64, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockStore) LoadFirms(ctx context.Context, ids []int64) ([]model.Firm, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Firm), args.Error(1)
}

func (m *mockStore) AcquireLeases(ctx context.Context, l store.Lease, ids []int64) ([]int64, error) {
	args := m.Called(ctx, l, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockStore) ReleaseLeases(ctx context.Context, runID int64, token uuid.UUID) error {
	args := m.Called(ctx, runID, token)
	return args.Error(0)
}

func (m *mockStore) WriteGeneratedValues(ctx context.Context, rows []model.GeneratedValue) (int64, error) {
	args := m.Called(ctx, rows)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) WriteProcessedMarks(ctx context.Context, firmIDs []int64, runID, activityID int64) (int64, error) {
	args := m.Called(ctx, firmIDs, runID, activityID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) PersistBatch(ctx context.Context, b store.BatchResult) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

// --- Registry Mock ---

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) GetOrCreateRun(ctx context.Context, name, version, description string) (int64, error) {
	args := m.Called(ctx, name, version, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRegistry) StartActivity(ctx context.Context, runID int64) (int64, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRegistry) EndActivity(ctx context.Context, activityID int64, runErr error) error {
	args := m.Called(ctx, activityID, runErr)
	return args.Error(0)
}

// --- Resolver Fake ---

type fakeResolver struct {
	urls  map[int64]string
	calls []int64
}

func (f *fakeResolver) Resolve(_ context.Context, firm *model.Firm) (resolve.Resolution, bool) {
	f.calls = append(f.calls, firm.ID)
	u, ok := f.urls[firm.ID]
	if !ok {
		return resolve.Resolution{Search: resolve.SearchEmpty}, false
	}
	return resolve.Resolution{URL: u, Method: resolve.MethodSearch, Search: resolve.SearchFound}, true
}

// --- Extractor Fake ---

// fakeExtractor yields canned candidates per URL. An entry in errs makes
// the sequence fail after yielding the canned values.
type fakeExtractor struct {
	pages map[string][]string
	errs  map[string]error
	urls  []string
}

func (f *fakeExtractor) Extract(_ context.Context, _ int64, url string, field model.FieldType) iter.Seq2[string, error] {
	f.urls = append(f.urls, url)
	return func(yield func(string, error) bool) {
		if field == model.FieldURL {
			yield(url, nil)
			return
		}
		for _, v := range f.pages[url] {
			if !yield(v, nil) {
				return
			}
		}
		if err := f.errs[url]; err != nil {
			yield("", err)
		}
	}
}
