package integration

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/erp/stocksync/internal/domain/catalog"
	"github.com/erp/stocksync/internal/domain/integration"
	"github.com/erp/stocksync/internal/infrastructure/lock"
	"github.com/erp/stocksync/internal/infrastructure/telemetry"
)

// MockStockFetcher is a mock implementation of StockFetcher
type MockStockFetcher struct {
	mock.Mock
}

func (m *MockStockFetcher) FetchAllStock(ctx context.Context, apiKey string) ([]integration.StockRecord, error) {
	args := m.Called(ctx, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.StockRecord), args.Error(1)
}

// MockStockRepository is a mock implementation of StockRepository
type MockStockRepository struct {
	mock.Mock
}

func (m *MockStockRepository) FindProductIDBySku(ctx context.Context, sku string) (uuid.UUID, error) {
	args := m.Called(ctx, sku)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockStockRepository) SetQuantity(ctx context.Context, productID uuid.UUID, quantity int64) error {
	args := m.Called(ctx, productID, quantity)
	return args.Error(0)
}

// memorySettings is an in-memory ConfigProvider
type memorySettings struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemorySettings(values map[string]string) *memorySettings {
	if values == nil {
		values = map[string]string{}
	}
	return &memorySettings{values: values}
}

func (s *memorySettings) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.values[key], nil
}

func (s *memorySettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.values[key] = value
	return nil
}

// memoryStock is an in-memory StockRepository keyed by reference
type memoryStock struct {
	mu         sync.Mutex
	refs       map[string]uuid.UUID
	quantities map[uuid.UUID]int64
}

func (s *memoryStock) FindProductIDBySku(_ context.Context, sku string) (uuid.UUID, error) {
	if id, ok := s.refs[sku]; ok {
		return id, nil
	}
	return uuid.Nil, catalog.ErrSkuNotFound
}

func (s *memoryStock) SetQuantity(_ context.Context, productID uuid.UUID, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quantities[productID] = quantity
	return nil
}

var syncTime = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

func apiKeySettings() *memorySettings {
	return newMemorySettings(map[string]string{integration.ConfigKeyAPIKey: "api-key"})
}

func newTestService(t *testing.T, fetcher integration.StockFetcher, stock catalog.StockRepository, settings integration.ConfigProvider, opts ...StockSyncOption) *StockSyncService {
	t.Helper()
	base := []StockSyncOption{
		WithSyncLogger(zaptest.NewLogger(t)),
		WithSyncClock(clocktesting.NewFakePassiveClock(syncTime)),
	}
	return NewStockSyncService(fetcher, stock, settings, lock.NewInMemoryRunLocker(), append(base, opts...)...)
}

func TestStockSyncService_Run(t *testing.T) {
	ctx := context.Background()
	productID := uuid.New()

	fetcher := new(MockStockFetcher)
	fetcher.On("FetchAllStock", mock.Anything, "api-key").Return([]integration.StockRecord{
		{SKU: "SKU-1", Quantity: 10, Reserved: 3},
		{SKU: "", Quantity: 4},
		{SKU: "UNKNOWN", Quantity: 8},
	}, nil)

	stock := new(MockStockRepository)
	stock.On("FindProductIDBySku", mock.Anything, "SKU-1").Return(productID, nil)
	stock.On("FindProductIDBySku", mock.Anything, "UNKNOWN").Return(uuid.Nil, catalog.ErrSkuNotFound)
	stock.On("SetQuantity", mock.Anything, productID, int64(7)).Return(nil)

	svc := newTestService(t, fetcher, stock, apiKeySettings())

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, integration.SyncStatusSuccess, result.Status)
	assert.Equal(t, 3, result.FetchedCount)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, 1, result.UnresolvedCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Equal(t, syncTime, result.Timestamp)
	assert.NotEqual(t, uuid.Nil, result.RunID)

	stock.AssertNumberOfCalls(t, "SetQuantity", 1)
	fetcher.AssertExpectations(t)
	stock.AssertExpectations(t)

	last := svc.LastRun()
	require.NotNil(t, last)
	assert.NoError(t, last.Err)
	assert.Equal(t, result.RunID, last.Result.RunID)
}

func TestStockSyncService_Run_NegativeAvailable(t *testing.T) {
	tests := []struct {
		name  string
		clamp bool
		want  int64
	}{
		{name: "written as-is by default", clamp: false, want: -3},
		{name: "clamped to zero", clamp: true, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			productID := uuid.New()
			fetcher := new(MockStockFetcher)
			fetcher.On("FetchAllStock", mock.Anything, "api-key").Return([]integration.StockRecord{
				{SKU: "SKU-1", Quantity: 2, Reserved: 5},
			}, nil)
			stock := new(MockStockRepository)
			stock.On("FindProductIDBySku", mock.Anything, "SKU-1").Return(productID, nil)
			stock.On("SetQuantity", mock.Anything, productID, tt.want).Return(nil)

			svc := newTestService(t, fetcher, stock, apiKeySettings(), WithClampNegativeStock(tt.clamp))

			result, err := svc.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, result.UpdatedCount)
			stock.AssertExpectations(t)
		})
	}
}

func TestStockSyncService_Run_FetchFailure(t *testing.T) {
	fetcher := new(MockStockFetcher)
	fetcher.On("FetchAllStock", mock.Anything, "api-key").
		Return(nil, &integration.HTTPStatusError{StatusCode: 500})
	stock := new(MockStockRepository)

	svc := newTestService(t, fetcher, stock, apiKeySettings())

	result, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrHTTPStatus)
	require.NotNil(t, result)
	assert.Equal(t, integration.SyncStatusFailed, result.Status)
	assert.Equal(t, 0, result.UpdatedCount)

	stock.AssertNotCalled(t, "FindProductIDBySku", mock.Anything, mock.Anything)
	stock.AssertNotCalled(t, "SetQuantity", mock.Anything, mock.Anything, mock.Anything)

	last := svc.LastRun()
	require.NotNil(t, last)
	assert.ErrorIs(t, last.Err, integration.ErrHTTPStatus)
}

func TestStockSyncService_Run_MissingAPIKey(t *testing.T) {
	fetcher := new(MockStockFetcher)
	stock := new(MockStockRepository)

	svc := newTestService(t, fetcher, stock, newMemorySettings(map[string]string{
		integration.ConfigKeyAPIKey: "   ",
	}))

	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, integration.ErrConfig)
	fetcher.AssertNotCalled(t, "FetchAllStock", mock.Anything, mock.Anything)
}

func TestStockSyncService_Run_SettingsError(t *testing.T) {
	settings := newMemorySettings(nil)
	settings.err = errors.New("db down")

	svc := newTestService(t, new(MockStockFetcher), new(MockStockRepository), settings)

	result, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, integration.SyncStatusFailed, result.Status)
	assert.Equal(t, integration.ErrorKindInternal, integration.KindOf(err))
}

func TestStockSyncService_Run_WriteFailuresContinue(t *testing.T) {
	first, second, third := uuid.New(), uuid.New(), uuid.New()
	fetcher := new(MockStockFetcher)
	fetcher.On("FetchAllStock", mock.Anything, "api-key").Return([]integration.StockRecord{
		{SKU: "A", Quantity: 1},
		{SKU: "B", Quantity: 2},
		{SKU: "C", Quantity: 3},
		{SKU: "D", Quantity: 4},
	}, nil)

	stock := new(MockStockRepository)
	stock.On("FindProductIDBySku", mock.Anything, "A").Return(first, nil)
	stock.On("FindProductIDBySku", mock.Anything, "B").Return(second, nil)
	stock.On("FindProductIDBySku", mock.Anything, "C").Return(uuid.Nil, errors.New("connection reset"))
	stock.On("FindProductIDBySku", mock.Anything, "D").Return(third, nil)
	stock.On("SetQuantity", mock.Anything, first, int64(1)).Return(nil)
	stock.On("SetQuantity", mock.Anything, second, int64(2)).Return(errors.New("deadlock"))
	stock.On("SetQuantity", mock.Anything, third, int64(4)).Return(nil)

	svc := newTestService(t, fetcher, stock, apiKeySettings())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, integration.SyncStatusPartial, result.Status)
	assert.Equal(t, 2, result.UpdatedCount)
	assert.Equal(t, 2, result.FailedCount)
	stock.AssertExpectations(t)
}

func TestStockSyncService_Run_Idempotent(t *testing.T) {
	productA, productB := uuid.New(), uuid.New()
	stock := &memoryStock{
		refs:       map[string]uuid.UUID{"A": productA, "A-RED": productA, "B": productB},
		quantities: map[uuid.UUID]int64{},
	}
	fetcher := new(MockStockFetcher)
	fetcher.On("FetchAllStock", mock.Anything, "api-key").Return([]integration.StockRecord{
		{SKU: "A", Quantity: 10, Reserved: 1},
		{SKU: "B", Quantity: 5, Reserved: 5},
	}, nil)

	svc := newTestService(t, fetcher, stock, apiKeySettings())

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	firstState := map[uuid.UUID]int64{}
	for k, v := range stock.quantities {
		firstState[k] = v
	}

	_, err = svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, firstState, stock.quantities)
	assert.Equal(t, map[uuid.UUID]int64{productA: 9, productB: 0}, stock.quantities)
}

func TestStockSyncService_Run_Disabled(t *testing.T) {
	fetcher := new(MockStockFetcher)
	svc := newTestService(t, fetcher, new(MockStockRepository), apiKeySettings(), WithSyncEnabled(false))

	assert.False(t, svc.Enabled())
	result, err := svc.Run(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, integration.ErrSyncDisabled)
	fetcher.AssertNotCalled(t, "FetchAllStock", mock.Anything, mock.Anything)
	assert.Nil(t, svc.LastRun())
}

func TestStockSyncService_Run_LockHeld(t *testing.T) {
	locker := lock.NewInMemoryRunLocker()
	unlock, err := locker.TryLock(context.Background())
	require.NoError(t, err)
	defer unlock()

	fetcher := new(MockStockFetcher)
	svc := NewStockSyncService(fetcher, new(MockStockRepository), apiKeySettings(), locker,
		WithSyncLogger(zaptest.NewLogger(t)))

	result, err := svc.Run(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, integration.ErrSyncInProgress)
	fetcher.AssertNotCalled(t, "FetchAllStock", mock.Anything, mock.Anything)
}

// blockingFetcher holds the first fetch until release is closed
type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) FetchAllStock(_ context.Context, _ string) ([]integration.StockRecord, error) {
	if f.calls.Add(1) == 1 {
		close(f.started)
	}
	<-f.release
	return []integration.StockRecord{{SKU: "A", Quantity: 1}}, nil
}

func TestStockSyncService_Run_CoalescesConcurrentCallers(t *testing.T) {
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	stock := &memoryStock{refs: map[string]uuid.UUID{"A": uuid.New()}, quantities: map[uuid.UUID]int64{}}
	svc := newTestService(t, fetcher, stock, apiKeySettings())

	var wg sync.WaitGroup
	results := make([]*integration.SyncResult, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = svc.Run(context.Background())
	}()
	<-fetcher.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = svc.Run(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, results[0].RunID, results[1].RunID)
	assert.NotSame(t, results[0], results[1])
}

func TestStockSyncService_Run_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := telemetry.NewSyncMetrics(provider.Meter("test"))
	require.NoError(t, err)

	productID := uuid.New()
	fetcher := new(MockStockFetcher)
	fetcher.On("FetchAllStock", mock.Anything, "api-key").Return([]integration.StockRecord{
		{SKU: "A", Quantity: 3},
		{SKU: "Z", Quantity: 1},
	}, nil)
	stock := new(MockStockRepository)
	stock.On("FindProductIDBySku", mock.Anything, "A").Return(productID, nil)
	stock.On("FindProductIDBySku", mock.Anything, "Z").Return(uuid.Nil, catalog.ErrSkuNotFound)
	stock.On("SetQuantity", mock.Anything, productID, int64(3)).Return(nil)

	svc := newTestService(t, fetcher, stock, apiKeySettings(), WithSyncMetrics(metrics))

	_, err = svc.Run(telemetry.WithTrigger(context.Background(), telemetry.TriggerScheduler))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["stocksync_runs_total"])
	assert.Equal(t, int64(2), sums["stocksync_records_fetched_total"])
	assert.Equal(t, int64(1), sums["stocksync_products_updated_total"])
	assert.Equal(t, int64(1), sums["stocksync_sku_unresolved_total"])
}

func TestStockSyncService_EnsureCronKey(t *testing.T) {
	ctx := context.Background()
	settings := newMemorySettings(nil)
	svc := newTestService(t, new(MockStockFetcher), new(MockStockRepository), settings)

	generated, err := svc.EnsureCronKey(ctx)
	require.NoError(t, err)
	assert.True(t, generated)

	key := settings.values[integration.ConfigKeyCronKey]
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), key)

	generated, err = svc.EnsureCronKey(ctx)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, key, settings.values[integration.ConfigKeyCronKey])
}

func TestStockSyncService_VerifyCronKey(t *testing.T) {
	ctx := context.Background()

	t.Run("matches the stored key", func(t *testing.T) {
		svc := newTestService(t, new(MockStockFetcher), new(MockStockRepository),
			newMemorySettings(map[string]string{integration.ConfigKeyCronKey: "secret"}))

		ok, err := svc.VerifyCronKey(ctx, "secret")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = svc.VerifyCronKey(ctx, "Secret")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unset key matches nothing", func(t *testing.T) {
		svc := newTestService(t, new(MockStockFetcher), new(MockStockRepository), newMemorySettings(nil))

		ok, err := svc.VerifyCronKey(ctx, "")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStockSyncService_SetAPIKey(t *testing.T) {
	ctx := context.Background()
	settings := newMemorySettings(nil)
	svc := newTestService(t, new(MockStockFetcher), new(MockStockRepository), settings)

	configured, err := svc.APIKeyConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, configured)

	assert.ErrorIs(t, svc.SetAPIKey(ctx, "  "), ErrInvalidAPIKey)

	require.NoError(t, svc.SetAPIKey(ctx, "  new-key  "))
	assert.Equal(t, "new-key", settings.values[integration.ConfigKeyAPIKey])

	configured, err = svc.APIKeyConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, configured)
}

func TestStockSyncService_CronURL(t *testing.T) {
	svc := newTestService(t, new(MockStockFetcher), new(MockStockRepository),
		newMemorySettings(map[string]string{integration.ConfigKeyCronKey: "abc123"}))

	got, err := svc.CronURL(context.Background(), "https://shop.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/sync?secure_key=abc123", got)
}

func TestSummary(t *testing.T) {
	result := &integration.SyncResult{UpdatedCount: 12, Timestamp: syncTime}

	assert.Equal(t,
		"Synchronization completed successfully: 2024-03-05 14:07:09. Updated products: 12",
		Summary(result))
	assert.Equal(t, "Synchronization error: boom", FailureMessage(errors.New("boom")))
}
