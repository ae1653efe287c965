package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appintegration "github.com/erp/stocksync/internal/application/integration"
	"github.com/erp/stocksync/internal/domain/catalog"
	"github.com/erp/stocksync/internal/domain/integration"
	"github.com/erp/stocksync/internal/infrastructure/lock"
	"github.com/erp/stocksync/internal/interfaces/http/handler"
	"github.com/erp/stocksync/internal/interfaces/http/middleware"
)

type stubFetcher struct {
	records []integration.StockRecord
	err     error
}

func (f stubFetcher) FetchAllStock(context.Context, string) ([]integration.StockRecord, error) {
	return f.records, f.err
}

type stubStock struct {
	mu     sync.Mutex
	refs   map[string]uuid.UUID
	stored map[uuid.UUID]int64
}

func (s *stubStock) FindProductIDBySku(_ context.Context, sku string) (uuid.UUID, error) {
	if id, ok := s.refs[sku]; ok {
		return id, nil
	}
	return uuid.Nil, catalog.ErrSkuNotFound
}

func (s *stubStock) SetQuantity(_ context.Context, id uuid.UUID, q int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[id] = q
	return nil
}

type stubSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (s *stubSettings) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *stubSettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

type testEnv struct {
	engine   *gin.Engine
	stock    *stubStock
	settings *stubSettings
	product  uuid.UUID
}

func newTestEnv(t *testing.T, fetcher integration.StockFetcher, opts ...appintegration.StockSyncOption) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	product := uuid.New()
	stock := &stubStock{refs: map[string]uuid.UUID{"SKU-1": product}, stored: map[uuid.UUID]int64{}}
	settings := &stubSettings{values: map[string]string{
		integration.ConfigKeyAPIKey:  "api-key-123",
		integration.ConfigKeyCronKey: "cron-secret",
	}}

	svc := appintegration.NewStockSyncService(fetcher, stock, settings, lock.NewInMemoryRunLocker(),
		append([]appintegration.StockSyncOption{appintegration.WithSyncLogger(log)}, opts...)...)

	engine, err := NewEngine(EngineConfig{
		ServiceName: "stocksync-test",
		CORS:        middleware.DefaultCORSConfig(),
		MaxBodySize: 1 << 20,
	}, Dependencies{
		Sync:    handler.NewSyncHandler(svc, "https://shop.example.com", log),
		System:  handler.NewSystemHandler("stocksync", "test", nil, log),
		CronKey: svc,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		Logger: log,
	})
	require.NoError(t, err)

	return &testEnv{engine: engine, stock: stock, settings: settings, product: product}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestEngine_TriggerEndpoint(t *testing.T) {
	env := newTestEnv(t, stubFetcher{records: []integration.StockRecord{
		{SKU: "SKU-1", Quantity: 10, Reserved: 3},
		{SKU: "NOPE", Quantity: 1},
	}})

	w := env.do(http.MethodGet, "/sync?secure_key=wrong", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Invalid security key", w.Body.String())
	assert.Empty(t, env.stock.stored)

	w = env.do(http.MethodGet, "/sync?secure_key=cron-secret", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Synchronization completed successfully: "))
	assert.True(t, strings.HasSuffix(w.Body.String(), ". Updated products: 1"))
	assert.Equal(t, int64(7), env.stock.stored[env.product])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = env.do(http.MethodPost, "/sync?secure_key=cron-secret", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEngine_TriggerDisabled(t *testing.T) {
	env := newTestEnv(t, stubFetcher{}, appintegration.WithSyncEnabled(false))

	w := env.do(http.MethodGet, "/sync?secure_key=wrong", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Module is disabled", w.Body.String())
}

func TestEngine_TriggerUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, stubFetcher{err: &integration.HTTPStatusError{StatusCode: 500}})

	w := env.do(http.MethodGet, "/sync?secure_key=cron-secret", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Synchronization error: "))
	assert.Empty(t, env.stock.stored)

	w = env.do(http.MethodGet, "/api/v1/sync/status?secure_key=cron-secret", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"last_error_kind":"HTTP_STATUS"`)
}

func TestEngine_AdminAPI(t *testing.T) {
	env := newTestEnv(t, stubFetcher{records: []integration.StockRecord{{SKU: "SKU-1", Quantity: 5}}})

	w := env.do(http.MethodGet, "/api/v1/sync/status", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/run", nil)
	req.Header.Set(middleware.CronKeyHeader, "cron-secret")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status       string `json:"status"`
			UpdatedCount int    `json:"updated_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "SUCCESS", resp.Data.Status)
	assert.Equal(t, 1, resp.Data.UpdatedCount)

	w = env.do(http.MethodPut, "/api/v1/settings/api-key?secure_key=cron-secret", `{"api_key":"new-api-key-1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new-api-key-1", env.settings.values[integration.ConfigKeyAPIKey])

	w = env.do(http.MethodPut, "/api/v1/settings/api-key?secure_key=cron-secret", `{"api_key":"short"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/settings/cron?secure_key=cron-secret", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://shop.example.com/sync?secure_key=cron-secret")
}

func TestEngine_SystemRoutes(t *testing.T) {
	env := newTestEnv(t, stubFetcher{})

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/system/ping", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/system/info", "").Code)

	w := env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")
}
