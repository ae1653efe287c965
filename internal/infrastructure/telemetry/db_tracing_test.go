package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNewDBTracingPlugin_Defaults(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, nil)

	assert.Equal(t, 200*time.Millisecond, p.config.SlowQueryThresh)
	assert.Equal(t, "postgresql", p.config.DBSystem)
	assert.NotNil(t, p.logger)
}

func TestDBTracingPlugin_DisabledIsNoop(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop()).Register(db))
	assert.Nil(t, db.Callback().Query().Get("stocksync:after_query"))
}

func TestDBTracingPlugin_MarksSlowQueries(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	p := NewDBTracingPlugin(cfg, zap.NewNop())
	require.NoError(t, p.Register(db))
	assert.NotNil(t, db.Callback().Query().Get("stocksync:after_query"))

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")

	stmtDB := db.WithContext(context.WithValue(ctx, queryStartTimeKey, time.Now().Add(-time.Second)))
	stmtDB.Statement.Table = "stock_available"
	stmtDB.Statement.RowsAffected = 1
	p.after(stmtDB)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.True(t, attrs["db.slow_query"].AsBool())
	assert.Equal(t, "stock_available", attrs["db.sql.table"].AsString())
}
