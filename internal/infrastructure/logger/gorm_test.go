package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Trace(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info, WithSlowThreshold(50*time.Millisecond))
	ctx := WithRunID(context.Background(), "run-1")

	gl.Trace(ctx, time.Now(), sqlFn(`SELECT 1`, 1), nil)
	gl.Trace(ctx, time.Now().Add(-time.Second), sqlFn(`SELECT pg_sleep(1)`, 1), nil)
	gl.Trace(ctx, time.Now(), sqlFn(`SELECT broken`, 0), errors.New("syntax error"))
	gl.Trace(ctx, time.Now(), sqlFn(`SELECT missing`, 0), gormlogger.ErrRecordNotFound)

	entries := recorded.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "SQL Query", entries[0].Message)
	assert.Equal(t, "run-1", entries[0].ContextMap()["run_id"])
	assert.Equal(t, "Slow SQL", entries[1].Message)
	assert.Equal(t, "SQL Error", entries[2].Message)
}

func TestGormLogger_SilentAndLogMode(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), sqlFn(`SELECT 1`, 1), errors.New("x"))
	assert.Zero(t, recorded.Len())

	loud := gl.LogMode(gormlogger.Error)
	assert.Equal(t, gormlogger.Silent, gl.logLevel)
	loud.Trace(context.Background(), time.Now(), sqlFn(`SELECT 1`, 1), errors.New("x"))
	assert.Equal(t, 1, recorded.Len())
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}
