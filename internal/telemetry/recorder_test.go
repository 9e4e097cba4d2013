package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()

	r.RunCompleted("trend", true, 150*time.Millisecond)
	r.RunCompleted("trend", true, 50*time.Millisecond)
	r.Trade("trend", "BUY")
	r.SkippedDay()
	r.StrategyError()
	r.InsightError()
	r.Validation("PASSED")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("trend", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trades.WithLabelValues("trend", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.skippedDays))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.strategyErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.insightErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.validations.WithLabelValues("PASSED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.runDuration))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RunCompleted("x", false, time.Second)
	r.Trade("x", "SELL")
	r.SkippedDay()
	r.StrategyError()
	r.InsightError()
	r.Validation("FAILED")
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Trade("score", "SELL")

	path := filepath.Join(t.TempDir(), "strategylab.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `strategylab_trades_total{side="SELL",strategy="score"} 1`))
}
