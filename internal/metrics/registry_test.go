package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStepLabelsResult(t *testing.T) {
	r := NewRegistry()
	r.ObserveStep("rank", 10*time.Millisecond, nil)
	r.ObserveStep("rank", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Steps.WithLabelValues("rank", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Steps.WithLabelValues("rank", "error")))
}

func TestRecordRunAndEvaluation(t *testing.T) {
	r := NewRegistry()
	r.RecordRun("interval", 0.12)
	r.RecordEvaluation(-0.05)
	r.RecordEvaluation(-0.10)
	r.RecordEvaluation(0.30)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("interval")))
	assert.Equal(t, 0.12, testutil.ToFloat64(r.LastReturn.WithLabelValues("interval")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Evaluations))
	assert.Equal(t, -0.10, testutil.ToFloat64(r.BestObjective))
}

func TestPeriodHistogram(t *testing.T) {
	r := NewRegistry()
	r.RecordPeriod(0.01)
	r.RecordPeriod(-0.03)

	m := &dto.Metric{}
	require.NoError(t, r.PeriodReturns.Write(m))
	assert.Equal(t, uint64(2), m.GetHistogram().GetSampleCount())
	assert.InDelta(t, -0.02, m.GetHistogram().GetSampleSum(), 1e-12)
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordCacheHit("disk")
	r.RecordCacheMiss("redis")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `rotator_cache_hits_total{layer="disk"} 1`))
	assert.True(t, strings.Contains(body, `rotator_cache_misses_total{layer="redis"} 1`))
}

func TestStepTimerUsesRecorder(t *testing.T) {
	var _ Recorder = Nop{}
	r := NewRegistry()
	StartStep(r, "normalize").Stop(nil)
	assert.Equal(t, 1, testutil.CollectAndCount(r.StepDuration))
}
