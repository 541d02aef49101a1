package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.Observability = config.Observability{
		ServiceName:     "fulfillment-test",
		ServiceVersion:  "test",
		Environment:     "test",
		MetricsExporter: "prometheus",
		PrometheusPath:  "/metrics",
		TraceSampling:   1,
	}
	return cfg
}

func TestManagerDisabled(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, testConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())
}

func TestManagerServesPrometheusMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.EnableMetrics = true

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	require.True(t, mgr.MetricsEnabled())

	counter, err := mgr.meterProvider.Meter("test").Int64Counter("fulfillment.test.events")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fulfillment_test_events")
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	lc.RequireStart().RequireStop()
}

func TestManagerRejectsOTLPWithoutEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.EnableTracing = true
	cfg.Observability.TraceExporter = "otlp"
	cfg.Observability.TraceEndpoint = ""

	_, err := NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestSamplerFollowsRatio(t *testing.T) {
	m := &Manager{}
	for ratio, want := range map[float64]string{
		1:    sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(),
		0:    sdktrace.ParentBased(sdktrace.NeverSample()).Description(),
		0.25: sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description(),
	} {
		m.cfg.TraceSampling = ratio
		assert.Equal(t, want, m.sampler().Description())
	}
}
