package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// TestMain installs a real SDK MeterProvider backed by a manual reader
// before any test runs, so New's lazily-initialized instruments
// (guarded by a package-level sync.Once) bind to something that
// actually aggregates data rather than the default no-op global.
// Grounded on AleutianLocal's services/trace/eval/telemetry/otel_test.go,
// which builds its test MeterProviders the same way.
var reader = sdkmetric.NewManualReader()

func TestMain(m *testing.M) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	m.Run()
}

func TestNewReturnsUsableInstrument(t *testing.T) {
	inst := New("peer-1")
	assert.NotNil(t, inst)
}

func TestRecordMethodsDoNotPanic(t *testing.T) {
	inst := New("peer-2")
	assert.NotPanics(t, func() {
		inst.RecordSent("request", 128)
		inst.RecordRecv("response", 64)
		inst.RecordHandshake(5 * time.Millisecond)
	})
}

func TestRecordSentIsObservableThroughTheSDKReader(t *testing.T) {
	inst := New("peer-3")
	inst.RecordSent("request", 256)

	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &data))

	found := false
	for _, sm := range data.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "wirepeer_bytes_sent_total" {
				found = true
			}
		}
	}
	assert.True(t, found, "expected wirepeer_bytes_sent_total to be collected")
}

func TestZeroValueInstrumentIsSafeNoOp(t *testing.T) {
	var inst Instrument
	assert.NotPanics(t, func() {
		inst.RecordSent("notification", 10)
		inst.RecordRecv("notification", 10)
		inst.RecordHandshake(time.Second)
	})
}
