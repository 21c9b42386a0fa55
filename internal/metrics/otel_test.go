package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	ResetForTesting()
	ResetOTelForTesting()

	previous := otel.GetMeterProvider()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetMeterProvider(previous)
		ResetForTesting()
		ResetOTelForTesting()
	})
	return reader
}

func collectInvocations(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != "halalfinder/metrics" {
			continue
		}
		for _, m := range sm.Metrics {
			if m.Name != "halalfinder.invocations.total" {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok, "expected Gauge[int64], got %T", m.Data)

			values := make(map[string]int64)
			for _, dp := range gauge.DataPoints {
				mode, found := dp.Attributes.Value(attribute.Key("mode"))
				require.True(t, found)
				values[mode.AsString()] = dp.Value
			}
			return values
		}
	}
	t.Fatal("metric halalfinder.invocations.total not found")
	return nil
}

func TestOTelMetricsReportsStoreTotals(t *testing.T) {
	reader := setupManualReader(t)

	store, err := NewStoreWithPath(filepath.Join(t.TempDir(), "test_stats.db"))
	require.NoError(t, err)
	SetStoreForTesting(store)

	_ = store.Increment(ModeMCP)
	_ = store.Increment(ModeMCP)
	_ = store.Increment(ModeAPI)

	require.NoError(t, InitOTelMetrics())

	values := collectInvocations(t, reader)
	assert.Equal(t, map[string]int64{"cli": 0, "api": 1, "mcp": 2}, values)

	_ = store.Increment(ModeCLI)
	values = collectInvocations(t, reader)
	assert.Equal(t, int64(1), values["cli"], "callback reads fresh totals on each collection")
}

func TestOTelMetricsWithoutStoreReportsZeros(t *testing.T) {
	reader := setupManualReader(t)

	require.NoError(t, InitOTelMetrics())

	values := collectInvocations(t, reader)
	assert.Equal(t, map[string]int64{"cli": 0, "api": 0, "mcp": 0}, values)
}

func TestInitOTelMetricsIsIdempotent(t *testing.T) {
	setupManualReader(t)

	require.NoError(t, InitOTelMetrics())
	require.NoError(t, InitOTelMetrics())
}

func TestOTelMetricsCountsLiveSearches(t *testing.T) {
	reader := setupManualReader(t)
	Configure(filepath.Join(t.TempDir(), "live.db"))
	require.NoError(t, InitOTelMetrics())

	RecordInvocation(ModeCLI)
	RecordInvocation(ModeMCP)
	RecordInvocation(ModeMCP)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "halalfinder.searches" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "expected Sum[int64], got %T", m.Data)
			for _, dp := range sum.DataPoints {
				mode, _ := dp.Attributes.Value(attribute.Key("mode"))
				counts[mode.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"cli": 1, "mcp": 2}, counts)
	assert.Equal(t, map[string]int64{"cli": 1, "api": 0, "mcp": 2}, collectInvocations(t, reader))
}

func TestRecorderRemembersOpenFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	r := NewRecorder(filepath.Join(blocker, "stats.db"))
	assert.Error(t, r.Open())
	r.Record(ModeCLI)
	assert.Nil(t, r.Totals())
	assert.NoError(t, r.Close())
}
