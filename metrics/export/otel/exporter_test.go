package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/teamgate"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[teamgate.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() teamgate.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := teamgate.MetricsSnapshot{
		Counters:   make(map[teamgate.MetricID]uint64, len(f.counters)),
		Histograms: map[teamgate.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency != nil {
		out.Histograms[teamgate.MetricLoginLatency] = append([]uint64(nil), f.latency...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				return data.DataPoints[0].Value
			case metricdata.Gauge[int64]:
				return data.DataPoints[0].Value
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestExporterCollectsSnapshot(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		counters: map[teamgate.MetricID]uint64{teamgate.MetricLoginOTPSent: 3},
		latency:  []uint64{1, 1, 1, 1, 1, 1, 1, 1},
		dropped:  1,
	}

	exp, err := NewExporter(provider.Meter("teamgate-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(3), sumValue(t, rm, "teamgate_login_otp_sent_total"))
	assert.Equal(t, int64(1), sumValue(t, rm, "teamgate_audit_dropped_total"))
	assert.Equal(t, int64(2), sumValue(t, rm, "teamgate_login_latency_seconds_bucket_le_0_1"))
	assert.Equal(t, int64(8), sumValue(t, rm, "teamgate_login_latency_seconds_count"))
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()

	_, err := NewExporter(provider.Meter("teamgate-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
	_, err = NewExporter(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{counters: map[teamgate.MetricID]uint64{teamgate.MetricLoginOTPSent: 1}}

	exp, err := NewExporter(provider.Meter("teamgate-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[teamgate.MetricLoginOTPSent] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
