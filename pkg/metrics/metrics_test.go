package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitor-client/pkg/metrics"
)

func value(t *testing.T, m prometheus.Metric) *dto.Metric {
	t.Helper()
	out := &dto.Metric{}
	require.NoError(t, m.Write(out))
	return out
}

func TestNewSetRegistersAll(t *testing.T) {
	reg := metrics.NewRegistry(false)
	set := metrics.NewSet(metrics.NewMetricFactory(metrics.NewPromRegistry(reg)))

	set.BufferRecords.Set(3)
	set.FlushTotal.WithLabelValues("acked").Inc()
	set.DroppedRecords.WithLabelValues("overload").Add(2)
	set.CollectErrors.WithLabelValues("cpu").Inc()
	set.CollectDuration.WithLabelValues("cpu").Observe(0.2)
	set.PrunedRecords.Add(5)

	assert.Equal(t, 3.0, value(t, set.BufferRecords).GetGauge().GetValue())
	assert.Equal(t, 2.0, value(t, set.DroppedRecords.WithLabelValues("overload")).GetCounter().GetValue())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "monitor_client_buffer_records")
	assert.Contains(t, names, "monitor_client_flush_total")
	assert.Contains(t, names, "monitor_client_collect_duration_seconds")
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := metrics.NewRegistry(false)
	f := metrics.NewMetricFactory(metrics.NewPromRegistry(reg))
	f.NewBufferRecords()
	assert.Panics(t, func() { f.NewBufferRecords() })
}
