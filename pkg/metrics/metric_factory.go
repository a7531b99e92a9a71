package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "monitor_client"

// MetricFactory 指标工厂，用于统一创建指标（counter/gauge/histogram）。
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// NewBufferRecords 缓冲区中待投递的记录数
func (f *MetricFactory) NewBufferRecords() prometheus.Gauge {
	return promauto.With(f.reg).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buffer_records",
		Help:      "Number of records waiting in the buffer",
	})
}

// NewFlushTotal 每次投递尝试的结果计数
// outcome: acked / unreachable / overload / empty / skipped / error
func (f *MetricFactory) NewFlushTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_total",
			Help:      "Flush attempts by outcome",
		},
		[]string{"outcome"},
	)
}

// NewPrunedRecordsTotal 被确认后删除的记录数
func (f *MetricFactory) NewPrunedRecordsTotal() prometheus.Counter {
	return promauto.With(f.reg).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pruned_records_total",
		Help:      "Records removed from the buffer after acknowledgement",
	})
}

// NewDroppedRecordsTotal 因过载或内存保护被丢弃的记录数
// reason: overload / guard / encode
func (f *MetricFactory) NewDroppedRecordsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_records_total",
			Help:      "Records discarded without delivery",
		},
		[]string{"reason"},
	)
}

// NewCollectErrorsTotal 模块采集失败次数
func (f *MetricFactory) NewCollectErrorsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_errors_total",
			Help:      "Total collection errors per module",
		},
		[]string{"module"},
	)
}

// NewCollectDurationSeconds 模块采集耗时分布
func (f *MetricFactory) NewCollectDurationSeconds() *prometheus.HistogramVec {
	return promauto.With(f.reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collect_duration_seconds",
			Help:      "Collection duration per module",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 0.01s ~ 5.12s
		},
		[]string{"module"},
	)
}
