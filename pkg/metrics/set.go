package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set 编排器自身指标集合，由 Manager 创建后注入各组件
type Set struct {
	BufferRecords   prometheus.Gauge
	FlushTotal      *prometheus.CounterVec
	PrunedRecords   prometheus.Counter
	DroppedRecords  *prometheus.CounterVec
	CollectErrors   *prometheus.CounterVec
	CollectDuration *prometheus.HistogramVec
}

// NewSet 通过工厂注册全部指标
func NewSet(f *MetricFactory) *Set {
	return &Set{
		BufferRecords:   f.NewBufferRecords(),
		FlushTotal:      f.NewFlushTotal(),
		PrunedRecords:   f.NewPrunedRecordsTotal(),
		DroppedRecords:  f.NewDroppedRecordsTotal(),
		CollectErrors:   f.NewCollectErrorsTotal(),
		CollectDuration: f.NewCollectDurationSeconds(),
	}
}

// NewDiscardSet 注册到一个私有注册器，不对外暴露（测试与未开启 /metrics 时使用）
func NewDiscardSet() *Set {
	return NewSet(NewMetricFactory(NewPromRegistry(prometheus.NewRegistry())))
}
