package modules

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"

	"github.com/monitor-client/pkg/module"
)

// CPUOptions cpu 模块配置
type CPUOptions struct {
	PerCore bool `mapstructure:"per_core"`
}

// CPUSample 一次 CPU 采集
type CPUSample struct {
	Percent []float64 `json:"percent" msgpack:"percent"`
	Load1   float64   `json:"load1" msgpack:"load1"`
	Load5   float64   `json:"load5" msgpack:"load5"`
	Load15  float64   `json:"load15" msgpack:"load15"`
}

// CPUInfo 静态信息，随每条记录上报
type CPUInfo struct {
	ModelName     string `json:"modelName"`
	LogicalCores  int    `json:"logicalCores"`
	PhysicalCores int    `json:"physicalCores"`
}

type cpuModule struct {
	opts CPUOptions
}

// NewCPU CPU 使用率与负载
func NewCPU(opts map[string]any) (*module.Descriptor, error) {
	m := &cpuModule{}
	if err := decodeOptions(opts, &m.opts); err != nil {
		return nil, err
	}
	return &module.Descriptor{
		Name:         "cpu",
		HasCron:      true,
		Collect:      m.collect,
		SnapshotData: cpuInfo(),
		Init:         m.init,
		Methods: map[string]module.Method{
			"percent": m.percent,
		},
	}, nil
}

func (m *cpuModule) init(ctx context.Context) error {
	if _, err := cpu.CountsWithContext(ctx, false); err != nil {
		return fmt.Errorf("get cpu counts: %w", err)
	}
	return nil
}

func (m *cpuModule) collect(ctx context.Context) (module.Result, error) {
	usage, err := cpu.PercentWithContext(ctx, 0, m.opts.PerCore)
	if err != nil {
		return module.Result{}, fmt.Errorf("get cpu usage: %w", err)
	}
	sample := CPUSample{Percent: usage}
	// 非 Linux 平台可能拿不到负载，只上报使用率
	if avg, err := load.AvgWithContext(ctx); err == nil {
		sample.Load1, sample.Load5, sample.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	return module.Raw(sample), nil
}

// percent 远程命令：立即返回当前使用率
func (m *cpuModule) percent(ctx context.Context, req module.Request) (any, error) {
	perCore, _ := req.Params["perCore"].(bool)
	return cpu.PercentWithContext(ctx, 0, perCore)
}

// best-effort，获取失败时对应字段为零值
func cpuInfo() CPUInfo {
	var info CPUInfo
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.ModelName = infos[0].ModelName
	}
	info.LogicalCores, _ = cpu.Counts(true)
	info.PhysicalCores, _ = cpu.Counts(false)
	return info
}
