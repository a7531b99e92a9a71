package modules

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/monitor-client/pkg/module"
)

// MemoryOptions memory 模块配置
type MemoryOptions struct {
	Swap bool `mapstructure:"swap"`
}

// MemorySample 一次内存采集
type MemorySample struct {
	Total       uint64  `json:"total" msgpack:"total"`
	Used        uint64  `json:"used" msgpack:"used"`
	Available   uint64  `json:"available" msgpack:"available"`
	UsedPercent float64 `json:"usedPercent" msgpack:"usedPercent"`
	SwapTotal   uint64  `json:"swapTotal,omitempty" msgpack:"swapTotal,omitempty"`
	SwapUsed    uint64  `json:"swapUsed,omitempty" msgpack:"swapUsed,omitempty"`
}

// NewMemory 物理内存（可选 swap）
func NewMemory(opts map[string]any) (*module.Descriptor, error) {
	var o MemoryOptions
	if err := decodeOptions(opts, &o); err != nil {
		return nil, err
	}
	return &module.Descriptor{
		Name:    "memory",
		HasCron: true,
		Collect: func(ctx context.Context) (module.Result, error) {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return module.Result{}, fmt.Errorf("get virtual memory: %w", err)
			}
			s := MemorySample{Total: vm.Total, Used: vm.Used, Available: vm.Available, UsedPercent: vm.UsedPercent}
			if o.Swap {
				sw, err := mem.SwapMemoryWithContext(ctx)
				if err != nil {
					return module.Result{}, fmt.Errorf("get swap memory: %w", err)
				}
				s.SwapTotal, s.SwapUsed = sw.Total, sw.Used
			}
			return module.Raw(s), nil
		},
	}, nil
}
