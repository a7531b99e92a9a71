package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/monitor-client/pkg/module"
)

// DiskOptions disk 模块配置
type DiskOptions struct {
	Paths     []string `mapstructure:"paths"`
	Threshold float64  `mapstructure:"threshold"` // 使用率告警阈值（百分比）
}

// DiskUsage 单个挂载点的使用情况
type DiskUsage struct {
	Path        string  `json:"path" msgpack:"path"`
	Fstype      string  `json:"fstype" msgpack:"fstype"`
	Total       uint64  `json:"total" msgpack:"total"`
	Used        uint64  `json:"used" msgpack:"used"`
	Free        uint64  `json:"free" msgpack:"free"`
	UsedPercent float64 `json:"usedPercent" msgpack:"usedPercent"`
	OverLimit   bool    `json:"overLimit" msgpack:"overLimit"`
}

type diskModule struct {
	opts DiskOptions
}

// NewDisk 磁盘使用率；提供 usage 远程命令以及 GET /modules/disk/usage
func NewDisk(opts map[string]any) (*module.Descriptor, error) {
	m := &diskModule{opts: DiskOptions{Paths: []string{"/"}, Threshold: 90}}
	if err := decodeOptions(opts, &m.opts); err != nil {
		return nil, err
	}
	if len(m.opts.Paths) == 0 {
		return nil, fmt.Errorf("disk: at least one path required")
	}
	if m.opts.Threshold <= 0 || m.opts.Threshold > 100 {
		return nil, fmt.Errorf("disk: threshold must be in (0, 100], got %v", m.opts.Threshold)
	}
	return &module.Descriptor{
		Name:         "disk",
		HasCron:      true,
		Collect:      m.collect,
		SnapshotData: map[string]any{"paths": m.opts.Paths, "threshold": m.opts.Threshold},
		Methods: map[string]module.Method{
			"usage": m.usageMethod,
		},
		Routes: []module.Route{
			{Method: http.MethodGet, Pattern: "/modules/disk/usage", Handler: http.HandlerFunc(m.serveUsage)},
		},
	}, nil
}

func (m *diskModule) usage(ctx context.Context, path string) (DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("get disk usage of %s: %w", path, err)
	}
	return DiskUsage{
		Path:        u.Path,
		Fstype:      u.Fstype,
		Total:       u.Total,
		Used:        u.Used,
		Free:        u.Free,
		UsedPercent: u.UsedPercent,
		OverLimit:   u.UsedPercent >= m.opts.Threshold,
	}, nil
}

func (m *diskModule) collect(ctx context.Context) (module.Result, error) {
	out := make([]DiskUsage, 0, len(m.opts.Paths))
	for _, p := range m.opts.Paths {
		u, err := m.usage(ctx, p)
		if err != nil {
			return module.Result{}, err
		}
		out = append(out, u)
	}
	return module.Raw(out), nil
}

// usageMethod params.path 缺省为第一个配置路径
func (m *diskModule) usageMethod(ctx context.Context, req module.Request) (any, error) {
	path, _ := req.Params["path"].(string)
	if path == "" {
		path = m.opts.Paths[0]
	}
	return m.usage(ctx, path)
}

func (m *diskModule) serveUsage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = m.opts.Paths[0]
	}
	u, err := m.usage(r.Context(), path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(u)
}
