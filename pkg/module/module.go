// Package module 定义可插拔监控模块的能力描述（Descriptor）以及模块注册表。
//
// 模块在启动时通过显式的 Register 调用注册，注册表在注册时一次性校验描述，
// 运行期不再探测模块属性。
package module

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrNotFound           = errors.New("module not found")
	ErrDuplicateModule    = errors.New("module already registered")
	ErrInvalidRouteMethod = errors.New("invalid route method")
	ErrInvalidDescriptor  = errors.New("invalid module descriptor")
)

// Config 模块配置（由加载方从全局配置中取出并挂到描述上）
type Config struct {
	CronTime string         // 为空时使用调度器默认周期
	Options  map[string]any // 模块私有配置
}

// CollectFunc 采集一次数据；在独立的 goroutine 中执行，不阻塞调度器
type CollectFunc func(ctx context.Context) (Result, error)

// Request 远程命令请求
type Request struct {
	Module  string
	Command string
	Params  map[string]any
}

// Method 可被远程调用的模块方法
type Method func(ctx context.Context, req Request) (any, error)

// Route 模块声明的 HTTP 路由
type Route struct {
	Method  string
	Pattern string
	Handler http.Handler
}

// Descriptor 模块能力描述
type Descriptor struct {
	Name   string
	Config Config

	// HasCron 为 true 时必须提供 Collect
	HasCron bool
	Collect CollectFunc

	// SnapshotData 静态声明的快照数据，随每条记录一起上报
	SnapshotData any

	Init  func(ctx context.Context) error
	Close func() error

	Methods map[string]Method
	Routes  []Route
}

// Method 按名称查找可远程调用的方法
func (d *Descriptor) Method(name string) (Method, bool) {
	if d == nil || name == "" {
		return nil, false
	}
	m, ok := d.Methods[name]
	return m, ok && m != nil
}
