package module

import (
	"fmt"
	"strings"
	"sync"
)

var allowedRouteMethods = map[string]struct{}{
	"get":    {},
	"put":    {},
	"delete": {},
	"post":   {},
}

// Registry 模块注册表；初始化完成后对核心只读
type Registry struct {
	mu      sync.RWMutex
	modules []*Descriptor
	byName  map[string]*Descriptor
}

// NewRegistry 创建模块注册表
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register 校验并注册模块（名称唯一、cron 模块必须可采集、路由方法合法）
func (r *Registry) Register(d *Descriptor) error {
	if err := Validate(d); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[d.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, d.Name)
	}
	r.modules = append(r.modules, d)
	r.byName[d.Name] = d
	return nil
}

// Validate 一次性校验模块描述
func Validate(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if d.HasCron && d.Collect == nil {
		return fmt.Errorf("%w: %s has cron but no collect function", ErrInvalidDescriptor, d.Name)
	}
	for name, m := range d.Methods {
		if name == "" || m == nil {
			return fmt.Errorf("%w: %s declares an empty method", ErrInvalidDescriptor, d.Name)
		}
	}
	for _, route := range d.Routes {
		if _, ok := allowedRouteMethods[strings.ToLower(route.Method)]; !ok {
			return fmt.Errorf("%w: %s (module %s, pattern %s)", ErrInvalidRouteMethod, route.Method, d.Name, route.Pattern)
		}
		if route.Handler == nil || !strings.HasPrefix(route.Pattern, "/") {
			return fmt.Errorf("%w: %s declares an invalid route %q", ErrInvalidDescriptor, d.Name, route.Pattern)
		}
	}
	return nil
}

// Remove 移除模块（Init 失败时使用）
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return
	}
	delete(r.byName, name)
	kept := r.modules[:0]
	for _, d := range r.modules {
		if d.Name != name {
			kept = append(kept, d)
		}
	}
	r.modules = kept
}

// Lookup 按名称查找；找不到时调用方应视为 no-op
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// All 返回所有已注册模块（副本，按注册顺序）
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := make([]*Descriptor, len(r.modules))
	copy(copied, r.modules)
	return copied
}

// WithCron 返回需要定时采集的模块
func (r *Registry) WithCron() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Descriptor
	for _, d := range r.modules {
		if d.HasCron {
			out = append(out, d)
		}
	}
	return out
}

// Routes 汇总所有模块声明的路由
func (r *Registry) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Route
	for _, d := range r.modules {
		out = append(out, d.Routes...)
	}
	return out
}

// Names 返回模块名列表
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for _, d := range r.modules {
		names = append(names, d.Name)
	}
	return names
}
