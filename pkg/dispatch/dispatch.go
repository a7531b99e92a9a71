// Package dispatch 把远程命令路由到对应模块的方法。
//
// 模块或方法不存在时什么也不做，也不回复调用方。
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/monitor-client/pkg/module"
)

// EventName 命令通道上的事件名
const EventName = "moduleManager"

// Command 远程命令：params.command 为方法名，其余字段为参数
type Command struct {
	ModuleName string         `json:"moduleName"`
	Params     map[string]any `json:"params"`
}

// Name 方法名
func (c Command) Name() string {
	name, _ := c.Params["command"].(string)
	return name
}

// Reply 回复调用方
type Reply func(result any, err error)

// Dispatcher 命令分发器
type Dispatcher struct {
	registry *module.Registry
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func New(registry *module.Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch 找到方法后异步调用并返回 true；否则返回 false 且不调用 reply
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, reply Reply) bool {
	desc, ok := d.registry.Lookup(cmd.ModuleName)
	if !ok {
		d.logger.Debug("command for unknown module ignored", zap.String("module", cmd.ModuleName))
		return false
	}
	name := cmd.Name()
	method, ok := desc.Method(name)
	if !ok {
		d.logger.Debug("unknown command ignored",
			zap.String("module", cmd.ModuleName), zap.String("command", name))
		return false
	}

	req := module.Request{Module: cmd.ModuleName, Command: name, Params: cmd.Params}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		result, err := invoke(ctx, method, req)
		if err != nil {
			d.logger.Warn("module command failed",
				zap.String("module", req.Module), zap.String("command", name), zap.Error(err))
		}
		if reply != nil {
			reply(result, err)
		}
	}()
	return true
}

// Wait 等待正在执行的命令结束
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func invoke(ctx context.Context, m module.Method, req module.Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s.%s panicked: %v", req.Module, req.Command, r)
		}
	}()
	return m(ctx, req)
}
