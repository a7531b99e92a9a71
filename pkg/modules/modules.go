// Package modules 内置系统模块（cpu / memory / disk）以及按配置加载模块。
package modules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/monitor-client/pkg/config"
	"github.com/monitor-client/pkg/module"
)

// Factory 模块构造入口；新增模块只需在 Builtin 中添加一条
type Factory struct {
	Name string
	New  func(opts map[string]any) (*module.Descriptor, error)
}

// Builtin 内置模块
func Builtin() []Factory {
	return []Factory{
		{Name: "cpu", New: NewCPU},
		{Name: "memory", New: NewMemory},
		{Name: "disk", New: NewDisk},
	}
}

// Load 按配置构造并注册已启用的模块，返回注册成功的模块名。
// 构造或注册失败（例如路由方法非法）直接返回错误。
func Load(reg *module.Registry, factories []Factory, cfgs map[string]config.ModuleConfig, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[string]struct{}, len(factories))
	var loaded []string
	for _, f := range factories {
		known[f.Name] = struct{}{}
		mc, ok := lookup(cfgs, f.Name)
		if !ok || !mc.Enable {
			logger.Debug("module disabled", zap.String("module", f.Name))
			continue
		}
		d, err := f.New(mc.Options)
		if err != nil {
			return loaded, fmt.Errorf("build module %s: %w", f.Name, err)
		}
		d.Name = f.Name
		d.Config = module.Config{CronTime: mc.CronTime, Options: mc.Options}
		if err := reg.Register(d); err != nil {
			return loaded, fmt.Errorf("register module %s: %w", f.Name, err)
		}
		loaded = append(loaded, f.Name)
		logger.Debug("registered module", zap.String("module", f.Name), zap.String("cron", mc.CronTime))
	}

	for name, mc := range cfgs {
		if _, ok := known[strings.ToLower(name)]; !ok && mc.Enable {
			logger.Warn("unknown module in config", zap.String("module", name))
		}
	}
	sort.Strings(loaded)
	logger.Info("modules loaded", zap.Strings("modules", loaded))
	return loaded, nil
}

// viper 会把键名转成小写
func lookup(cfgs map[string]config.ModuleConfig, name string) (config.ModuleConfig, bool) {
	if mc, ok := cfgs[name]; ok {
		return mc, true
	}
	for k, mc := range cfgs {
		if strings.EqualFold(k, name) {
			return mc, true
		}
	}
	return config.ModuleConfig{}, false
}

// decodeOptions 把模块私有配置解码到结构体（支持 "30s"、"1,2" 等弱类型输入）
func decodeOptions(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}
