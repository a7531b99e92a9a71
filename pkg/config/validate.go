package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser 模块 cron_time 的解析器：秒字段可选，支持 @every / @hourly 等描述符
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	// 	用net包解析地址，验证格式合法性
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate 投递配置校验：remote 模式必须配置投递地址
func (f *FlushConfig) Validate(m *MonitorConfig) error {
	if f.Mode == FlushModeRemote && strings.TrimSpace(m.ModuleDataURL) == "" {
		return errors.New("monitor.module_data_url is required when flush.mode is remote")
	}
	if f.Lease < f.Interval {
		return fmt.Errorf("flush.lease (%s) must not be shorter than flush.interval (%s)", f.Lease, f.Interval)
	}
	return nil
}

// Validate 调度配置校验
func (s *ScheduleConfig) Validate() error {
	if _, err := CronParser.Parse(s.DefaultCron); err != nil {
		return fmt.Errorf("schedule.default_cron %q invalid: %w", s.DefaultCron, err)
	}
	if _, err := s.LoadLocation(); err != nil {
		return fmt.Errorf("schedule.location %q invalid: %w", s.Location, err)
	}
	return nil
}

// LoadLocation 解析时区
func (s *ScheduleConfig) LoadLocation() (*time.Location, error) {
	return time.LoadLocation(s.Location)
}

// 模块名不能为空，cron_time 必须可解析
func validateModules(modules map[string]ModuleConfig) error {
	for name, m := range modules {
		if strings.TrimSpace(name) == "" {
			return errors.New("modules cannot contain an empty module name")
		}
		if m.CronTime == "" {
			continue
		}
		if _, err := CronParser.Parse(m.CronTime); err != nil {
			return fmt.Errorf("modules.%s.cron_time %q invalid: %w", name, m.CronTime, err)
		}
	}
	return nil
}
