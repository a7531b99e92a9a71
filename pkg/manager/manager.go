// Package manager 组装模块注册表、缓冲区、采集调度器、投递协调器与命令分发器，
// 并负责它们的启动与关闭顺序。
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/monitor-client/pkg/buffer"
	"github.com/monitor-client/pkg/channel"
	"github.com/monitor-client/pkg/config"
	"github.com/monitor-client/pkg/dispatch"
	"github.com/monitor-client/pkg/flush"
	"github.com/monitor-client/pkg/metrics"
	"github.com/monitor-client/pkg/module"
	"github.com/monitor-client/pkg/scheduler"
)

// Option Manager 可选依赖
type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(s *metrics.Set) Option {
	return func(m *Manager) { m.metrics = s }
}

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// Manager 模块编排器
type Manager struct {
	cfg      *config.Config
	registry *module.Registry
	logger   *zap.Logger
	metrics  *metrics.Set
	clock    clockwork.Clock

	buf        *buffer.Buffer
	sched      *scheduler.Scheduler
	coord      *flush.Coordinator
	dispatcher *dispatch.Dispatcher
	channel    *channel.Client

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New 创建 Manager；transport 为 nil 时不启动投递循环
func New(cfg *config.Config, registry *module.Registry, transport flush.Transport, opts ...Option) (*Manager, error) {
	m := &Manager{cfg: cfg, registry: registry}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.metrics == nil {
		m.metrics = metrics.NewDiscardSet()
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}

	loc, err := cfg.Schedule.LoadLocation()
	if err != nil {
		return nil, fmt.Errorf("load schedule location: %w", err)
	}

	m.buf = buffer.New(buffer.WithGauge(m.metrics.BufferRecords))
	m.sched = scheduler.New(registry, m.buf, scheduler.Options{
		ClientID:    cfg.Client.ID,
		DefaultSpec: cfg.Schedule.DefaultCron,
		Location:    loc,
		Clock:       m.clock,
		Logger:      m.logger.Named("scheduler"),
		Metrics:     m.metrics,
	})
	if transport != nil {
		m.coord = flush.NewCoordinator(m.buf, transport, flush.Options{
			Interval:   cfg.Flush.Interval,
			Lease:      cfg.Flush.Lease,
			GuardBytes: cfg.Flush.GuardBytes,
			Clock:      m.clock,
			Logger:     m.logger.Named("flush"),
			Metrics:    m.metrics,
		})
	}
	m.dispatcher = dispatch.New(registry, m.logger.Named("dispatch"))
	if cfg.Monitor.CommandURL != "" {
		m.channel = channel.NewClient(m.dispatcher, channel.Options{
			URL:    cfg.Monitor.CommandURL,
			Token:  cfg.Client.Token,
			Logger: m.logger.Named("channel"),
		})
	}
	return m, nil
}

// Start 初始化模块、注册定时任务并启动后台循环（非阻塞）
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("manager already started")
	}

	m.initModules(ctx)
	if err := m.sched.Register(); err != nil {
		return err
	}
	for _, j := range m.sched.Jobs() {
		m.logger.Info("module job scheduled",
			zap.String("module", j.Module), zap.String("spec", j.Spec), zap.Time("next", j.Next))
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.sched.Start(runCtx)
	if m.coord != nil {
		m.goRun(func() { m.coord.Run(runCtx) })
	}
	if m.channel != nil {
		m.goRun(func() { m.channel.Run(runCtx) })
	}
	m.started = true
	m.logger.Info("module manager started",
		zap.Strings("modules", m.registry.Names()), zap.String("client_id", m.cfg.Client.ID))
	return nil
}

func (m *Manager) goRun(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// Init 失败的模块从注册表移除，不影响其他模块
func (m *Manager) initModules(ctx context.Context) {
	for _, d := range m.registry.All() {
		if d.Init == nil {
			continue
		}
		if err := d.Init(ctx); err != nil {
			m.logger.Error("module init failed, module disabled", zap.String("module", d.Name), zap.Error(err))
			m.registry.Remove(d.Name)
			continue
		}
		m.logger.Debug("module initialized", zap.String("module", d.Name))
	}
}

// Shutdown 停止调度与投递，等待进行中的任务（最多到 ctx 超时），然后关闭模块。
// 缓冲区中未投递的记录直接丢弃。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false

	var errs []error
	if err := m.sched.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		if m.coord != nil {
			m.coord.Wait()
		}
		m.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for background tasks: %w", ctx.Err()))
	}

	for _, d := range m.registry.All() {
		if d.Close == nil {
			continue
		}
		if err := d.Close(); err != nil {
			m.logger.Error("failed to close module", zap.String("module", d.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close module %s: %w", d.Name, err))
		}
	}
	if n := m.buf.Len(); n > 0 {
		m.logger.Warn("discarding undelivered records", zap.Int("records", n))
	}
	m.logger.Info("module manager stopped")
	return errors.Join(errs...)
}

func (m *Manager) Buffer() *buffer.Buffer { return m.buf }
func (m *Manager) Scheduler() *scheduler.Scheduler { return m.sched }
func (m *Manager) Coordinator() *flush.Coordinator { return m.coord }
func (m *Manager) Dispatcher() *dispatch.Dispatcher { return m.dispatcher }
func (m *Manager) Registry() *module.Registry { return m.registry }
