// Package scheduler 为每个带 cron 的模块注册定时采集任务，采集成功后写入缓冲区。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/monitor-client/pkg/buffer"
	"github.com/monitor-client/pkg/config"
	"github.com/monitor-client/pkg/metrics"
	"github.com/monitor-client/pkg/module"
)

// Options 调度器依赖
type Options struct {
	ClientID    string
	DefaultSpec string
	Location    *time.Location
	Clock       clockwork.Clock
	Logger      *zap.Logger
	Metrics     *metrics.Set
}

// Job 已注册的定时任务
type Job struct {
	Module string
	Spec   string
	Next   time.Time
}

// Scheduler 采集调度器
type Scheduler struct {
	registry *module.Registry
	buf      *buffer.Buffer
	opts     Options
	cron     *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	specs   map[string]string
	ctx     context.Context
	cancel  context.CancelFunc
}

// New 创建调度器
func New(registry *module.Registry, buf *buffer.Buffer, opts Options) *Scheduler {
	if opts.DefaultSpec == "" {
		opts.DefaultSpec = "@every 1m"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewDiscardSet()
	}

	cl := cronLogger{opts.Logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		registry: registry,
		buf:      buf,
		opts:     opts,
		cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register 为所有带 cron 的模块注册任务；表达式非法时返回错误
func (s *Scheduler) Register() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.registry.WithCron() {
		if _, ok := s.entries[d.Name]; ok {
			continue
		}
		spec := d.Config.CronTime
		if spec == "" {
			spec = s.opts.DefaultSpec
		}
		d := d
		id, err := s.cron.AddFunc(spec, func() { s.Collect(s.ctx, d) })
		if err != nil {
			return fmt.Errorf("register cron for module %s (%q): %w", d.Name, spec, err)
		}
		s.entries[d.Name] = id
		s.specs[d.Name] = spec
		s.opts.Logger.Debug("registered module as cronjob",
			zap.String("module", d.Name), zap.String("spec", spec))
	}
	return nil
}

// Start 启动调度（非阻塞）；ctx 取消时停止调度
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.opts.Logger.Info("collection scheduler started", zap.Int("jobs", len(s.Jobs())))

	go func() {
		select {
		case <-ctx.Done():
			s.cron.Stop()
			s.cancel()
		case <-s.ctx.Done():
		}
	}()
}

// Shutdown 停止调度并等待正在执行的采集结束（最多等到 ctx 超时）
func (s *Scheduler) Shutdown(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()
	select {
	case <-stopped.Done():
		s.opts.Logger.Info("collection scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running collections: %w", ctx.Err())
	}
}

// Jobs 列出已注册任务
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]Job, 0, len(s.entries))
	for name, id := range s.entries {
		jobs = append(jobs, Job{Module: name, Spec: s.specs[name], Next: s.cron.Entry(id).Next})
	}
	return jobs
}

// Collect 执行一次模块采集。失败只记录日志，不写缓冲区，不做额外重试；
// 下一次定时触发即为重试。
func (s *Scheduler) Collect(ctx context.Context, d *module.Descriptor) {
	start := s.opts.Clock.Now()
	result, err := s.safeCollect(ctx, d)
	s.opts.Metrics.CollectDuration.WithLabelValues(d.Name).Observe(s.opts.Clock.Since(start).Seconds())
	if err != nil {
		s.opts.Metrics.CollectErrors.WithLabelValues(d.Name).Inc()
		s.opts.Logger.Warn("module collection failed", zap.String("module", d.Name), zap.Error(err))
		return
	}

	rec := s.buildRecord(d, result)
	key, err := s.buf.Insert(rec)
	if err != nil {
		s.opts.Logger.Error("insert record failed", zap.String("module", d.Name), zap.Error(err))
		return
	}
	s.opts.Logger.Debug("module cron executed",
		zap.String("module", d.Name), zap.String("key", key), zap.Int64("date", rec.Date))
}

// 模块内部 panic 视为本次采集失败，不影响其他模块
func (s *Scheduler) safeCollect(ctx context.Context, d *module.Descriptor) (res module.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collect panicked: %v", r)
		}
	}()
	return d.Collect(ctx)
}

func (s *Scheduler) buildRecord(d *module.Descriptor, result module.Result) buffer.Record {
	clientID := s.opts.ClientID
	if id, ok := result.ClientID(); ok {
		clientID = id
	}
	rec := buffer.NewRecord(d.Name, clientID, s.opts.Clock.Now(), result.Data())
	if d.SnapshotData != nil {
		rec.SnapshotData = d.SnapshotData
	}
	return rec
}

// cronLogger 将 cron 内部日志转到 zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
