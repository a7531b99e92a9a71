// Package flush 周期性地把缓冲区投递到上游，并根据确认结果删除、丢弃记录。
//
// 同一时刻最多只有一次投递在进行（单飞租约）；租约到期后允许新的投递开始，
// 即使上一次投递始终没有返回。
package flush

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/monitor-client/pkg/buffer"
	"github.com/monitor-client/pkg/metrics"
)

// Outcome 一次投递尝试的结果
type Outcome string

const (
	OutcomeAcked       Outcome = "acked"
	OutcomeEmpty       Outcome = "empty"
	OutcomeOverload    Outcome = "overload"
	OutcomeUnreachable Outcome = "unreachable"
	OutcomeError       Outcome = "error"
	OutcomeSkipped     Outcome = "skipped"
)

// Options 协调器参数
type Options struct {
	Interval   time.Duration
	Lease      time.Duration
	GuardBytes int
	Clock      clockwork.Clock
	Logger     *zap.Logger
	Metrics    *metrics.Set
}

// lease 单飞租约；token 每次获取递增，旧的尝试无法释放新的租约
type lease struct {
	inFlight  bool
	expiresAt time.Time
	token     uint64
}

// Coordinator 投递协调器
type Coordinator struct {
	buf       *buffer.Buffer
	transport Transport
	opts      Options

	mu    sync.Mutex
	lease lease

	wg sync.WaitGroup
}

// NewCoordinator 创建协调器
func NewCoordinator(buf *buffer.Buffer, transport Transport, opts Options) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = time.Minute
	}
	if opts.GuardBytes <= 0 {
		opts.GuardBytes = 1 << 20
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
	return &Coordinator{buf: buf, transport: transport, opts: opts}
}

// Run 按固定间隔触发投递，直到 ctx 取消
func (c *Coordinator) Run(ctx context.Context) {
	ticker := c.opts.Clock.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	c.opts.Logger.Info("flush loop started",
		zap.Duration("interval", c.opts.Interval), zap.Duration("lease", c.opts.Lease))
	for {
		select {
		case <-ctx.Done():
			c.opts.Logger.Info("flush loop stopped")
			return
		case <-ticker.Chan():
			c.Tick(ctx)
		}
	}
}

// Tick 尝试获取租约并在后台开始一次投递；租约被占用时返回 false
func (c *Coordinator) Tick(ctx context.Context) bool {
	token, ok := c.acquire()
	if !ok {
		c.opts.Metrics.FlushTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.attempt(ctx, token)
	}()
	return true
}

// Flush 同步执行一次投递
func (c *Coordinator) Flush(ctx context.Context) Outcome {
	token, ok := c.acquire()
	if !ok {
		c.opts.Metrics.FlushTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped
	}
	return c.attempt(ctx, token)
}

// Wait 等待后台投递全部结束
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// InFlight 当前租约是否有效
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lease.inFlight && c.opts.Clock.Now().Before(c.lease.expiresAt)
}

func (c *Coordinator) acquire() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Clock.Now()
	if c.lease.inFlight && now.Before(c.lease.expiresAt) {
		return 0, false
	}
	if c.lease.inFlight {
		c.opts.Logger.Warn("flush lease expired, starting new attempt",
			zap.Time("expired_at", c.lease.expiresAt))
	}
	c.lease.token++
	c.lease.inFlight = true
	c.lease.expiresAt = now.Add(c.opts.Lease)
	return c.lease.token, true
}

func (c *Coordinator) release(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lease.token != token {
		return
	}
	c.lease.inFlight = false
}

func (c *Coordinator) attempt(ctx context.Context, token uint64) (outcome Outcome) {
	// 先释放租约，再记录结果
	defer func() {
		c.opts.Metrics.FlushTotal.WithLabelValues(string(outcome)).Inc()
	}()
	defer c.release(token)

	payload, records, err := c.buf.Serialize()
	if err != nil {
		n := c.buf.Clear()
		c.opts.Metrics.DroppedRecords.WithLabelValues("encode").Add(float64(n))
		c.opts.Logger.Error("serialize buffer failed, buffer cleared", zap.Int("records", n), zap.Error(err))
		return OutcomeError
	}
	if len(records) == 0 {
		return OutcomeEmpty
	}

	ack, err := c.transport.Deliver(ctx, Batch{Payload: payload, Records: records})
	switch {
	case err == nil:
		n := c.buf.Prune(ack.Keys)
		c.opts.Metrics.PrunedRecords.Add(float64(n))
		c.opts.Logger.Debug("flush acknowledged",
			zap.Int("keys", len(ack.Keys)), zap.Int("pruned", n), zap.Int("bytes", len(payload)))
		return OutcomeAcked

	case errors.Is(err, ErrOverload):
		n := c.buf.Clear()
		c.opts.Metrics.DroppedRecords.WithLabelValues("overload").Add(float64(n))
		c.opts.Logger.Warn("monitor overloaded, buffer shed",
			zap.Int("records", n), zap.Int("bytes", len(payload)))
		return OutcomeOverload
	}

	outcome = OutcomeError
	if errors.Is(err, ErrUnreachable) {
		outcome = OutcomeUnreachable
	}
	fields := []zap.Field{zap.Int("records", len(records)), zap.Int("bytes", len(payload)), zap.Error(err)}
	var se *StatusError
	if errors.As(err, &se) {
		fields = append(fields, zap.Int("status", se.Code))
	}

	if len(payload) > c.opts.GuardBytes {
		n := c.buf.Clear()
		c.opts.Metrics.DroppedRecords.WithLabelValues("guard").Add(float64(n))
		c.opts.Logger.Warn("flush failed over memory guard, buffer cleared",
			append(fields, zap.Int("guard_bytes", c.opts.GuardBytes), zap.Int("dropped", n))...)
		return outcome
	}
	c.opts.Logger.Warn("flush failed, records kept for next attempt", fields...)
	return outcome
}
