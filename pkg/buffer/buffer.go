// Package buffer 内存中的待投递记录缓冲区：key -> Record。
//
// 采集调度器写入，投递协调器读取与删除；所有变更都在同一把锁下完成。
package buffer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// 生成 key 时最多重试的次数，超过说明生成器已退化
const maxKeyAttempts = 16

// Record 一次成功采集产生的记录，写入后不再修改
type Record struct {
	ModuleName      string `json:"moduleName" msgpack:"moduleName"`
	Date            int64  `json:"date" msgpack:"date"`
	MonitorClientID string `json:"monitorClientId" msgpack:"monitorClientId"`
	Data            any    `json:"data" msgpack:"data"`
	SnapshotData    any    `json:"snapshotData,omitempty" msgpack:"snapshotData,omitempty"`
}

// NewRecord 以毫秒时间戳构造记录
func NewRecord(moduleName, clientID string, at time.Time, data any) Record {
	return Record{
		ModuleName:      moduleName,
		Date:            at.UnixMilli(),
		MonitorClientID: clientID,
		Data:            data,
	}
}

// Option 缓冲区可选项
type Option func(*Buffer)

// WithKeyFunc 替换 key 生成器（默认 uuid v4）
func WithKeyFunc(fn func() string) Option {
	return func(b *Buffer) { b.newKey = fn }
}

// WithGauge 每次变更后同步记录数到 gauge
func WithGauge(g prometheus.Gauge) Option {
	return func(b *Buffer) { b.gauge = g }
}

// Buffer 待投递记录缓冲区
type Buffer struct {
	mu      sync.Mutex
	records map[string]Record
	newKey  func() string
	gauge   prometheus.Gauge
}

// New 创建缓冲区
func New(opts ...Option) *Buffer {
	b := &Buffer{
		records: make(map[string]Record),
		newKey:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Insert 以新生成的唯一 key 写入记录并返回该 key。
// key 在锁内与当前内容做碰撞检查。
func (b *Buffer) Insert(rec Record) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < maxKeyAttempts; i++ {
		key := b.newKey()
		if key == "" {
			continue
		}
		if _, exists := b.records[key]; exists {
			continue
		}
		b.records[key] = rec
		b.syncGauge()
		return key, nil
	}
	return "", fmt.Errorf("buffer: no unique key after %d attempts", maxKeyAttempts)
}

// Put 以指定 key 写入；key 已存在时不覆盖并返回 false
func (b *Buffer) Put(key string, rec Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.records[key]; exists {
		return false
	}
	b.records[key] = rec
	b.syncGauge()
	return true
}

// Prune 删除确认过的 key；缓冲区中不存在的 key 直接忽略（幂等）
func (b *Buffer) Prune(keys []string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for _, key := range keys {
		if _, ok := b.records[key]; ok {
			delete(b.records, key)
			removed++
		}
	}
	if removed > 0 {
		b.syncGauge()
	}
	return removed
}

// Clear 清空缓冲区，返回被丢弃的记录数
func (b *Buffer) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.records)
	b.records = make(map[string]Record)
	b.syncGauge()
	return n
}

func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Keys 当前所有 key（无序）
func (b *Buffer) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.records))
	for k := range b.records {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot 当前内容的浅拷贝；之后的写入不影响快照
func (b *Buffer) Snapshot() map[string]Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]Record, len(b.records))
	for k, v := range b.records {
		out[k] = v
	}
	return out
}

// Serialize 对快照做 JSON 编码；空缓冲区编码为 "{}"
func (b *Buffer) Serialize() ([]byte, map[string]Record, error) {
	snap := b.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize buffer: %w", err)
	}
	return payload, snap, nil
}

func (b *Buffer) syncGauge() {
	if b.gauge != nil {
		b.gauge.Set(float64(len(b.records)))
	}
}
