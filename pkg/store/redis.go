// Package store Monitor 端记录存储：msgpack 编码后追加到 Redis 列表。
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/monitor-client/pkg/buffer"
)

// Entry 列表中的一项
type Entry struct {
	Key    string        `msgpack:"key"`
	Record buffer.Record `msgpack:"record"`
}

// RedisStore 记录存储
type RedisStore struct {
	rdb   *redis.Client
	queue string
}

// Open 解析 redis://host:port/db 并创建存储
func Open(url, queue string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opt), queue), nil
}

func New(rdb *redis.Client, queue string) *RedisStore {
	return &RedisStore{rdb: rdb, queue: queue}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Save 一次 RPUSH 写入所有记录，成功后返回全部 key
func (s *RedisStore) Save(ctx context.Context, records map[string]buffer.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		b, err := msgpack.Marshal(&Entry{Key: k, Record: records[k]})
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", k, err)
		}
		values = append(values, b)
	}
	if err := s.rdb.RPush(ctx, s.queue, values...).Err(); err != nil {
		return nil, fmt.Errorf("rpush %s: %w", s.queue, err)
	}
	return keys, nil
}

// Len 队列长度
func (s *RedisStore) Len(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, s.queue).Result()
}

// Range 读取 [start, stop] 区间的记录
func (s *RedisStore) Range(ctx context.Context, start, stop int64) ([]Entry, error) {
	raw, err := s.rdb.LRange(ctx, s.queue, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", s.queue, err)
	}
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := msgpack.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
