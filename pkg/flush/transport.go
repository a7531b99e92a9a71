package flush

import (
	"context"
	"errors"
	"fmt"

	"github.com/monitor-client/pkg/buffer"
)

var (
	// ErrUnreachable 网络层失败，没有拿到任何响应
	ErrUnreachable = errors.New("monitor unreachable")
	// ErrOverload 接收端返回 413，整个缓冲区需要丢弃
	ErrOverload = errors.New("monitor overloaded")
	// ErrBadAcknowledgement 200 但确认体无法解析
	ErrBadAcknowledgement = errors.New("bad acknowledgement")
)

// StatusError 除 200/413 以外的响应状态
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Batch 一次投递的内容：序列化后的 payload 及其对应的快照
type Batch struct {
	Payload []byte
	Records map[string]buffer.Record
}

// Ack 接收端确认的 key 列表
type Ack struct {
	Keys []string
}

// Transport 投递通道
type Transport interface {
	Deliver(ctx context.Context, batch Batch) (Ack, error)
}

// TransportFunc 函数适配为 Transport
type TransportFunc func(ctx context.Context, batch Batch) (Ack, error)

func (f TransportFunc) Deliver(ctx context.Context, batch Batch) (Ack, error) {
	return f(ctx, batch)
}
