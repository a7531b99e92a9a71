package flush

import (
	"context"

	"github.com/monitor-client/pkg/buffer"
)

// SaveFunc 本地保存回调，返回已接收的 key
type SaveFunc func(ctx context.Context, records map[string]buffer.Record) ([]string, error)

// LocalTransport 本进程即接收端时使用，直接调用保存回调
type LocalTransport struct {
	save SaveFunc
}

func NewLocalTransport(save SaveFunc) *LocalTransport {
	return &LocalTransport{save: save}
}

func (t *LocalTransport) Deliver(ctx context.Context, batch Batch) (Ack, error) {
	keys, err := t.save(ctx, batch.Records)
	if err != nil {
		return Ack{}, err
	}
	return Ack{Keys: keys}, nil
}
