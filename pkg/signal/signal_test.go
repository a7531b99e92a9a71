package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestWaitForShutdownOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var deadlineSet bool
	err := WaitForShutdown(ctx, zaptest.NewLogger(t), time.Second, func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, deadlineSet)
}

func TestWaitForShutdownReturnsShutdownError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForShutdown(ctx, zaptest.NewLogger(t), time.Second, func(context.Context) error {
		return errors.New("close failed")
	})
	assert.EqualError(t, err, "close failed")
}
