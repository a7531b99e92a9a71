package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM 或 ctx 取消，然后在 timeout 内执行优雅关闭
func WaitForShutdown(ctx context.Context, logger *zap.Logger, timeout time.Duration, shutdownFunc func(ctx context.Context) error) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("service running, waiting for SIGINT/SIGTERM...")
	<-sigCtx.Done()
	logger.Info("received shutdown signal", zap.NamedError("cause", context.Cause(sigCtx)))

	// 超时控制关闭逻辑
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := shutdownFunc(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("graceful shutdown completed successfully")
	return nil
}
