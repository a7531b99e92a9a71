package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/monitor-client/cmd/server"
	"github.com/monitor-client/pkg/config"
	"github.com/monitor-client/pkg/flush"
	"github.com/monitor-client/pkg/logger"
	"github.com/monitor-client/pkg/manager"
	"github.com/monitor-client/pkg/metrics"
	"github.com/monitor-client/pkg/module"
	"github.com/monitor-client/pkg/modules"
	"github.com/monitor-client/pkg/receiver"
	"github.com/monitor-client/pkg/signal"
	"github.com/monitor-client/pkg/store"
	"github.com/monitor-client/pkg/util"
)

const shutdownTimeout = 10 * time.Second

func runAgent(ctx context.Context, cfg *config.Config) error {
	log, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer logger.Sync()

	util.PrintBanner(os.Stdout, "monitor-client", "ColorBlue", version, cfg.Client.ID)
	logger.Info("configuration loaded",
		zap.String("config", cfgFile), zap.String("flush_mode", cfg.Flush.Mode),
		zap.Strings("enabled_modules", cfg.EnabledModules()))

	const enableProcess = true
	promReg := metrics.NewRegistry(enableProcess)
	set := metrics.NewSet(metrics.NewMetricFactory(metrics.NewPromRegistry(promReg)))

	reg := module.NewRegistry()
	if _, err := modules.Load(reg, modules.Builtin(), cfg.Modules, log.Named("modules")); err != nil {
		return err
	}

	transport, st, err := newTransport(cfg)
	if err != nil {
		return err
	}

	mgr, err := manager.New(cfg, reg, transport, manager.WithLogger(log), manager.WithMetrics(set))
	if err != nil {
		return err
	}
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start module manager: %w", err)
	}

	httpServer := server.NewHTTPServer(&cfg.Server, log.Named("http"), promReg)
	// Init 失败的模块已被移除，只挂载剩余模块的路由
	if err := httpServer.Mount(reg.Routes()); err != nil {
		_ = mgr.Shutdown(ctx)
		return fmt.Errorf("mount module routes: %w", err)
	}
	// local 模式下本进程即 Monitor，同时接收其他客户端的投递
	if st != nil {
		h := receiver.NewHandler(st, receiver.Options{
			MaxBodyBytes: cfg.Receiver.MaxBodyBytes,
			Tokens:       cfg.Receiver.Tokens,
			Logger:       log.Named("receiver"),
		})
		if err := httpServer.Handle("POST "+receiver.Path, h); err != nil {
			_ = mgr.Shutdown(ctx)
			return err
		}
	}
	if err := httpServer.Start(); err != nil {
		_ = mgr.Shutdown(ctx)
		return fmt.Errorf("start HTTP server failed: %w", err)
	}

	return signal.WaitForShutdown(ctx, log, shutdownTimeout, func(ctx context.Context) error {
		// 关闭顺序：HTTP服务 → 编排器 → 存储
		errs := []error{httpServer.Shutdown(ctx), mgr.Shutdown(ctx)}
		if st != nil {
			errs = append(errs, st.Close())
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
		logger.Info("all services shutdown successfully")
		return nil
	})
}

// newTransport remote 模式投递到 Monitor；local 模式直接写入 Redis
func newTransport(cfg *config.Config) (flush.Transport, *store.RedisStore, error) {
	switch cfg.Flush.Mode {
	case config.FlushModeLocal:
		st, err := store.Open(cfg.Redis.URL, cfg.Redis.Queue)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.RequestTimeout)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.URL, err)
		}
		return flush.NewLocalTransport(st.Save), st, nil
	default:
		return flush.NewHTTPTransport(cfg.Monitor.ModuleDataURL, cfg.Client.Token, cfg.Monitor.RequestTimeout), nil, nil
	}
}
