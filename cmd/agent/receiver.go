package agent

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/monitor-client/cmd/server"
	"github.com/monitor-client/pkg/config"
	"github.com/monitor-client/pkg/logger"
	"github.com/monitor-client/pkg/receiver"
	"github.com/monitor-client/pkg/signal"
	"github.com/monitor-client/pkg/store"
)

var receiverCmd = &cobra.Command{
	Use:   "receiver",
	Short: "Run the monitor-side ingest endpoint (POST /moduledata -> Redis)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadReceiverConfigWithCli(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := runReceiver(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "服务启动失败: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	f := receiverCmd.Flags()
	f.String("receiver.addr", defaultCfg.Receiver.Addr, "-> Ingest listening address | 接收服务监听地址")
	f.Int64("receiver.max_body_bytes", defaultCfg.Receiver.MaxBodyBytes, "-> Larger bodies get 413 | 请求体上限")
	f.StringSlice("receiver.tokens", defaultCfg.Receiver.Tokens, "-> Accepted clienttoken values | 允许的 token")
}

func runReceiver(ctx context.Context, cfg *config.Config) error {
	log, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.Redis.URL, cfg.Redis.Queue)
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Monitor.RequestTimeout)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		_ = st.Close()
		return fmt.Errorf("ping redis %s: %w", cfg.Redis.URL, err)
	}

	srvCfg := cfg.Server
	srvCfg.Addr = cfg.Receiver.Addr
	httpServer := server.NewHTTPServer(&srvCfg, log.Named("http"), nil)
	h := receiver.NewHandler(st, receiver.Options{
		MaxBodyBytes: cfg.Receiver.MaxBodyBytes,
		Tokens:       cfg.Receiver.Tokens,
		Logger:       log.Named("receiver"),
	})
	if err := httpServer.Handle("POST "+receiver.Path, h); err != nil {
		_ = st.Close()
		return err
	}
	if err := httpServer.Start(); err != nil {
		_ = st.Close()
		return fmt.Errorf("start HTTP server failed: %w", err)
	}
	if len(cfg.Receiver.Tokens) == 0 {
		log.Warn("receiver accepts any clienttoken; set receiver.tokens to restrict clients")
	}
	log.Info("receiver started", zap.String("addr", httpServer.Addr()), zap.String("queue", cfg.Redis.Queue))

	return signal.WaitForShutdown(ctx, log, shutdownTimeout, func(ctx context.Context) error {
		return errors.Join(httpServer.Shutdown(ctx), st.Close())
	})
}
