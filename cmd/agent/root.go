package agent

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/monitor-client/pkg/config"
)

var (
	cfgFile string
	// version 构建时通过 -ldflags "-X github.com/monitor-client/cmd/agent.version=..." 注入
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "monitor-client",
	Short: "Agent-side module orchestrator: collects module data, buffers it and ships it to the monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			// 统一输出错误到 stderr，不返回给 cobra
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "请检查配置文件路径或使用 -c 参数指定\n")
			os.Exit(1)
		}
		if err := runAgent(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "服务启动失败: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.Version = version
	// 注册分组 flag
	initServerFlags(rootCmd)
	initMonitorFlags(rootCmd)
	initLogFlags(rootCmd)
	rootCmd.AddCommand(receiverCmd)
}
