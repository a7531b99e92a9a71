package agent

import (
	"github.com/spf13/cobra"
)

func initMonitorFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("client.id", defaultCfg.Client.ID, "-> monitorClientId stamped on every record | 客户端ID")
	f.String("client.token", defaultCfg.Client.Token, "-> clienttoken header | 客户端认证 token")

	f.String("monitor.module_data_url", defaultCfg.Monitor.ModuleDataURL, "-> Module data delivery URL | 模块数据投递地址")
	f.String("monitor.command_url", defaultCfg.Monitor.CommandURL, "-> Websocket command channel URL | 远程命令通道")
	f.Duration("monitor.request_timeout", defaultCfg.Monitor.RequestTimeout, "-> HTTP request timeout | 请求超时")

	f.Duration("flush.interval", defaultCfg.Flush.Interval, "-> Flush interval | 投递间隔")
	f.Duration("flush.lease", defaultCfg.Flush.Lease, "-> Single-flight lease | 单飞租约时长")
	f.Int("flush.guard_bytes", defaultCfg.Flush.GuardBytes, "-> Memory guard threshold in bytes | 内存保护阈值")
	f.String("flush.mode", defaultCfg.Flush.Mode, "-> Delivery mode [remote,local] | 投递模式")

	f.String("schedule.default_cron", defaultCfg.Schedule.DefaultCron, "-> Default module cron | 默认采集周期")
	f.String("schedule.location", defaultCfg.Schedule.Location, "-> Cron time zone | cron 时区")

	f.String("redis.url", defaultCfg.Redis.URL, "-> Redis URL (local mode / receiver) | Redis 地址")
	f.String("redis.queue", defaultCfg.Redis.Queue, "-> Redis list for records | 记录写入列表")
}
