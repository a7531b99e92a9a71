package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var valid = validator.New()

// 投递模式
const (
	FlushModeRemote = "remote" // HTTP 投递到 Monitor
	FlushModeLocal  = "local"  // 本进程即接收端，直接写入存储
)

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server   ServerConfig            `yaml:"server" mapstructure:"server" comment:"本地HTTP服务配置"`
	Client   ClientConfig            `yaml:"client" mapstructure:"client" comment:"客户端身份"`
	Monitor  MonitorConfig           `yaml:"monitor" mapstructure:"monitor" comment:"Monitor 上游配置"`
	Flush    FlushConfig             `yaml:"flush" mapstructure:"flush" comment:"缓冲区投递配置"`
	Schedule ScheduleConfig          `yaml:"schedule" mapstructure:"schedule" comment:"模块调度配置"`
	Modules  map[string]ModuleConfig `yaml:"modules" mapstructure:"modules" comment:"模块配置（按模块名）"`
	Receiver ReceiverConfig          `yaml:"receiver" mapstructure:"receiver" comment:"Monitor 端接收配置"`
	Redis    RedisConfig             `yaml:"redis" mapstructure:"redis" comment:"Monitor 端存储配置"`
	Log      ZapLogConfig            `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"HTTP_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"required,gt=0" comment:"读取超时时间（如30s）"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"required,gt=0" comment:"写入超时时间（如30s）"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"required,gt=0" comment:"空闲连接超时时间（如60s）"`
}

// ClientConfig 客户端身份（monitorClientId + clienttoken）
type ClientConfig struct {
	ID    string `yaml:"id" mapstructure:"id" env:"CLIENT_ID" comment:"monitorClientId"`
	Token string `yaml:"token" mapstructure:"token" env:"CLIENT_TOKEN" comment:"clienttoken 请求头"`
}

// MonitorConfig Monitor 上游地址
type MonitorConfig struct {
	ModuleDataURL  string        `yaml:"module_data_url" mapstructure:"module_data_url" env:"MONITOR_MODULE_DATA_URL" validate:"omitempty,url" comment:"模块数据投递地址"`
	CommandURL     string        `yaml:"command_url" mapstructure:"command_url" env:"MONITOR_COMMAND_URL" validate:"omitempty,url" comment:"远程命令通道（websocket），为空则不启用"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" validate:"required,gt=0" comment:"HTTP 请求超时"`
}

// FlushConfig 缓冲区投递配置
type FlushConfig struct {
	Interval   time.Duration `yaml:"interval" mapstructure:"interval" validate:"required,gt=0" comment:"投递间隔（默认1s）"`
	Lease      time.Duration `yaml:"lease" mapstructure:"lease" validate:"required,gt=0" comment:"单飞租约时长（默认1m）"`
	GuardBytes int           `yaml:"guard_bytes" mapstructure:"guard_bytes" validate:"required,gt=0" comment:"内存保护阈值（字节）"`
	Mode       string        `yaml:"mode" mapstructure:"mode" validate:"required,oneof=remote local" comment:"投递模式 remote/local"`
}

// ScheduleConfig 模块采集调度配置
type ScheduleConfig struct {
	DefaultCron string `yaml:"default_cron" mapstructure:"default_cron" validate:"required" comment:"模块未配置 cron_time 时的默认周期"`
	Location    string `yaml:"location" mapstructure:"location" validate:"required" comment:"cron 时区（IANA），默认 Local"`
}

// ModuleConfig 单个模块的配置
type ModuleConfig struct {
	Enable   bool           `yaml:"enable" mapstructure:"enable" comment:"是否加载该模块"`
	CronTime string         `yaml:"cron_time" mapstructure:"cron_time" comment:"采集周期（cron 表达式或 @every 30s）"`
	Options  map[string]any `yaml:"options" mapstructure:"options" comment:"模块私有配置"`
}

// ReceiverConfig Monitor 端接收配置
type ReceiverConfig struct {
	Addr         string   `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port" comment:"接收服务监听地址"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"required,gt=0" comment:"超过该大小返回 413"`
	Tokens       []string `yaml:"tokens" mapstructure:"tokens" comment:"允许的 clienttoken 列表"`
}

// RedisConfig Monitor 端 Redis 存储
type RedisConfig struct {
	URL   string `yaml:"url" mapstructure:"url" env:"REDIS_URL" validate:"required" comment:"redis://host:port/db"`
	Queue string `yaml:"queue" mapstructure:"queue" validate:"required" comment:"记录写入的列表名"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"json"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" validate:"gte=0" comment:"日志文件最大备份数" default:"30"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" validate:"gte=0" comment:"日志文件最大保存天数" default:"7"`
	Compress  bool   `yaml:"compress" mapstructure:"compress" comment:"是否压缩过期日志" default:"true"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:9091",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Monitor: MonitorConfig{
			RequestTimeout: 30 * time.Second,
		},
		Flush: FlushConfig{
			Interval:   time.Second,
			Lease:      time.Minute,
			GuardBytes: 1 << 20,
			Mode:       FlushModeRemote,
		},
		Schedule: ScheduleConfig{
			DefaultCron: "@every 1m",
			Location:    "Local",
		},
		Modules: map[string]ModuleConfig{},
		Receiver: ReceiverConfig{
			Addr:         "0.0.0.0:9092",
			MaxBodyBytes: 4 << 20,
		},
		Redis: RedisConfig{
			URL:   "redis://127.0.0.1:6379/0",
			Queue: "monitor_module_data",
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// LoadConfigWithCli 支持 time.Duration，(Flags + YAML + ENV)
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	// 2. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile, (*Config).Validate)
}

// LoadReceiverConfigWithCli receiver 子命令只校验接收端相关配置
func LoadReceiverConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile, (*Config).ValidateReceiver)
}

// LoadFile 仅从配置文件加载（测试及非 cobra 场景）
func LoadFile(configFile string) (*Config, error) {
	return load(viper.New(), configFile, (*Config).Validate)
}

func load(v *viper.Viper, configFile string, validate func(*Config) error) (*Config, error) {
	cfg := NewDefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 ENV -> Viper （MONITOR_CLIENT_FLUSH_INTERVAL -> flush.interval）
	v.SetEnvPrefix("monitor_client")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// 4. 解码反序列化到结构体（支持 time.Duration）
	decoderConfig := &mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 5. 校验配置
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Flush.Validate(&c.Monitor); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if err := validateModules(c.Modules); err != nil {
		return err
	}
	return c.Log.Validate()
}

// ValidateReceiver 接收端配置校验
func (c *Config) ValidateReceiver() error {
	for _, section := range []any{&c.Server, &c.Receiver, &c.Redis, &c.Log} {
		if err := valid.Struct(section); err != nil {
			return err
		}
	}
	return c.Log.Validate()
}

// EnabledModules 返回启用的模块名（已排序）
func (c *Config) EnabledModules() []string {
	names := make([]string, 0, len(c.Modules))
	for name, m := range c.Modules {
		if m.Enable {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
