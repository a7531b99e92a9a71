package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/monitor-client/pkg/config"
)

type Logger = zap.Logger

var (
	baseLogger *zap.Logger
	mu         sync.RWMutex
)

// InitLogger 初始化全局日志：控制台彩色输出 + 按天切割的 JSON 文件
func InitLogger(cfg *config.ZapLogConfig) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", cfg.Path, err)
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 100
	}
	writer, err := rotatelogs.New(
		filepath.Join(cfg.Path, "monitor-client-%Y%m%d.log"),
		rotatelogs.WithMaxAge(time.Duration(maxAge)*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithRotationSize(int64(maxSize)*1024*1024),
	)
	if err != nil {
		return nil, fmt.Errorf("create rotate writer: %w", err)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder(cfg.Format), zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(jsonEncoder(), zapcore.AddSync(writer), level),
	)

	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	baseLogger = l
	mu.Unlock()
	return l, nil
}

// 控制台编码器；format=json 时控制台同样输出 JSON
func consoleEncoder(format string) zapcore.Encoder {
	if format == "json" {
		return jsonEncoder()
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.ConsoleSeparator = " "
	cfg.EncodeLevel = coloredLevelEncoder
	// 控制台彩色时间
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format("2006-01-02 15:04:05.000 -07:00")))
	}
	// Caller 两级路径
	cfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000 -07:00"))
	}
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var levelStr string
	switch level {
	case zapcore.DebugLevel:
		levelStr = "\033[36mDEBUG\033[0m"
	case zapcore.InfoLevel:
		levelStr = "\033[32mINFO \033[0m"
	case zapcore.WarnLevel:
		levelStr = "\033[33mWARN \033[0m"
	case zapcore.ErrorLevel:
		levelStr = "\033[31mERROR\033[0m"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
	default:
		levelStr = "UNK  "
	}
	enc.AppendString(levelStr)
}

// GetGlobalLogger 返回全局日志器；未初始化时返回 Nop，避免启动阶段 panic
func GetGlobalLogger() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if baseLogger == nil {
		return zap.NewNop()
	}
	return baseLogger
}

// 包级辅助函数跳过自身一层调用栈
func caller() *zap.Logger {
	return GetGlobalLogger().WithOptions(zap.AddCallerSkip(1))
}

func Debug(msg string, fields ...zap.Field) { caller().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { caller().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { caller().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { caller().Error(msg, fields...) }
func Panic(msg string, fields ...zap.Field) { caller().Panic(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { caller().Fatal(msg, fields...) }

// Sync 刷盘（忽略 stdout 无效句柄错误）
func Sync() error {
	err := GetGlobalLogger().Sync()
	if err != nil && strings.Contains(err.Error(), "/dev/stdout") {
		return nil
	}
	return err
}
