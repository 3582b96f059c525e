package logger

import (
	"os"
	"swapdesk/conf"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 基于zap的全局日志，支持lumberjack文件切割

var lg *zap.Logger

func init() {
	// 配置加载前的兜底logger，避免init顺序问题导致空指针
	lg, _ = zap.NewDevelopment(zap.AddCallerSkip(1))
}

// Init 根据配置初始化日志，应用启动时调用一次
func Init(cfg conf.LogConfig) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02 15:04:05.000"
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeDuration = func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(d.String())
	}

	var cores []zapcore.Core
	if cfg.FileName != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.FileName,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  cfg.LocalTime,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(writer),
			level,
		))
	}
	if cfg.Console || cfg.FileName == "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}

	lg = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

// Pair 构造一个结构化字段
func Pair(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}

func Debug(msg string, fields ...zap.Field) { lg.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { lg.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { lg.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { lg.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { lg.Fatal(msg, fields...) }

func Debugf(format string, args ...interface{}) { lg.Sugar().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { lg.Sugar().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { lg.Sugar().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { lg.Sugar().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { lg.Sugar().Fatalf(format, args...) }

// Sync 刷新缓冲，在进程退出前调用
func Sync() {
	_ = lg.Sync()
}
