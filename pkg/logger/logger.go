package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

var (
	mu      sync.RWMutex
	logger  Logger
	sLogger *slog.Logger

	nopLogger = &ZapLogger{Logger: zap.NewNop()}
)

type PrintfLogger interface {
	Printf(string, ...any)
}

type Logger interface {
	PrintfLogger
	Debug(msg string, fields ...interface{})
	Debugf(msg string, args ...interface{})
	Info(msg string, fields ...interface{})
	Infof(msg string, args ...interface{})
	Warn(msg string, fields ...interface{})
	Warnf(msg string, args ...interface{})
	Error(msg string, fields ...interface{})
	Errorf(msg string, args ...interface{})
	Fatal(msg string, fields ...interface{})
	Fatalf(msg string, args ...interface{})
}

type ZapLogger struct {
	Logger       *zap.Logger
	loggerConfig zap.Config
}

type optionFunc func(*ZapLogger)

// InitLogger installs the package logger once; later calls are no-ops.
func InitLogger(opts ...optionFunc) error {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		return nil
	}
	zapLogger, err := NewZapLogger(opts...)
	if err != nil {
		return err
	}
	logger = zapLogger
	return nil
}

// NewZapLogger builds a zap logger from the production config and the given options.
func NewZapLogger(opts ...optionFunc) (*ZapLogger, error) {
	loggerZap := &ZapLogger{loggerConfig: zap.NewProductionConfig()}
	for _, opt := range opts {
		opt(loggerZap)
	}
	var err error
	loggerZap.Logger, err = loggerZap.loggerConfig.Build()
	if err != nil {
		return nil, err
	}
	return loggerZap, nil
}

type LevelAdapter struct {
	ZapLevel zapcore.Level
}

func (l LevelAdapter) Level() slog.Level {
	switch l.ZapLevel {
	case zapcore.DebugLevel:
		return slog.LevelDebug
	case zapcore.InfoLevel:
		return slog.LevelInfo
	case zapcore.WarnLevel:
		return slog.LevelWarn
	case zapcore.ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type OptSLogger struct {
	AttrFromCtx []func(ctx context.Context) []slog.Attr
	ZapLevel    zapcore.Level
}

// InitSLogger installs the context-aware slog bridge on top of the zap logger.
func InitSLogger(zapLogger *zap.Logger, opts *OptSLogger) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	sLogger = slog.New(slogzap.Option{Logger: zapLogger, Level: LevelAdapter{ZapLevel: opts.ZapLevel}, AttrFromContext: opts.AttrFromCtx}.NewZapHandler())
	return sLogger
}

func getSLogger() *slog.Logger {
	mu.RLock()
	s := sLogger
	mu.RUnlock()
	if s != nil {
		return s
	}
	zl, ok := get().(*ZapLogger)
	if !ok {
		zl = nopLogger
	}
	return slog.New(slogzap.Option{Logger: zl.Logger}.NewZapHandler())
}

func DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	getSLogger().DebugContext(ctx, msg, fields...)
}

func InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	getSLogger().InfoContext(ctx, msg, fields...)
}

func WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	getSLogger().WarnContext(ctx, msg, fields...)
}

func ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	getSLogger().ErrorContext(ctx, msg, fields...)
}

func NewZapLoggerForTest(t *testing.T) *ZapLogger {
	return &ZapLogger{
		Logger: zaptest.NewLogger(t),
	}
}

// SetLogger replaces the package logger, e.g. with NewZapLoggerForTest.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func WithLevel(level zapcore.Level) optionFunc {
	return func(zl *ZapLogger) {
		zl.loggerConfig.Level = zap.NewAtomicLevelAt(level)
	}
}

func WithEncodeTime(timeKey string, timeEncoder zapcore.TimeEncoder) optionFunc {
	return func(zl *ZapLogger) {
		zl.loggerConfig.EncoderConfig.TimeKey = timeKey
		zl.loggerConfig.EncoderConfig.EncodeTime = timeEncoder
	}
}

// GetLogger returns the package logger, or a no-op logger before InitLogger.
func GetLogger() Logger {
	return get()
}

func get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return nopLogger
	}
	return logger
}

func Debug(msg string, fields ...interface{}) {
	get().Debug(msg, fields...)
}

func Debugf(msg string, fields ...interface{}) {
	get().Debugf(msg, fields...)
}

func Info(msg string, fields ...interface{}) {
	get().Info(msg, fields...)
}

func Infof(msg string, fields ...interface{}) {
	get().Infof(msg, fields...)
}

func Warn(msg string, fields ...interface{}) {
	get().Warn(msg, fields...)
}

func Warnf(msg string, fields ...interface{}) {
	get().Warnf(msg, fields...)
}

func Error(msg string, fields ...interface{}) {
	get().Error(msg, fields...)
}

func Errorf(msg string, fields ...interface{}) {
	get().Errorf(msg, fields...)
}

func Fatal(msg string, fields ...interface{}) {
	get().Fatal(msg, fields...)
}

func Fatalf(msg string, fields ...interface{}) {
	get().Fatalf(msg, fields...)
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) {
	l.Logger.Sugar().Debugw(msg, fields...)
}

func (l *ZapLogger) Debugf(msg string, args ...interface{}) {
	l.Logger.Sugar().Debugf(msg, args...)
}

func (l *ZapLogger) Info(msg string, fields ...interface{}) {
	l.Logger.Sugar().Infow(msg, fields...)
}

func (l *ZapLogger) Infof(msg string, args ...interface{}) {
	l.Logger.Sugar().Infof(msg, args...)
}

func (l *ZapLogger) Warn(msg string, fields ...interface{}) {
	l.Logger.Sugar().Warnw(msg, fields...)
}

func (l *ZapLogger) Warnf(msg string, args ...interface{}) {
	l.Logger.Sugar().Warnf(msg, args...)
}

func (l *ZapLogger) Error(msg string, fields ...interface{}) {
	l.Logger.Sugar().Errorw(msg, fields...)
}

func (l *ZapLogger) Errorf(msg string, fields ...interface{}) {
	l.Logger.Sugar().Errorf(msg, fields...)
}

func (l *ZapLogger) Fatal(msg string, fields ...interface{}) {
	l.Logger.Sugar().Fatalw(msg, fields...)
}

func (l *ZapLogger) Fatalf(msg string, fields ...interface{}) {
	l.Logger.Sugar().Fatalf(msg, fields...)
}

func (l *ZapLogger) Printf(msg string, args ...interface{}) {
	l.Logger.Sugar().Infof(msg, args...)
}
