package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lendingrisk/pkg/errors"
)

var (
	globalLogger *Logger
	mu           sync.Mutex
)

// Logger wraps zap.SugaredLogger and forwards errors to a tracker when one is set
type Logger struct {
	*zap.SugaredLogger
	tracker errors.Tracker
	tags    map[string]string
}

// Init initializes the global logger
func Init(level string, env string) error {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	zl, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	mu.Lock()
	globalLogger = &Logger{SugaredLogger: zl.Sugar()}
	mu.Unlock()
	return nil
}

// SetErrorTracker sets the tracker used by Error, Errorf and Errorw
func SetErrorTracker(tracker errors.Tracker) {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger != nil {
		globalLogger.tracker = tracker
	}
}

// Get returns the global logger, falling back to a development logger
func Get() *Logger {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		zl, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: zl.Sugar()}
	}
	return globalLogger
}

// With creates a child logger with additional fields.
// A "component" key is also attached as a tracker tag.
func (l *Logger) With(args ...interface{}) *Logger {
	tags := make(map[string]string, len(l.tags)+1)
	for k, v := range l.tags {
		tags[k] = v
	}
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok && (key == "component" || key == "chain_id") {
			tags[key] = fmt.Sprint(args[i+1])
		}
	}
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		tracker:       l.tracker,
		tags:          tags,
	}
}

func (l *Logger) Error(args ...interface{}) {
	l.SugaredLogger.Error(args...)
	l.capture(context.Background(), errors.Wrapf(errors.ErrInternal, "%v", fmt.Sprint(args...)))
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)
	l.capture(context.Background(), fmt.Errorf(template, args...))
}

// Errorw logs with structured fields. If one of the fields is an error
// it is captured by the tracker as-is, otherwise the message is.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)

	var captured error
	for _, v := range keysAndValues {
		if err, ok := v.(error); ok {
			captured = errors.Wrap(err, msg)
			break
		}
	}
	if captured == nil {
		captured = errors.New(msg)
	}
	l.capture(context.Background(), captured)
}

// ErrorWithContext logs an error with context and sends it to the tracker
func (l *Logger) ErrorWithContext(ctx context.Context, err error, tags map[string]string) {
	l.SugaredLogger.Error(err)
	if l.tracker != nil {
		merged := make(map[string]string, len(l.tags)+len(tags))
		for k, v := range l.tags {
			merged[k] = v
		}
		for k, v := range tags {
			merged[k] = v
		}
		_ = l.tracker.CaptureError(ctx, err, merged)
	}
}

func (l *Logger) capture(ctx context.Context, err error) {
	if l.tracker == nil {
		return
	}
	tags := l.tags
	if len(tags) == 0 {
		tags = map[string]string{"component": "logger"}
	}
	_ = l.tracker.CaptureError(ctx, err, tags)
}

func Debug(args ...interface{})                   { Get().Debug(args...) }
func Debugf(template string, args ...interface{}) { Get().Debugf(template, args...) }
func Info(args ...interface{})                    { Get().Info(args...) }
func Infof(template string, args ...interface{})  { Get().Infof(template, args...) }
func Warn(args ...interface{})                    { Get().Warn(args...) }
func Warnf(template string, args ...interface{})  { Get().Warnf(template, args...) }
func Error(args ...interface{})                   { Get().Error(args...) }
func Errorf(template string, args ...interface{}) { Get().Errorf(template, args...) }
func Fatal(args ...interface{})                   { Get().Fatal(args...) }
func Fatalf(template string, args ...interface{}) { Get().Fatalf(template, args...) }

// Sync flushes any buffered log entries
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
