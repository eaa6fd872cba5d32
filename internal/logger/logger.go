package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// switchCore forwards to the core installed last. Packages keep the
// *zap.Logger they copied at init time, so Init swaps the core underneath it.
// Loggers derived with With before a swap keep the old core.
type switchCore struct {
	inner atomic.Pointer[zapcore.Core]
}

func newSwitchCore(c zapcore.Core) *switchCore {
	s := &switchCore{}
	s.swap(c)
	return s
}

func (s *switchCore) swap(c zapcore.Core) {
	s.inner.Store(&c)
}

func (s *switchCore) load() zapcore.Core {
	return *s.inner.Load()
}

func (s *switchCore) Enabled(level zapcore.Level) bool {
	return s.load().Enabled(level)
}

func (s *switchCore) With(fields []zapcore.Field) zapcore.Core {
	return s.load().With(fields)
}

func (s *switchCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return s.load().Check(entry, checked)
}

func (s *switchCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return s.load().Write(entry, fields)
}

func (s *switchCore) Sync() error {
	return s.load().Sync()
}

var (
	current    *switchCore
	stackLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
)

// Logger is a wrapper around zap.Logger
// we can configure it as we want
func zapLogger() *zap.Logger {
	dev, err := zap.NewDevelopmentConfig().Build()
	if err != nil {
		dev = zap.NewNop()
	}
	current = newSwitchCore(dev.Core())
	return zap.New(current, zap.AddCaller(), zap.AddStacktrace(stackLevel))
}

var Logger = zapLogger()

// Init switches to the production JSON encoder when asked to.
func Init(environment string) error {
	if environment != "production" {
		return nil
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := config.Build()
	if err != nil {
		return err
	}
	current.swap(built.Core())
	stackLevel.SetLevel(zap.ErrorLevel)
	zap.ReplaceGlobals(Logger)
	return nil
}

func Sync() {
	_ = Logger.Sync()
}
