// Package logger builds the zap logger shared by the whole application.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"postingapp/app/config"
)

// New returns a JSON production logger, or a colored console logger when
// cfg.Development is set.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level := zap.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// Badger adapts a zap logger to badger's Logger interface.
type Badger struct {
	s *zap.SugaredLogger
}

func NewBadger(l *zap.Logger) *Badger {
	return &Badger{s: l.Named("badger").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (b *Badger) Errorf(format string, args ...interface{})   { b.s.Errorf(format, args...) }
func (b *Badger) Warningf(format string, args ...interface{}) { b.s.Warnf(format, args...) }
func (b *Badger) Infof(format string, args ...interface{})    { b.s.Infof(format, args...) }
func (b *Badger) Debugf(format string, args ...interface{})   { b.s.Debugf(format, args...) }
