package rtcpeer

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"

	"peerlink/internal/pkg/logx"
)

// NewLoggerFactory routes pion's internal logs through the global logger,
// tagged with component=Pion and the pion scope (ice, dtls, pc, ...).
// Pion's info messages are chatty, so they are logged at debug.
func NewLoggerFactory() logging.LoggerFactory {
	return newLoggerFactory(logx.Component("Pion"))
}

func newLoggerFactory(base zerolog.Logger) logging.LoggerFactory {
	return loggerFactory{base: base}
}

type loggerFactory struct {
	base zerolog.Logger
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return leveledLogger{logger: f.base.With().Str("scope", scope).Logger()}
}

type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Trace(msg string) { l.logger.Trace().Msg(msg) }
func (l leveledLogger) Tracef(format string, args ...any) {
	l.logger.Trace().Msg(fmt.Sprintf(format, args...))
}

func (l leveledLogger) Debug(msg string) { l.logger.Trace().Msg(msg) }
func (l leveledLogger) Debugf(format string, args ...any) {
	l.logger.Trace().Msg(fmt.Sprintf(format, args...))
}

func (l leveledLogger) Info(msg string) { l.logger.Debug().Msg(msg) }
func (l leveledLogger) Infof(format string, args ...any) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l leveledLogger) Warn(msg string) { l.logger.Warn().Msg(msg) }
func (l leveledLogger) Warnf(format string, args ...any) {
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l leveledLogger) Error(msg string) { l.logger.Error().Msg(msg) }
func (l leveledLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msg(fmt.Sprintf(format, args...))
}
