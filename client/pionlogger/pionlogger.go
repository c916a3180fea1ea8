package pionlogger

import (
	"fmt"

	"github.com/peer-calls/meetings/client/logger"
	"github.com/pion/logging"
)

// Factory implements logging.LoggerFactory so pion's internal subsystems
// (ice, dtls, sctp...) log through our logger under the "pion" namespace.
type Factory struct {
	log logger.Logger
}

var _ logging.LoggerFactory = &Factory{}

func NewFactory(log logger.Logger) *Factory {
	return &Factory{
		log: log.WithNamespaceAppended("pion"),
	}
}

func (f *Factory) NewLogger(subsystem string) logging.LeveledLogger {
	return &leveledLogger{
		log: f.log.WithNamespaceAppended(subsystem),
	}
}

type leveledLogger struct {
	log logger.Logger
}

var _ logging.LeveledLogger = &leveledLogger{}

func (p *leveledLogger) logf(level logger.Level, format string, args ...interface{}) {
	if !p.log.IsLevelEnabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)

	switch level {
	case logger.LevelTrace:
		_, _ = p.log.Trace(msg, nil)
	case logger.LevelDebug:
		_, _ = p.log.Debug(msg, nil)
	case logger.LevelInfo:
		_, _ = p.log.Info(msg, nil)
	case logger.LevelWarn:
		_, _ = p.log.Warn(msg, nil)
	default:
		_, _ = p.log.Error(msg, nil, nil)
	}
}

func (p *leveledLogger) Trace(msg string) { p.logf(logger.LevelTrace, "%s", msg) }
func (p *leveledLogger) Debug(msg string) { p.logf(logger.LevelDebug, "%s", msg) }
func (p *leveledLogger) Info(msg string)  { p.logf(logger.LevelInfo, "%s", msg) }
func (p *leveledLogger) Warn(msg string)  { p.logf(logger.LevelWarn, "%s", msg) }
func (p *leveledLogger) Error(msg string) { p.logf(logger.LevelError, "%s", msg) }

func (p *leveledLogger) Tracef(format string, args ...interface{}) {
	p.logf(logger.LevelTrace, format, args...)
}

func (p *leveledLogger) Debugf(format string, args ...interface{}) {
	p.logf(logger.LevelDebug, format, args...)
}

func (p *leveledLogger) Infof(format string, args ...interface{}) {
	p.logf(logger.LevelInfo, format, args...)
}

func (p *leveledLogger) Warnf(format string, args ...interface{}) {
	p.logf(logger.LevelWarn, format, args...)
}

func (p *leveledLogger) Errorf(format string, args ...interface{}) {
	p.logf(logger.LevelError, format, args...)
}
