package test

import (
	"github.com/peer-calls/meetings/client/logformatter"
	"github.com/peer-calls/meetings/client/logger"
)

// NewLogger returns a logger configured from MEETINGS_LOG, disabled by
// default.
func NewLogger() logger.Logger {
	return logger.NewFromEnv("MEETINGS_LOG").WithFormatter(logformatter.New())
}
