package database

import (
	"time"

	"github.com/rediwo/redi-collection/logger"
)

// DBLogger emits executed SQL with parameters and duration
type DBLogger struct {
	log logger.Logger
}

func NewDBLogger(log logger.Logger) *DBLogger {
	return &DBLogger{log: log}
}

// LogSQL logs a statement after execution. Failures log at error level with
// the driver's message, successes at debug level.
func (l *DBLogger) LogSQL(query string, args []any, duration time.Duration, err error) {
	if err != nil {
		l.log.Error("SQL failed (%v): %s %v: %v", duration, query, args, err)
		return
	}
	if len(args) > 0 {
		l.log.Debug("SQL (%v): %s %v", duration, query, args)
		return
	}
	l.log.Debug("SQL (%v): %s", duration, query)
}
