package messaging

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

// watermillLogger routes watermill logs into the service logger.
type watermillLogger struct {
	logger *types.Logger
	fields watermill.LogFields
}

func newWatermillLogger(logger *types.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) args(fields watermill.LogFields) []interface{} {
	all := l.fields.Add(fields)
	args := make([]interface{}, 0, 2*len(all))
	for k, v := range all {
		args = append(args, k, v)
	}
	return args
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Errorw(msg, append(l.args(fields), "error", err)...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.logger.Infow(msg, l.args(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debugw(msg, l.args(fields)...)
}

// Trace is too chatty for the service log and goes to debug.
func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.logger.Debugw(msg, l.args(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: l.logger, fields: l.fields.Add(fields)}
}
