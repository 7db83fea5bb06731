package logsvc

import (
	"fmt"
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/rs/zerolog"

	"github.com/trezcool/roster/core"
)

// NewZerolog builds the process logger. Debug builds get human readable console output.
func NewZerolog(conf *core.Config, component string) zerolog.Logger {
	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}
	if conf.TestMode {
		level = zerolog.WarnLevel
	}

	var zl zerolog.Logger
	if conf.Debug {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zl = zerolog.New(os.Stderr)
	}
	return zl.Level(level).With().
		Timestamp().
		Str("app", conf.AppName).
		Str("component", component).
		Logger()
}

// RollbarLogger reports to Rollbar and prints through zerolog.
type RollbarLogger struct {
	zl     zerolog.Logger
	report bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(zl zerolog.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{zl: zl, report: true}
}

// NewNopLogger discards everything. Used by tests.
func NewNopLogger() *RollbarLogger {
	return &RollbarLogger{zl: zerolog.Nop()}
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.report = enabled
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}
func (l *RollbarLogger) print(ev *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			ev = ev.Err(a)
		case map[string]interface{}:
			ev = ev.Fields(a)
		default:
			ev = ev.Str("extra", fmt.Sprintf("%+v", a))
		}
	}
	ev.Msg(msg)
}

func (l *RollbarLogger) rollbarArgs(msg string, args []interface{}) []interface{} {
	return append([]interface{}{msg}, args...)
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	if l.report {
		rollbar.Debug(l.rollbarArgs(msg, args)...)
	}
	l.print(l.zl.Debug(), msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	if l.report {
		rollbar.Info(l.rollbarArgs(msg, args)...)
	}
	l.print(l.zl.Info(), msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	if l.report {
		rollbar.Warning(l.rollbarArgs(msg, args)...)
	}
	l.print(l.zl.Warn(), msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	if l.report {
		rollbar.Error(l.rollbarArgs(msg, args)...)
	}
	l.print(l.zl.Error(), msg, args)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	if l.report {
		rollbar.Critical(l.rollbarArgs(msg, args)...)
		rollbar.Wait()
	}
	l.print(l.zl.WithLevel(zerolog.FatalLevel), msg, args)
	os.Exit(1)
}
