package logsvc

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/user"
)

// RollbarLogger reports to rollbar and writes every entry through zap.
type RollbarLogger struct {
	out    *zap.SugaredLogger
	report bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(out *zap.SugaredLogger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{out: out, report: true}
}

// NewNopLogger discards everything. Meant for tests.
func NewNopLogger() *RollbarLogger {
	return &RollbarLogger{out: zap.NewNop().Sugar()}
}

// NewZap builds the zap logger backing a RollbarLogger.
func NewZap(name string, debug bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Named(name).Sugar(), nil
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.report = enabled
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l *RollbarLogger) prepare(msg string, args []interface{}) (rbArgs []interface{}, kvs []interface{}) {
	var usrSet bool
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if usrSet { // only set one User
				continue
			}
			if l.report {
				rollbar.SetPerson(strconv.Itoa(a.ID), a.Username, a.Email)
			}
			kvs = append(kvs, "user_id", a.ID)
			usrSet = true
		case error:
			rbArgs = append(rbArgs, a)
			kvs = append(kvs, "error", fmt.Sprintf("%+v", a))
		case map[string]interface{}:
			rbArgs = append(rbArgs, a)
			keys := make([]string, 0, len(a))
			for k := range a {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				kvs = append(kvs, k, a[k])
			}
		default:
			rbArgs = append(rbArgs, a)
			kvs = append(kvs, "extra", a)
		}
	}
	if !usrSet && l.report {
		rollbar.ClearPerson()
	}
	return rbArgs, kvs
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	if l.report {
		rollbar.Debug(rbArgs...)
	}
	l.out.Debugw(msg, kvs...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	if l.report {
		rollbar.Info(rbArgs...)
	}
	l.out.Infow(msg, kvs...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	if l.report {
		rollbar.Warning(rbArgs...)
	}
	l.out.Warnw(msg, kvs...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	if l.report {
		rollbar.Error(rbArgs...)
	}
	l.out.Errorw(msg, kvs...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	if l.report {
		rollbar.Critical(rbArgs...)
		rollbar.Wait()
	}
	l.out.Fatalw(msg, kvs...)
}

// Sync flushes buffered entries.
func (l *RollbarLogger) Sync() {
	_ = l.out.Sync()
	if l.report {
		rollbar.Wait()
	}
}
