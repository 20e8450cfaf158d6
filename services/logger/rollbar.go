package logsvc

import (
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/session"
)

// mu guards the global Rollbar client: the person is set then reported within the same critical section.
var mu sync.Mutex

type RollbarLogger struct {
	std   *log.Logger
	token string
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	mu.Lock()
	defer mu.Unlock()
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	if host, err := os.Hostname(); err == nil {
		rollbar.SetServerHost(host)
	}
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std, token: conf.RollbarToken}
}

// Enable turns reporting to Rollbar on or off. Messages are always printed.
func (l RollbarLogger) Enable(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	rollbar.SetEnabled(enabled && l.token != "")
}

// expected fmt: msg | error, map[string]interface{}, session.Identity
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		var id *session.Identity
		switch v := arg.(type) {
		case session.Identity:
			id = &v
		case *session.Identity:
			id = v
		default:
			newArgs = append(newArgs, arg)
			continue
		}
		// set the logged in user
		if id != nil && !usrSet { // only set one person
			rollbar.SetPerson(strconv.Itoa(id.ID), id.Username, id.Email)
			usrSet = true
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l RollbarLogger) report(send func(...interface{}), msg string, args []interface{}) {
	mu.Lock()
	defer mu.Unlock()
	send(l.prepare(msg, args)...)
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.report(rollbar.Debug, msg, args)
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.report(rollbar.Info, msg, args)
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.Warning, msg, args)
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.Error, msg, args)
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.Critical, msg, args)
	l.print(msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
