package testutil

import (
	"log"
	"strings"
	"testing"

	"github.com/trezcool/edusys/core"
	logsvc "github.com/trezcool/edusys/services/logger"
)

type tbWriter struct {
	tb testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.tb.Helper()
	w.tb.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// NewLogger returns a logger printing to the test log, with Rollbar disabled.
func NewLogger(tb testing.TB) core.Logger {
	logger := logsvc.NewRollbarLogger(
		log.New(tbWriter{tb}, "TEST : ", log.Lmicroseconds|log.Lshortfile),
		&core.Config{Env: "TEST", AppName: "Edusys", Build: "test"},
	)
	logger.Enable(false)
	return logger
}

// NewConfig returns the config of the TEST environment pointing to baseURL.
func NewConfig(tb testing.TB, baseURL string) *core.Config {
	tb.Helper()
	tb.Setenv("ENV", "TEST")
	tb.Setenv("TEST_API_BASEURL", baseURL)
	conf, err := core.NewConfig()
	if err != nil {
		tb.Fatalf("NewConfig() failed: %v", err)
	}
	return conf
}
