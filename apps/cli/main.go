package main

import (
	"io"
	"log"
	"os"

	"github.com/pterm/pterm"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/auth"
	"github.com/trezcool/edusys/core/session"
	"github.com/trezcool/edusys/services/gateway"
	logsvc "github.com/trezcool/edusys/services/logger"
	"github.com/trezcool/edusys/services/school"
	"github.com/trezcool/edusys/storage/cookiejar"
)

func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	// logs only reach the terminal in debug mode
	logOut := io.Discard
	if conf.Debug {
		logOut = os.Stderr
	}
	logger := logsvc.NewRollbarLogger(
		log.New(logOut, "CLI : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	jar, err := cookiejar.Open(core.ExpandHome(conf.CLI.CookieJar))
	errAndDie(err)

	gw, err := gateway.New(conf.API.BaseURL, logger, gateway.WithTimeout(conf.API.Timeout), gateway.WithJar(jar))
	errAndDie(err)

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	ctrl := auth.NewController(session.NewStore(), gw, validate, translator, logger)

	cli := newCommandLine(ctrl, school.NewClient(gw, validate, translator))
	if err = cli.rootCmd().Execute(); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		os.Exit(1)
	}
	if err = jar.Err(); err != nil {
		pterm.Warning.WithWriter(os.Stderr).Printfln("the session could not be saved: %v", err)
	}
}

func errAndDie(err error) {
	if err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		os.Exit(1)
	}
}
