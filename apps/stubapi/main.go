package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/trezcool/edusys/core"
	logsvc "github.com/trezcool/edusys/services/logger"
	"github.com/trezcool/edusys/tests/stubapi"
)

func main() {
	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "STUB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(false)

	server := stubapi.New(stubapi.Options{
		SecretKey:  conf.Stub.SecretKey,
		AccessTTL:  conf.Stub.AccessTTL,
		RefreshTTL: conf.Stub.RefreshTTL,
	})
	if err = stubapi.Seed(server); err != nil {
		logger.Fatal(fmt.Sprintf("seeding: %v", err), err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Serving http://%s%s (password of every seeded user: %q)", conf.Stub.Address, stubapi.Prefix, "password"))
		if err := server.Start(conf.Stub.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-serverErrors:
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		ctx, cancel := context.WithTimeout(context.Background(), conf.Web.ShutdownTimeout)
		defer cancel()
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}
