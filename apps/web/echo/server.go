// Package echoweb is the web front-end: html views over the school API, served on a local address.
package echoweb

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/auth"
	"github.com/trezcool/edusys/core/guard"
	"github.com/trezcool/edusys/core/session"
	"github.com/trezcool/edusys/services/school"
)

const (
	loginPath = "/login"
	homePath  = "/home"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Auth           *auth.Controller
		School         *school.Client
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		guard    guard.Guard
		sessions session.Reader
		shutdown chan os.Signal
		errors   chan error

		mu     sync.Mutex
		notice string // shown once on the next login page
	}
)

func NewServer(deps ServerDeps) (*Server, error) {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		guard:    guard.New(loginPath),
		sessions: deps.Auth.Sessions(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	if err := s.setup(); err != nil {
		return nil, err
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	return s, nil
}

func (s *Server) setup() error {
	conf := s.deps.Conf

	r, err := newRenderer(conf.Debug || conf.TestMode())
	if err != nil {
		return errors.Wrap(err, "loading templates")
	}
	s.app.Renderer = r
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.sessions, s.newPage, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode()) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.Secure())

	s.deps.Auth.Sessions().Subscribe(s.onTransition)

	registerViews(s)
	return nil
}

// onTransition keeps a notice for the login page when the session was ended by the API.
func (s *Server) onTransition(t session.Transition) {
	if t.Cause == session.CauseForcedLogout {
		s.setNotice("Your session has expired. Please log in again.")
	}
}

func (s *Server) setNotice(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = msg
}

func (s *Server) popNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.notice
	s.notice = ""
	return msg
}

// Start listens on the configured address. Errors are reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Web.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
