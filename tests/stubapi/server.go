// Package stubapi is an in-memory stand-in for the school REST API.
// It issues the same cookie JWTs and serves the same payloads as the real backend,
// and exposes knobs to drive the client's session lifecycle in tests.
package stubapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
)

const Prefix = "/api/"

type (
	Options struct {
		SecretKey      string
		AccessTTL      time.Duration
		RefreshTTL     time.Duration
		DisableReqLogs bool
	}

	Server struct {
		app        *echo.Echo
		secretKey  []byte
		accessTTL  time.Duration
		refreshTTL time.Duration

		mu          sync.Mutex
		users       map[int]*User
		subjects    map[int]*Subject
		courses     map[int]*Course
		lastID      int
		generation  int
		failRefresh bool
		hits        map[string]int
	}
)

func New(opts Options) *Server {
	if opts.SecretKey == "" {
		opts.SecretKey = "stubapi-secret"
	}
	if opts.AccessTTL == 0 {
		opts.AccessTTL = time.Hour
	}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	s := &Server{
		app:        echo.New(),
		secretKey:  []byte(opts.SecretKey),
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		users:      make(map[int]*User),
		subjects:   make(map[int]*Subject),
		courses:    make(map[int]*Course),
		hits:       make(map[string]int),
	}
	s.setup(opts)
	return s
}

func (s *Server) setup(opts Options) {
	s.app.HideBanner = true
	s.app.HidePort = true

	s.app.Pre(s.countHits)
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))

	api := s.app.Group(strings.TrimSuffix(Prefix, "/"))

	// un-authed endpoints
	api.POST("/token", s.login)
	api.POST("/token/refresh", s.refresh)
	api.POST("/logout", s.logout)

	// authed endpoints
	api.GET("/get-user-login", s.userLogin, s.authMiddleware(errNotAuthenticated))

	ag := api.Group("", s.authMiddleware(errTokenNotValid))
	ag.GET("/get-user-profile/:id", s.userProfile)
	ag.GET("/courses/get-courses", s.courseList)
	ag.GET("/courses-detailed/:id", s.courseDetail)
	ag.GET("/course-announcements/:id", s.courseAnnouncements)
	ag.GET("/student-grades", s.studentGrades)
	ag.POST("/create-course", s.createCourse)
}

func (s *Server) Start(address string) error {
	return s.app.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) countHits(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		path := strings.TrimPrefix(ctx.Request().URL.Path, Prefix)
		s.mu.Lock()
		s.hits[path]++
		s.mu.Unlock()
		return next(ctx)
	}
}

// Hits returns the number of requests received on path, relative to Prefix (e.g. "token/refresh/").
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) ResetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = make(map[string]int)
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// FailRefresh makes `token/refresh/` reject every refresh token.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}
