// Package echoapi is the planner API: authentication under /auth/v1 and the owner-scoped tables
// under /rest/v1.
package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/auth"
	"github.com/trezcool/studyplanner/core/records"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Debug          bool
		// AnonKey must be sent by clients in the apikey header.
		AnonKey string
		// SiteURL is where redirect based flows land when the client names no redirect_to.
		SiteURL        string
		AuthSvc        *auth.Service
		RecordSvc      *records.Service
		Logger         core.Logger
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !s.opts.Debug {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.SignalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", home)

	key := apiKeyMiddleware(s.opts.AnonKey)
	jwt := middleware.JWTWithConfig(newJWTConfig(s.opts.AuthSvc))

	registerAuthAPI(s.app.Group("/auth/v1"), key, jwt, s.opts.AuthSvc, s.opts.SiteURL)
	registerRecordAPI(s.app.Group("/rest/v1", key, jwt), s.opts.RecordSvc)
}

func (s *server) Start() {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		s.app.Logger.Fatal(err)
	}
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Study Planner API!")
}
