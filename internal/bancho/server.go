// Package bancho is the HTTP surface of the server (§6): the status page on
// GET / and the polled bancho endpoint on POST /, which doubles as the login
// endpoint when no osu-token header is present.
package bancho

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/opsu/bancho/internal/dispatch"
	"github.com/opsu/bancho/internal/lifecycle"
	"github.com/opsu/bancho/internal/metrics"
)

// Header names of the bancho HTTP contract (§6).
const (
	HeaderOsuToken    = "osu-token"
	HeaderChoToken    = "cho-token"
	HeaderChoProtocol = "cho-protocol"
)

// cho-token values reported on login failure (§6).
const (
	tokenLoginRefused = "login_refused"
	tokenLoginFailed  = "login_failed"
)

// Server is the Echo application serving the bancho endpoint family.
type Server struct {
	echo       *echo.Echo
	lc         *lifecycle.Lifecycle
	dispatcher *dispatch.Dispatcher
	services   *dispatch.Services
	metrics    *metrics.Collector
	log        *slog.Logger
	started    time.Time
}

// New constructs the Echo app with the bancho routes registered. metrics may
// be nil; the /metrics route is only mounted when a collector is supplied.
func New(lc *lifecycle.Lifecycle, d *dispatch.Dispatcher, svc *dispatch.Services, mc *metrics.Collector, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		echo:       e,
		lc:         lc,
		dispatcher: d,
		services:   svc,
		metrics:    mc,
		log:        log.With("component", "bancho"),
		started:    time.Now(),
	}
	s.registerRoutes()
	return s
}

// requestLogger returns Echo middleware that logs each HTTP request via slog.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			// The poll endpoint fires every second per client; keep it at
			// debug so info-level logs stay readable.
			if req.Method == http.MethodPost && req.URL.Path == "/" {
				slog.Debug("http request",
					"method", req.Method,
					"path", req.URL.Path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			} else {
				slog.Info("http request",
					"method", req.Method,
					"path", req.URL.Path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote", c.RealIP(),
				)
			}
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleStatus)
	s.echo.POST("/", s.handleBancho)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		s.log.Info("http server stopped")
		return nil
	}
}

// handleStatus serves the static HTML status page on GET / (§6).
func (s *Server) handleStatus(c echo.Context) error {
	uptime := time.Since(s.started).Round(time.Second)
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>bancho</title></head>
<body>
<h1>bancho</h1>
<p>players online: %d</p>
<p>uptime: %s</p>
</body>
</html>
`, s.lc.Sessions.Len(), uptime)
	return c.HTML(http.StatusOK, page)
}
