package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	GracefulShutdownTimeout = 10 * time.Second
)

type Server struct {
	Echo *echo.Echo

	port   string
	logger *zap.Logger
}

// NewServer returns an echo server with request logging, panic recovery and
// the error handler installed.
func NewServer(port string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Echo:   e,
		port:   port,
		logger: logger,
	}

	s.setupMiddlewares()
	s.Echo.HTTPErrorHandler = ErrorHandler(logger)

	return s
}

func (s *Server) setupMiddlewares() {
	s.Echo.Use(RequestLogger(s.logger))
	s.Echo.Use(middleware.Recover())
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("port", s.port))
		if err := s.Echo.Start(":" + s.port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
	defer cancel()

	return s.Echo.Shutdown(ctx)
}
