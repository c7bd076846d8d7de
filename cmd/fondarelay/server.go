package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"fondarelay/internal/middleware"
	"fondarelay/internal/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg     *models.Config
	app     *app
	router  *mux.Router
	logger  *logrus.Logger
	baseCtx context.Context
	server  *http.Server
}

// NewServer builds the HTTP surface. baseCtx becomes the parent of every
// request context.
func NewServer(cfg *models.Config, a *app, logger *logrus.Logger, baseCtx context.Context) *Server {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	s := &Server{
		cfg:     cfg,
		app:     a,
		router:  mux.NewRouter(),
		logger:  logger,
		baseCtx: baseCtx,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/", s.handleHome()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)

	s.router.HandleFunc("/{slug}/relay", s.handleSecondHop()).Methods(http.MethodPost)
	s.router.HandleFunc("/{slug}", s.handleDeviceEvent()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
		BaseContext:  func(net.Listener) context.Context { return s.baseCtx },
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
