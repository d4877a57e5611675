package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"handoff/internal/constants"
	"handoff/internal/middleware"
	"handoff/internal/models"
	"handoff/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	engine  *service.Engine
	advisor *service.Advisor
	cfg     *models.Config
	server  *http.Server
}

func NewServer(cfg *models.Config, engine *service.Engine, advisor *service.Advisor, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		engine:  engine,
		advisor: advisor,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	// Channel webhooks
	s.router.HandleFunc("/webhook/{channel}", s.handleWebhook()).Methods(http.MethodPost)

	// Operator action and query API
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/conversations", s.handleListConversations()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.handleGetConversation()).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.handleArchiveConversation()).Methods(http.MethodDelete)
	api.HandleFunc("/conversations/{id}/takeover", s.handleTakeover()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/handback", s.handleHandback()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/pause", s.handlePause()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/resume", s.handleResume()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/clear-attention", s.handleClearAttention()).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/handback-recommendation", s.handleHandbackRecommendation()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if port == 0 {
		port = constants.DefaultServerPort
	}

	readTimeout := s.cfg.Server.ReadTimeoutSec
	if readTimeout <= 0 {
		readTimeout = constants.DefaultServerReadTimeoutSec
	}
	writeTimeout := s.cfg.Server.WriteTimeoutSec
	if writeTimeout <= 0 {
		writeTimeout = constants.DefaultServerWriteTimeoutSec
	}
	idleTimeout := s.cfg.Server.IdleTimeoutSec
	if idleTimeout <= 0 {
		idleTimeout = constants.DefaultServerIdleTimeoutSec
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
		IdleTimeout:  time.Duration(idleTimeout) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	}
}
