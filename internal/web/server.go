// Package web exposes the dashboard over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"invoicedash/internal/auth"
	"invoicedash/internal/dashboard"
	"invoicedash/internal/logger"
)

type Server struct {
	router    *gin.Engine
	dashboard *dashboard.Service
	auth      *auth.Service
	metrics   *Metrics
	log       logger.Logger
}

func NewServer(dash *dashboard.Service, authSvc *auth.Service, metrics *Metrics, log logger.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		dashboard: dash,
		auth:      authSvc,
		metrics:   metrics,
		log:       log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(s.log))
	router.Use(s.metrics.Middleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
	})
	router.GET("/metrics", s.metrics.Handler())

	router.GET("/auth/login", s.auth.Login)
	router.GET("/auth/callback", s.auth.Callback)
	router.POST("/auth/logout", s.auth.Logout)

	api := router.Group("/api", s.auth.RequireUser())
	api.GET("/me", s.auth.Me)
	api.GET("/invoices", s.listInvoices)
	api.GET("/invoices/:id", s.getInvoice)
	api.POST("/invoices/:id/summary", s.summarizeInvoice)
	api.GET("/stats", s.stats)
	api.GET("/errors", s.listErrors)
	api.GET("/errors/:id", s.getError)
	api.GET("/errors/:id/pdf", s.errorPDF)
	api.POST("/errors/:id/correct", s.correctError)
	api.GET("/export.xlsx", s.exportXLSX)

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
