// Package api is the control-plane HTTP layer fronting internal/core's
// command surface, per spec.md §6 and SPEC_FULL.md §4.9. Grounded on the
// teacher's internal/radio/handler/*.go + middleware.go — a gin-gonic
// handler-per-command layout that existed in the teacher repo but was
// never wired into its own main.go (which shipped the plain net/http
// server.go instead); that unwired gin surface is what this package
// promotes to a live dependency.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hazelmeow/musicopy/internal/core"
)

// Server is the HTTP control plane: one JSON endpoint per core.Core
// command, plus a Server-Sent-Events endpoint relaying model snapshots.
type Server struct {
	core        *core.Core
	broadcaster *Broadcaster
	httpServer  *http.Server
}

// NewServer builds the gin engine and registers every route. addr is the
// address the control API listens on (MUSICOPY_HTTP_ADDR).
func NewServer(c *core.Core, broadcaster *Broadcaster, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), securityHeaders())

	s := &Server{core: c, broadcaster: broadcaster}
	s.registerRoutes(engine)

	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        engine,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   0, // no timeout: /events streams indefinitely
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

func (s *Server) registerRoutes(engine *gin.Engine) {
	engine.GET("/health", s.health)

	engine.POST("/roots", s.addRoot)
	engine.DELETE("/roots/:name", s.removeRoot)
	engine.POST("/rescan", s.rescan)
	engine.POST("/reset", s.reset)

	engine.POST("/peers/:node_id/accept", s.acceptPeer)
	engine.POST("/peers/:node_id/connect", s.connectPeer)
	engine.POST("/peers/:node_id/download", s.downloadAll)

	engine.POST("/shutdown", s.shutdown)

	engine.GET("/events", s.events)
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// within a bounded deadline, matching the teacher's server.go Start.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: http server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
