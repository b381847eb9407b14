package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hazelmeow/musicopy/internal/catalog"
	"github.com/hazelmeow/musicopy/internal/errs"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps an error's errs.Kind to an HTTP status, per spec.md §7's
// error taxonomy. Errors without a Kind (plain Go errors from e.g.
// identity.ParseNodeID) fall back to 400, since every caller here is
// parsing untrusted request input.
func statusFor(err error) int {
	if errors.Is(err, catalog.ErrConflict) {
		return http.StatusConflict
	}

	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.KindIO, errs.KindPersistence:
			return http.StatusInternalServerError
		case errs.KindNetwork, errs.KindProtocol:
			return http.StatusBadGateway
		case errs.KindAdmission:
			return http.StatusForbidden
		case errs.KindNotReady:
			return http.StatusServiceUnavailable
		case errs.KindCancelled:
			return http.StatusRequestTimeout
		default:
			return http.StatusBadRequest
		}
	}
	return http.StatusBadRequest
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"status": "error", "error": err.Error()})
}

// --- Roots ---

func (s *Server) addRoot(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}
	if body.Name == "" || body.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "name and path are required"})
		return
	}

	if err := s.core.AddRoot(c.Request.Context(), body.Name, body.Path); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

func (s *Server) removeRoot(c *gin.Context) {
	name := c.Param("name")
	if err := s.core.RemoveRoot(c.Request.Context(), name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Library ---

func (s *Server) rescan(c *gin.Context) {
	result, err := s.core.RescanLibrary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	errStrings := make(map[string]string, len(result.Errors))
	for path, e := range result.Errors {
		errStrings[path] = e.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"files_indexed": result.FilesIndexed,
		"errors":        errStrings,
	})
}

func (s *Server) reset(c *gin.Context) {
	if err := s.core.ResetDatabase(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Peers ---

func (s *Server) acceptPeer(c *gin.Context) {
	nodeID := c.Param("node_id")
	if err := s.core.AcceptConnection(nodeID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) connectPeer(c *gin.Context) {
	nodeID := c.Param("node_id")

	var body struct {
		Addr string `json:"addr"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Addr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "addr is required"})
		return
	}

	if err := s.core.Connect(c.Request.Context(), nodeID, body.Addr); err != nil {
		writeError(c, err)
		return
	}
	// Connect is async (spec.md §6): success here just means the dial was
	// scheduled, not that the peer is Active yet.
	c.JSON(http.StatusAccepted, gin.H{"status": "pending"})
}

func (s *Server) downloadAll(c *gin.Context) {
	nodeID := c.Param("node_id")

	var body struct {
		Destination string `json:"destination"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Destination == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "destination is required"})
		return
	}

	if err := s.core.DownloadAll(c.Request.Context(), nodeID, body.Destination); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Lifecycle ---

func (s *Server) shutdown(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.core.Shutdown(shutdownCtx)
	}()
}

// --- Events ---

// events streams model snapshots as Server-Sent Events, replacing the
// teacher's stream.go audio Broadcaster with a model-snapshot one
// (spec.md §3, SPEC_FULL.md §4.9).
func (s *Server) events(c *gin.Context) {
	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-store")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case m, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent("model", m)
			return true
		}
	})
}
