package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazelmeow/musicopy/internal/config"
	"github.com/hazelmeow/musicopy/internal/core"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	broadcaster := NewBroadcaster()
	c, err := core.NewCore(ctx, &config.Config{
		InMemory:         true,
		TranscodesDir:    filepath.Join(dir, "transcodes"),
		TranscodeWorkers: 1,
		ListenAddr:       "127.0.0.1:0",
		IdentityPath:     filepath.Join(dir, "identity.key"),
	}, broadcaster)
	if err != nil {
		t.Fatalf("core.NewCore: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		c.Shutdown(shutdownCtx)
	})

	return NewServer(c, broadcaster, "127.0.0.1:0")
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAddRootThenRescanReportsFiles(t *testing.T) {
	s := newTestServer(t)
	libDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(libDir, "track.mp3"), []byte("not really audio"), 0o644); err != nil {
		t.Fatalf("seed library file: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"name": "music", "path": libDir})
	req := httptest.NewRequest(http.MethodPost, "/roots", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from POST /roots, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/rescan", nil)
	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from POST /rescan, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status       string `json:"status"`
		FilesIndexed int    `json:"files_indexed"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
	if resp.FilesIndexed != 1 {
		t.Fatalf("expected files_indexed 1, got %d", resp.FilesIndexed)
	}
}

func TestAddRootRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"name": "music"})
	req := httptest.NewRequest(http.MethodPost, "/roots", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing path, got %d", rec.Code)
	}
}

func TestDownloadAllRejectsUnknownPeer(t *testing.T) {
	s := newTestServer(t)

	zeroNodeID := "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	body, _ := json.Marshal(map[string]string{"destination": t.TempDir()})
	req := httptest.NewRequest(http.MethodPost, "/peers/"+zeroNodeID+"/download", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("expected a non-200 status for a peer that isn't connected, got %d", rec.Code)
	}
}

func TestSecurityHeadersArePresent(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options: DENY, got %q", got)
	}
}
