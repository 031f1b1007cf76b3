// Package gateway implements the Runtime HTTP surface from spec.md §6:
// health check, interactive run creation, SSE event streaming with
// replay-from-cursor, cancellation, channel-run webhook ingress, and plugin
// sync. Route registration and the WebSocket `/ws` control endpoint are
// grounded on the teacher's internal/gateway/server.go's `BuildMux`/
// `checkOrigin` pattern; the SSE handler is grounded on
// other_examples/.../run_specific_sse.go's `enhancedRunEventsHandler`
// (subscribe → initial connected frame → forward-until-done loop).
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/openclaw/runtime/internal/broker"
	"github.com/openclaw/runtime/internal/channelpipeline"
)

// RunStarter is the slice of executor.Loop the gateway needs to drive an
// interactive run, mirroring channelpipeline.RunStarter.
type RunStarter interface {
	Starter(ctx context.Context) broker.StarterFunc
}

// Server is the Runtime's HTTP/SSE surface. One Server owns one Broker.
type Server struct {
	broker         *broker.Broker
	pipeline       *channelpipeline.Pipeline
	runStarter     RunStarter
	createRunID    broker.CreateFunc
	pluginSync     PluginSyncer
	runtimeSecret  string
	allowedOrigins []string

	mux *http.ServeMux
}

func NewServer(b *broker.Broker, pipeline *channelpipeline.Pipeline, runStarter RunStarter, createRunID broker.CreateFunc, pluginSync PluginSyncer, runtimeSecret string, allowedOrigins []string) *Server {
	return &Server{
		broker: b, pipeline: pipeline, runStarter: runStarter, createRunID: createRunID,
		pluginSync: pluginSync, runtimeSecret: runtimeSecret, allowedOrigins: allowedOrigins,
	}
}

// BuildMux creates and caches the HTTP mux with all routes registered; later
// calls return the cached mux.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /channel-run", s.requireRuntimeSecret(s.handleChannelRun))
	mux.HandleFunc("POST /runtime/ws/{wsId}/runs", s.handleCreateRun)
	mux.HandleFunc("GET /runtime/runs/{runId}/stream", s.handleStream)
	mux.HandleFunc("POST /runtime/runs/{runId}/cancel", s.handleCancel)
	mux.HandleFunc("POST /runtime/plugins/sync", s.requireRuntimeSecret(s.handlePluginSync))
	mux.HandleFunc("/ws", s.handleControlSocket)

	s.mux = mux
	return mux
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range s.allowedOrigins {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("gateway.cors_rejected", "origin", origin)
	return false
}

func (s *Server) requireRuntimeSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Runtime-Secret") != s.runtimeSecret {
			writeError(w, http.StatusUnauthorized, "bad runtime secret")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleControlSocket is the `/ws` endpoint: a lightweight bidirectional
// channel for future control-plane traffic (plugin-sync notifications,
// presence). It currently only echoes a connected frame and waits for
// client close, matching the teacher's minimal-viable `/ws` shape before
// method dispatch was layered on.
func (s *Server) handleControlSocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		return
	}
	defer c.CloseNow()

	ctx := r.Context()
	_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"connected"}`))
	for {
		if _, _, err := c.Read(ctx); err != nil {
			_ = c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
