package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/openclaw/runtime/internal/broker"
	"github.com/openclaw/runtime/internal/channelpipeline"
	"github.com/openclaw/runtime/internal/eventlog"
)

// handleChannelRun implements `POST /channel-run`: it hands the request
// straight to the Channel Pipeline and returns 202 immediately, per
// spec.md §6 — reply delivery happens asynchronously via the originating
// plugin's SendMessage.
func (s *Server) handleChannelRun(w http.ResponseWriter, r *http.Request) {
	var req channelpipeline.ChannelRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.pipeline.RunChannelRun(ctx, req); err != nil {
			slog.Error("gateway.channel_run_failed", "channelId", req.ChannelID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

type createRunRequest struct {
	SessionID            string `json:"sessionId"`
	UserRequest          string `json:"userRequest"`
	CoordinatorAgentID   string `json:"coordinatorAgentId"`
	IdempotencyKey       string `json:"idempotencyKey"`
	Fingerprint          string `json:"fingerprint"`
	ResumeFromMessageID  string `json:"resumeFromMessageId"`
	ResumeFromRunID      string `json:"resumeFromRunId"`
	ResumeMode           string `json:"resumeMode"`
}

// handleCreateRun implements `POST /runtime/ws/{wsId}/runs`: creates (or
// dedupes, via idempotencyKey) a run and starts the coordinator worker.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	wsID := r.PathValue("wsId")
	if wsID == "" {
		writeError(w, http.StatusBadRequest, "missing workspace id")
		return
	}

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.UserRequest == "" || req.CoordinatorAgentID == "" {
		writeError(w, http.StatusBadRequest, "missing required field")
		return
	}

	params := broker.RunParams{
		SessionID: req.SessionID, WorkspaceID: wsID, UserRequest: req.UserRequest,
		CoordinatorAgentID: req.CoordinatorAgentID, ResumeFromMessageID: req.ResumeFromMessageID,
		ResumeFromRunID: req.ResumeFromRunID, ResumeMode: req.ResumeMode,
	}

	runID, deduplicated, err := s.broker.CreateRuntimeRun(params, req.IdempotencyKey, req.Fingerprint, s.createRunID)
	if err != nil {
		if errors.Is(err, broker.ErrIdempotencyConflict) {
			writeError(w, http.StatusConflict, "idempotency key reused with different parameters")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !deduplicated {
		if err := s.broker.StartRun(runID, s.runStarter.Starter(context.WithoutCancel(r.Context()))); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "deduplicated": deduplicated})
}

// handleStream implements `GET /runtime/runs/{runId}/stream?cursor=`, an SSE
// endpoint grounded on other_examples' run_specific_sse.go
// enhancedRunEventsHandler: subscribe (with replay-from-cursor), send a
// connected frame, then forward events until a terminal event or client
// disconnect, writing a keepalive comment every 30 seconds meanwhile.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")

	cursor := uint64(0)
	if c := r.URL.Query().Get("cursor"); c != "" {
		parsed, err := strconv.ParseUint(c, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		cursor = parsed
	}

	sub, err := s.broker.Subscribe(runID, cursor)
	if err != nil {
		if errors.Is(err, broker.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer sub.Unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := fmt.Fprintf(w, "data: {\"type\":\"connected\",\"runId\":%q,\"lastSeq\":%d,\"truncated\":%t}\n\n",
		runID, sub.Snapshot.LastSeq, sub.Snapshot.Truncated); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case env, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", env.Seq, data); err != nil {
				return
			}
			flusher.Flush()

			switch env.Payload.(type) {
			case eventlog.Done, eventlog.Error:
				return
			}

		case <-keepalive.C:
			if _, err := io.WriteString(w, ":keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleCancel implements `POST /runtime/runs/{runId}/cancel`.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	ok, err := s.broker.Cancel(runID, body.Reason)
	if err != nil {
		if errors.Is(err, broker.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

type pluginSyncRequest struct {
	Action           string `json:"action"`
	InstalledPluginID string `json:"installedPluginId"`
	WorkspaceID      string `json:"workspaceId"`
	PluginID         string `json:"pluginId"`
	InstallPath      string `json:"installPath"`
}

// handlePluginSync implements `POST /runtime/plugins/sync`: applies a
// load/unload/reload action to the Tool Registry through the PluginSyncer,
// which serializes actions per installed plugin to avoid concurrent reloads
// racing.
func (s *Server) handlePluginSync(w http.ResponseWriter, r *http.Request) {
	var req pluginSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.InstalledPluginID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "missing required field")
		return
	}

	if s.pluginSync == nil {
		writeError(w, http.StatusNotImplemented, "plugin sync not configured")
		return
	}

	if err := s.pluginSync.Sync(r.Context(), req.InstalledPluginID, req.Action, req.PluginID, req.InstallPath); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
