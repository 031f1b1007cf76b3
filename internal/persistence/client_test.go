package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openclaw/runtime/internal/executor"
)

func TestGetAgentConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/agents/coord" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(agentConfigWire{
			AgentID: "coord", SystemPrompt: "be helpful", Model: "gpt-5",
			ToolAllow: []string{"*"}, MaxTurns: 10, MaxSpawnDepth: 2,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	cfg, err := c.GetAgentConfig(context.Background(), "coord")
	if err != nil {
		t.Fatalf("GetAgentConfig: %v", err)
	}
	if cfg.AgentID != "coord" || cfg.Sandbox.MaxTurns != 10 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestCallTranslatesNotFoundToGRPCCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such run"))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	_, err := c.GetAgentConfig(context.Background(), "missing")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCallTranslatesBadRequestToInvalidArgument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad instruction"))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	_, err := c.CreateTask(context.Background(), "run-1", "", "sub", "", 0)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestRecordRunUsagePostsBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	err := c.RecordRunUsage(context.Background(), "run-1", "run", executor.Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3})
	if err != nil {
		t.Fatalf("RecordRunUsage: %v", err)
	}
	if got["scope"] != "run" || got["totalTokens"].(float64) != 3 {
		t.Fatalf("unexpected body: %v", got)
	}
}
