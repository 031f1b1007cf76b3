package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openclaw/runtime/internal/broker"
	"github.com/openclaw/runtime/internal/channelpipeline"
	"github.com/openclaw/runtime/internal/channels/discord"
	"github.com/openclaw/runtime/internal/channels/telegram"
	"github.com/openclaw/runtime/internal/channels/webchat"
	"github.com/openclaw/runtime/internal/config"
	"github.com/openclaw/runtime/internal/executor"
	"github.com/openclaw/runtime/internal/gateway"
	"github.com/openclaw/runtime/internal/llmadapter"
	"github.com/openclaw/runtime/internal/persistence"
	"github.com/openclaw/runtime/internal/providers"
	"github.com/openclaw/runtime/internal/tools"
	"github.com/openclaw/runtime/internal/toolregistry"
	"github.com/openclaw/runtime/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Runtime's HTTP/SSE gateway and Run Broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	tracer, shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	persist := persistence.New("http://"+cfg.GRPCAddr, nil)

	llmProvider := providers.NewOpenAIProvider("openclaw-llm", cfg.LLMAPIKey, cfg.LLMBaseURL, "")
	llmStream := llmadapter.New(llmProvider)

	registry := toolregistry.New()
	registry.RegisterBuiltin(tools.NewFSReadTool())
	registry.RegisterBuiltin(tools.NewFSWriteTool())
	registry.RegisterBuiltin(tools.NewGatewayWebSearchTool(cfg.GatewayAddr))
	registry.RegisterBuiltin(tools.NewGatewayKnowledgeSearchTool(cfg.GatewayAddr))

	pluginHost := tools.NewMCPPluginHost("")
	defer func() { _ = pluginHost.Close() }()

	guardCfg := toolregistry.GuardConfig{
		MaxConcurrency:   cfg.Guard.MaxConcurrencyPerPlugin,
		QueueTimeout:     cfg.Guard.QueueTimeout,
		ExecutionTimeout: cfg.Guard.ExecutionTimeout,
		FailureThreshold: cfg.Guard.FailureThreshold,
		FailureCooldown:  cfg.Guard.FailureCooldown,
	}
	guard := toolregistry.NewGuard(guardCfg)

	loop := executor.New(registry, guard, persist, llmStream, tracer)

	b := broker.New(
		broker.WithRingSize(cfg.RunEventBufferSize),
		broker.WithRunRetention(cfg.RunRetention),
		broker.WithCleanupInterval(cfg.RunStoreCleanupInterval),
		broker.WithIdempotencyTTL(cfg.RunIdempotencyTTL),
	)
	defer b.Close()

	createRunID := func() (string, error) { return broker.NewRunID(), nil }

	pipeline := channelpipeline.New(b, loop, createRunID)
	pipeline.RegisterPlugin("discord", discord.New())
	pipeline.RegisterPlugin("telegram", telegram.New())
	pipeline.RegisterPlugin("webchat", webchat.New())

	pluginSync := gateway.NewRegistrySync(registry, gateway.ManifestLoader(pluginHost))

	server := gateway.NewServer(b, pipeline, loop, createRunID, pluginSync, cfg.RuntimeSecret, nil)

	httpServer := &http.Server{
		Addr:    portAddr(cfg.RuntimePort),
		Handler: server.BuildMux(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("runtime.listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		slog.Info("runtime.shutting_down")
		return httpServer.Shutdown(context.Background())
	}
}

func portAddr(port int) string {
	if port == 0 {
		port = 8082
	}
	return ":" + strconv.Itoa(port)
}
