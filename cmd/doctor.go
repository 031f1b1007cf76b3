package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/openclaw/runtime/internal/config"
	"github.com/openclaw/runtime/internal/persistence/migrations"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity to the Runtime's collaborators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) error {
	ok := true

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("[FAIL] load config: %v\n", err)
		return err
	}
	fmt.Println("[ OK ] config loaded from environment")

	if cfg.RuntimeSecret == "" {
		fmt.Println("[WARN] RUNTIME_SECRET is not set — /channel-run and /runtime/plugins/sync will reject every request")
	} else {
		fmt.Println("[ OK ] RUNTIME_SECRET is set")
	}

	if cfg.LLMBaseURL == "" {
		fmt.Println("[WARN] LLM_BASE_URL is not set — no agent run will be able to reach a model")
	} else {
		fmt.Println("[ OK ] LLM_BASE_URL is set")
	}

	if cfg.GRPCAddr == "" {
		fmt.Println("[WARN] GRPC_ADDR is not set — PersistenceRPC calls will fail")
	} else if pingHTTP(ctx, "http://"+cfg.GRPCAddr) {
		fmt.Println("[ OK ] PersistenceRPC reachable at", cfg.GRPCAddr)
	} else {
		fmt.Println("[FAIL] PersistenceRPC not reachable at", cfg.GRPCAddr)
		ok = false
	}

	if cfg.GatewayAddr == "" {
		fmt.Println("[WARN] GATEWAY_ADDR is not set — web_search/knowledge_search tools will fail")
	} else if pingHTTP(ctx, "http://"+cfg.GatewayAddr) {
		fmt.Println("[ OK ] gateway reachable at", cfg.GatewayAddr)
	} else {
		fmt.Println("[FAIL] gateway not reachable at", cfg.GatewayAddr)
		ok = false
	}

	if cfg.PersistenceDSN == "" {
		fmt.Println("[WARN] PERSISTENCE_DSN is not set — skipping schema check")
	} else if status, err := checkSchema(cfg.PersistenceDSN); err != nil {
		fmt.Println("[FAIL] persistence schema check:", err)
		ok = false
	} else if status.Dirty {
		fmt.Printf("[FAIL] persistence schema is dirty at version %d\n", status.CurrentVersion)
		ok = false
	} else if status.NeedsMigration {
		fmt.Printf("[WARN] persistence schema needs migration (current %d, required %d) — run `runtime migrate up`\n", status.CurrentVersion, status.RequiredVersion)
	} else {
		fmt.Printf("[ OK ] persistence schema at version %d\n", status.CurrentVersion)
	}

	if !ok {
		return fmt.Errorf("doctor found unhealthy collaborators")
	}
	fmt.Println("all checks passed")
	return nil
}

func pingHTTP(ctx context.Context, baseURL string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func checkSchema(dsn string) (*migrations.Status, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer db.Close()
	return migrations.CheckStatus(db)
}
