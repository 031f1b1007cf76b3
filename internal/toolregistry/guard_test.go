package toolregistry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuardSuccessResetsStreak(t *testing.T) {
	g := NewGuard(DefaultGuardConfig())
	res := g.Invoke(context.Background(), "p1", "t1", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if res.Error != "" || res.Output != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGuardExecutionTimeout(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.ExecutionTimeout = 20 * time.Millisecond
	g := NewGuard(cfg)
	res := g.Invoke(context.Background(), "p1", "slow", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if res.ErrorCode != ErrCodeExecutionTimeout {
		t.Fatalf("expected execution timeout, got %+v", res)
	}
}

func TestGuardCooldownAfterFailureThreshold(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.FailureThreshold = 2
	cfg.FailureCooldown = time.Minute
	g := NewGuard(cfg)
	for i := 0; i < 2; i++ {
		res := g.Invoke(context.Background(), "p1", "t1", func(ctx context.Context) (string, error) {
			return "", errors.New("boom")
		})
		if res.ErrorCode != ErrCodeExecutionError {
			t.Fatalf("expected execution error on attempt %d, got %+v", i, res)
		}
	}
	res := g.Invoke(context.Background(), "p1", "t1", func(ctx context.Context) (string, error) {
		t.Fatal("fn should not run while cooldown is active")
		return "", nil
	})
	if res.ErrorCode != ErrCodeCooldownActive {
		t.Fatalf("expected cooldown active, got %+v", res)
	}
}

func TestGuardQueueTimeout(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.MaxConcurrency = 1
	cfg.QueueTimeout = 20 * time.Millisecond
	cfg.ExecutionTimeout = time.Second
	g := NewGuard(cfg)

	blocker := make(chan struct{})
	done := make(chan GuardResult, 1)
	go func() {
		done <- g.Invoke(context.Background(), "p1", "hold", func(ctx context.Context) (string, error) {
			<-blocker
			return "ok", nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // let the first call take the slot

	res := g.Invoke(context.Background(), "p1", "t2", func(ctx context.Context) (string, error) {
		t.Fatal("second call should not run; queue should time out first")
		return "", nil
	})
	if res.ErrorCode != ErrCodeQueueTimeout {
		t.Fatalf("expected queue timeout, got %+v", res)
	}
	close(blocker)
	<-done
}
