package broker

import (
	"errors"
	"testing"
	"time"

	"github.com/openclaw/runtime/internal/eventlog"
)

func newTestBroker() *Broker {
	return New(WithCleanupInterval(MinCleanupInterval))
}

func createRun(t *testing.T, b *Broker) string {
	t.Helper()
	var counter int
	runID, _, err := b.CreateRuntimeRun(RunParams{SessionID: "s1"}, "", "", func() (string, error) {
		counter++
		return NewRunID(), nil
	})
	if err != nil {
		t.Fatalf("CreateRuntimeRun: %v", err)
	}
	return runID
}

func TestHappyPathSSE(t *testing.T) {
	b := newTestBroker()
	defer b.Close()
	runID := createRun(t, b)

	sub, err := b.Subscribe(runID, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	err = b.StartRun(runID, func(runID string, params RunParams, emit EmitFunc) error {
		emit(eventlog.MessageStart{MessageID: "m1"})
		emit(eventlog.TextDelta{Text: "hello", Delta: "hello"})
		emit(eventlog.MessageEnd{MessageID: "m1"})
		return nil
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	var seqs []uint64
	timeout := time.After(2 * time.Second)
	for len(seqs) < 4 {
		select {
		case env, ok := <-sub.Events:
			if !ok {
				t.Fatalf("channel closed early after %d events", len(seqs))
			}
			seqs = append(seqs, env.Seq)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d", len(seqs))
		}
	}
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Fatalf("expected seq %d at index %d, got %d", i+1, i, s)
		}
	}

	snap, err := b.GetSnapshot(runID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap.LastSeq != 4 || snap.State != StateCompleted || !snap.Terminal {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestLateJoiningSubscriberReplaysFromCursor(t *testing.T) {
	b := newTestBroker()
	defer b.Close()
	runID := createRun(t, b)

	started := make(chan struct{})
	proceed := make(chan struct{})
	err := b.StartRun(runID, func(runID string, params RunParams, emit EmitFunc) error {
		emit(eventlog.MessageStart{MessageID: "m1"})
		emit(eventlog.TextDelta{Text: "a", Delta: "a"})
		emit(eventlog.TextDelta{Text: "ab", Delta: "b"})
		close(started)
		<-proceed
		emit(eventlog.MessageEnd{MessageID: "m1"})
		return nil
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	<-started

	sub, err := b.Subscribe(runID, 1)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	close(proceed)

	var got []uint64
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case env := <-sub.Events:
			got = append(got, env.Seq)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	want := []uint64{2, 3, 4}
	for i, s := range got {
		if s != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestIdempotentCreate(t *testing.T) {
	b := newTestBroker()
	defer b.Close()

	create := func() (string, error) { return NewRunID(), nil }
	runID1, dedup1, err := b.CreateRuntimeRun(RunParams{WorkspaceID: "w"}, "K", "fp-B", create)
	if err != nil || dedup1 {
		t.Fatalf("first create: runID=%s dedup=%v err=%v", runID1, dedup1, err)
	}

	runID2, dedup2, err := b.CreateRuntimeRun(RunParams{WorkspaceID: "w"}, "K", "fp-B", create)
	if err != nil || !dedup2 || runID2 != runID1 {
		t.Fatalf("second create: runID=%s dedup=%v err=%v (want dedup on %s)", runID2, dedup2, err, runID1)
	}

	_, _, err = b.CreateRuntimeRun(RunParams{WorkspaceID: "w"}, "K", "fp-other", create)
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestCancellationRace(t *testing.T) {
	b := newTestBroker()
	defer b.Close()
	runID := createRun(t, b)

	blockTool := make(chan struct{})
	err := b.StartRun(runID, func(runID string, params RunParams, emit EmitFunc) error {
		emit(eventlog.MessageStart{MessageID: "m1"})
		<-blockTool
		emit(eventlog.MessageEnd{MessageID: "m1"})
		return nil
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	sub, err := b.Subscribe(runID, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	<-sub.Events // message-start

	cancelled, err := b.Cancel(runID, "")
	if err != nil || !cancelled {
		t.Fatalf("Cancel: cancelled=%v err=%v", cancelled, err)
	}
	close(blockTool)

	env := <-sub.Events
	errEvt, ok := env.Payload.(eventlog.Error)
	if !ok || errEvt.Message != "Run cancelled by user" {
		t.Fatalf("expected cancellation error event, got %#v", env.Payload)
	}
	env = <-sub.Events
	if _, ok := env.Payload.(eventlog.Done); !ok {
		t.Fatalf("expected done event, got %#v", env.Payload)
	}

	snap, err := b.GetSnapshot(runID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap.State != StateCancelled {
		t.Fatalf("expected cancelled state, got %s", snap.State)
	}
}

func TestWorkerErrorSynthesizesErrorAndDone(t *testing.T) {
	b := newTestBroker()
	defer b.Close()
	runID := createRun(t, b)

	sub, err := b.Subscribe(runID, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	err = b.StartRun(runID, func(runID string, params RunParams, emit EmitFunc) error {
		return errors.New("boom")
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	env := <-sub.Events
	errEvt, ok := env.Payload.(eventlog.Error)
	if !ok || errEvt.Message != "boom" {
		t.Fatalf("expected synthetic error event, got %#v", env.Payload)
	}
	env = <-sub.Events
	if _, ok := env.Payload.(eventlog.Done); !ok {
		t.Fatalf("expected done event, got %#v", env.Payload)
	}

	snap, _ := b.GetSnapshot(runID)
	if snap.State != StateFailed {
		t.Fatalf("expected failed state, got %s", snap.State)
	}
}

func TestEmitIsNoOpAfterTerminal(t *testing.T) {
	b := newTestBroker()
	defer b.Close()
	runID := createRun(t, b)
	_ = b.StartRun(runID, func(runID string, params RunParams, emit EmitFunc) error {
		emit(eventlog.Done{})
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	if err := b.Emit(runID, eventlog.TextDelta{Text: "late"}); err != nil {
		t.Fatalf("Emit after terminal should be a no-op, not error: %v", err)
	}
	snap, _ := b.GetSnapshot(runID)
	if snap.LastSeq != 1 {
		t.Fatalf("expected no new events admitted after terminal, lastSeq=%d", snap.LastSeq)
	}
}

func TestSubscribeUnknownRun(t *testing.T) {
	b := newTestBroker()
	defer b.Close()
	if _, err := b.Subscribe("nope", 0); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestSubscribeAtLastSeqReplaysNothing(t *testing.T) {
	b := newTestBroker()
	defer b.Close()
	runID := createRun(t, b)
	done := make(chan struct{})
	_ = b.StartRun(runID, func(runID string, params RunParams, emit EmitFunc) error {
		emit(eventlog.MessageStart{MessageID: "m1"})
		emit(eventlog.MessageEnd{MessageID: "m1"})
		close(done)
		return nil
	})
	<-done
	time.Sleep(20 * time.Millisecond)

	snap, _ := b.GetSnapshot(runID)
	sub, err := b.Subscribe(runID, snap.LastSeq)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	select {
	case env := <-sub.Events:
		t.Fatalf("expected no replay at cursor=lastSeq, got %#v", env)
	case <-time.After(50 * time.Millisecond):
	}
}
