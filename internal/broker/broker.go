package broker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/runtime/internal/eventlog"
)

const (
	DefaultIdempotencyTTL   = 10 * time.Minute
	MinIdempotencyTTL       = 10 * time.Second
	DefaultRunRetention     = 30 * time.Minute
	MinRunRetention         = 60 * time.Second
	DefaultCleanupInterval  = 30 * time.Second
	MinCleanupInterval      = 10 * time.Second
)

// Broker owns the map of Run Entries and the idempotency map. It is safe
// for concurrent use.
type Broker struct {
	mapMu sync.RWMutex
	runs  map[string]*Run

	idemMu      sync.Mutex
	idempotency map[string]*idempotencyEntry

	ringSize        int
	idempotencyTTL  time.Duration
	runRetention    time.Duration
	cleanupInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Broker at construction, following the functional-
// options pattern used by internal/mcp.Manager.
type Option func(*Broker)

func WithRingSize(n int) Option          { return func(b *Broker) { b.ringSize = eventlog.ClampRingSize(n) } }
func WithIdempotencyTTL(d time.Duration) Option {
	return func(b *Broker) {
		if d < MinIdempotencyTTL {
			d = MinIdempotencyTTL
		}
		b.idempotencyTTL = d
	}
}
func WithRunRetention(d time.Duration) Option {
	return func(b *Broker) {
		if d < MinRunRetention {
			d = MinRunRetention
		}
		b.runRetention = d
	}
}
func WithCleanupInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d < MinCleanupInterval {
			d = MinCleanupInterval
		}
		b.cleanupInterval = d
	}
}

func New(opts ...Option) *Broker {
	b := &Broker{
		runs:            make(map[string]*Run),
		idempotency:     make(map[string]*idempotencyEntry),
		ringSize:        eventlog.DefaultRingSize,
		idempotencyTTL:  DefaultIdempotencyTTL,
		runRetention:    DefaultRunRetention,
		cleanupInterval: DefaultCleanupInterval,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.wg.Add(1)
	go b.sweepLoop()
	return b
}

// Close stops the background sweeper and returns once it has exited.
func (b *Broker) Close() {
	select {
	case <-b.stopCh:
		// already closed
	default:
		close(b.stopCh)
	}
	b.wg.Wait()
}

// CreateRuntimeRun creates or dedupes a run. If idempotencyKey is non-empty
// and a live entry exists for it: a matching fingerprint returns the cached
// runId with deduplicated=true; a differing fingerprint returns
// ErrIdempotencyConflict. Otherwise createFn is invoked to persist the
// canonical row, and a new queued Run Entry is registered (and, if a key
// was supplied, recorded in the idempotency map).
func (b *Broker) CreateRuntimeRun(params RunParams, idempotencyKey, fingerprint string, createFn CreateFunc) (runID string, deduplicated bool, err error) {
	key := idempotencyMapKey(params.WorkspaceID, idempotencyKey)
	if idempotencyKey != "" {
		b.idemMu.Lock()
		if entry, ok := b.idempotency[key]; ok && time.Since(entry.createdAt) < b.idempotencyTTL {
			defer b.idemMu.Unlock()
			if entry.fingerprint != fingerprint {
				return "", false, ErrIdempotencyConflict
			}
			return entry.runID, true, nil
		}
		b.idemMu.Unlock()
	}

	runID, err = createFn()
	if err != nil {
		return "", false, err
	}

	run := newRun(runID, params, b.ringSize)
	b.mapMu.Lock()
	b.runs[runID] = run
	b.mapMu.Unlock()

	if idempotencyKey != "" {
		b.idemMu.Lock()
		b.idempotency[key] = &idempotencyEntry{runID: runID, fingerprint: fingerprint, createdAt: time.Now()}
		b.idemMu.Unlock()
	}
	return runID, false, nil
}

func idempotencyMapKey(workspaceID, clientKey string) string {
	return fmt.Sprintf("%s:%s", workspaceID, clientKey)
}

// StartRun transitions a run from queued to running exactly once and spawns
// its background worker. A second call on an already-started run is a
// no-op. If starterFn returns an error before the run has admitted a
// terminal event, the broker synthesizes error+done.
func (b *Broker) StartRun(runID string, starterFn StarterFunc) error {
	run, err := b.lookup(runID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	if run.started {
		run.mu.Unlock()
		return nil
	}
	run.started = true
	run.State = StateRunning
	run.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				b.terminateIfNotAlready(run, fmt.Errorf("panic: %v", rec))
			}
		}()
		emit := func(e eventlog.Event) { b.Emit(runID, e) }
		workerErr := starterFn(runID, run.Params, emit)
		b.terminateIfNotAlready(run, workerErr)
	}()
	return nil
}

// terminateIfNotAlready admits a synthetic error (if err != nil) and a done
// event, unless the run already reached a terminal state on its own.
func (b *Broker) terminateIfNotAlready(run *Run, err error) {
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.Terminal {
		return
	}
	if err != nil {
		run.admitLocked(eventlog.Error{Message: err.Error()})
	}
	if !run.Terminal {
		run.admitLocked(eventlog.Done{})
	}
}

// Subscribe attaches to a run, replaying buffered events with seq > cursor
// before switching to live delivery. Returns ErrRunNotFound for an unknown
// run.
func (b *Broker) Subscribe(runID string, cursor uint64) (*Subscription, error) {
	run, err := b.lookup(runID)
	if err != nil {
		return nil, err
	}

	run.mu.Lock()
	replay := run.ring.Since(cursor)
	snap := run.snapshotLocked()
	oldest := run.ring.OldestSeq()
	snap.Truncated = oldest > 0 && cursor+1 < oldest
	run.nextSubID++
	sub := newSubscriber(run.nextSubID)
	run.subs[sub.id] = sub
	run.mu.Unlock()

	go sub.pump(replay)

	unsubscribe := func() {
		run.mu.Lock()
		delete(run.subs, sub.id)
		run.mu.Unlock()
		select {
		case <-sub.done:
		default:
			close(sub.done)
		}
	}

	return &Subscription{Events: sub.out, Snapshot: snap, Unsubscribe: unsubscribe}, nil
}

// Subscription is returned by Subscribe.
type Subscription struct {
	Events      <-chan eventlog.Envelope
	Snapshot    Snapshot
	Unsubscribe func()
}

// Emit admits an event if the run is not yet terminal; a no-op otherwise.
func (b *Broker) Emit(runID string, payload eventlog.Event) error {
	run, err := b.lookup(runID)
	if err != nil {
		return err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.Terminal {
		return nil
	}
	run.admitLocked(payload)
	return nil
}

// Cancel forces a run to its cancelled terminal state by admitting a
// synthetic error+done pair, unless the run already reached a terminal
// state (Cancel then loses the race and reports false).
func (b *Broker) Cancel(runID string, reason string) (bool, error) {
	run, err := b.lookup(runID)
	if err != nil {
		return false, err
	}
	if reason == "" {
		reason = "Run cancelled by user"
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.Terminal {
		return false, nil
	}
	run.State = StateCancelled
	run.admitLocked(eventlog.Error{Message: reason})
	run.admitLocked(eventlog.Done{})
	return true, nil
}

// GetSnapshot returns the current state/terminal/lastSeq for a run, or
// ErrRunNotFound.
func (b *Broker) GetSnapshot(runID string) (*Snapshot, error) {
	run, err := b.lookup(runID)
	if err != nil {
		return nil, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	snap := run.snapshotLocked()
	return &snap, nil
}

func (b *Broker) lookup(runID string) (*Run, error) {
	b.mapMu.RLock()
	run, ok := b.runs[runID]
	b.mapMu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// NewRunID generates a fresh run identifier. Exposed so CreateFunc
// implementations (the persistence client) can mint the id they persist.
func NewRunID() string { return uuid.NewString() }

func (b *Broker) sweepLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.sweepOnce()
		}
	}
}

func (b *Broker) sweepOnce() {
	now := time.Now()

	b.idemMu.Lock()
	for k, e := range b.idempotency {
		if now.Sub(e.createdAt) >= b.idempotencyTTL {
			delete(b.idempotency, k)
		}
	}
	b.idemMu.Unlock()

	b.mapMu.Lock()
	for id, run := range b.runs {
		run.mu.Lock()
		evictable := now.Sub(run.UpdatedAt) >= b.runRetention && (run.Terminal || !run.started) && len(run.subs) == 0
		run.mu.Unlock()
		if evictable {
			delete(b.runs, id)
			slog.Debug("broker: swept inactive run", "runId", id)
		}
	}
	b.mapMu.Unlock()
}
