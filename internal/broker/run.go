package broker

import (
	"sync"
	"time"

	"github.com/openclaw/runtime/internal/eventlog"
)

const subscriberBufferSize = 64

// subscriber holds the live-delivery channel Emit writes to (non-blocking)
// and the pump goroutine that forwards replay + live events to the
// caller-facing Events channel without ever letting a slow consumer stall
// Emit. Grounded on other_examples' runSpecificEventHub broadcast-via-
// select/default pattern.
type subscriber struct {
	id   uint64
	live chan eventlog.Envelope
	out  chan eventlog.Envelope
	done chan struct{}
}

func newSubscriber(id uint64) *subscriber {
	return &subscriber{
		id:   id,
		live: make(chan eventlog.Envelope, subscriberBufferSize),
		out:  make(chan eventlog.Envelope, subscriberBufferSize),
		done: make(chan struct{}),
	}
}

func (s *subscriber) pump(replay []eventlog.Envelope) {
	defer close(s.out)
	for _, e := range replay {
		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
	for {
		select {
		case e, ok := <-s.live:
			if !ok {
				return
			}
			select {
			case s.out <- e:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

// Run is one Run Entry: the per-run mutable state the broker owns. All
// mutation is serialized by mu; the global run map uses a separate lock
// covering only lookup/insert/delete.
type Run struct {
	mu sync.Mutex

	ID        string
	Params    RunParams
	State     RunState
	Terminal  bool
	CreatedAt time.Time
	UpdatedAt time.Time

	nextSeq     uint64
	ring        *eventlog.Ring
	subs        map[uint64]*subscriber
	nextSubID   uint64
	started     bool
}

func newRun(id string, params RunParams, ringSize int) *Run {
	now := time.Now()
	return &Run{
		ID:        id,
		Params:    params,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
		nextSeq:   1,
		ring:      eventlog.NewRing(ringSize),
		subs:      make(map[uint64]*subscriber),
	}
}

// admitLocked assigns the next seq, pushes to the ring, updates lifecycle
// state, and dispatches to every live subscriber. Caller must hold r.mu and
// must have already checked !r.Terminal.
func (r *Run) admitLocked(payload eventlog.Event) eventlog.Envelope {
	env := eventlog.Envelope{Seq: r.nextSeq, EmittedAt: time.Now(), Payload: payload}
	r.nextSeq++
	r.ring.Push(env)
	r.UpdatedAt = env.EmittedAt

	switch payload.(type) {
	case eventlog.Error:
		if r.State != StateCancelled {
			r.State = StateFailed
		}
	case eventlog.Done:
		if r.State == StateRunning || r.State == StateQueued {
			r.State = StateCompleted
		}
		r.Terminal = true
	}

	for _, s := range r.subs {
		select {
		case s.live <- env:
		default:
			// slow subscriber: drop rather than stall the admitting goroutine.
		}
	}
	return env
}

func (r *Run) snapshotLocked() Snapshot {
	var lastSeq uint64
	if r.nextSeq > 0 {
		lastSeq = r.nextSeq - 1
	}
	return Snapshot{State: r.State, Terminal: r.Terminal, LastSeq: lastSeq}
}
