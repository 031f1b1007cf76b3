// Package channelpipeline implements the inbound-webhook → plugin-parse →
// session-binding → fire-and-forget-dispatch → Run Broker → reply-delivery
// pipeline of spec.md §4.5. Grounded on internal/channels/channel.go's
// Channel/StreamingChannel capability pattern (generalized into the
// ChannelPlugin boundary in internal/channels) and internal/gateway/server.go's
// route-registration style; rate limiting is grounded on
// internal/channels/ratelimit.go's bounded-map defense, reimplemented over
// golang.org/x/time/rate token buckets (see ratelimit.go in this package).
package channelpipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openclaw/runtime/internal/broker"
	"github.com/openclaw/runtime/internal/channels"
	"github.com/openclaw/runtime/internal/eventlog"
)

var (
	ErrUnknownChannel  = errors.New("channelpipeline: unknown channel")
	ErrWebhookDenied   = errors.New("channelpipeline: webhook verification failed")
	ErrRateLimited     = errors.New("channelpipeline: rate limited")
	ErrSendUnsupported = errors.New("channelpipeline: UNIMPLEMENTED: channel plugin cannot send messages")
)

// ChannelRecord is the installed-channel configuration the pipeline needs:
// which plugin kind handles it, its plugin config, routing rules, and
// default agent.
type ChannelRecord struct {
	ID          string
	WorkspaceID string
	Kind        string // "discord", "telegram", "webchat", ...
	Config      map[string]any
	Rules       []RoutingRule
}

// RunStarter is the slice of executor.Loop the pipeline needs: a way to turn
// a ctx into the broker.StarterFunc that drives one coordinator run.
// Defined at the consumer per Go idiom.
type RunStarter interface {
	Starter(ctx context.Context) broker.StarterFunc
}

// Pipeline wires channel plugins, channel records, session state, and the
// Run Broker together.
type Pipeline struct {
	broker      *broker.Broker
	runStarter  RunStarter
	limiter     *WebhookRateLimiter
	sessions    *SessionStore
	createRunID broker.CreateFunc

	mu       sync.RWMutex
	plugins  map[string]channels.ChannelPlugin // kind -> plugin
	channels map[string]ChannelRecord          // channelId -> record
}

func New(b *broker.Broker, runStarter RunStarter, createRunID broker.CreateFunc) *Pipeline {
	return &Pipeline{
		broker: b, runStarter: runStarter, createRunID: createRunID,
		limiter: NewWebhookRateLimiter(), sessions: NewSessionStore(),
		plugins: make(map[string]channels.ChannelPlugin), channels: make(map[string]ChannelRecord),
	}
}

func (p *Pipeline) RegisterPlugin(kind string, plugin channels.ChannelPlugin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plugins[kind] = plugin
}

func (p *Pipeline) RegisterChannel(rec ChannelRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[rec.ID] = rec
}

func (p *Pipeline) lookupChannel(channelID string) (ChannelRecord, channels.ChannelPlugin, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.channels[channelID]
	if !ok {
		return ChannelRecord{}, nil, false
	}
	plugin, ok := p.plugins[rec.Kind]
	return rec, plugin, ok
}

// WebhookResult is what HandleWebhook returns to the HTTP boundary.
type WebhookResult struct {
	ChallengeResponse []byte // non-nil: reply with this body verbatim, 200
	Accepted          bool
	StatusCode        int
}

// HandleWebhook implements spec.md §4.5 steps 1-7: load channel + plugin
// config, optional challenge handshake, verify, parse, route, upsert
// session, fire-and-forget dispatch to the coordinator, and return accepted.
func (p *Pipeline) HandleWebhook(ctx context.Context, channelID string, body []byte, headers map[string]string) (WebhookResult, error) {
	rec, plugin, ok := p.lookupChannel(channelID)
	if !ok {
		return WebhookResult{StatusCode: 404}, ErrUnknownChannel
	}

	if !p.limiter.Allow(channelID) {
		return WebhookResult{StatusCode: 429}, ErrRateLimited
	}

	if challenger, ok := plugin.(channels.ChallengeHandler); ok {
		if resp, handled, err := challenger.HandleChallenge(ctx, body, rec.Config); err != nil {
			return WebhookResult{StatusCode: 400}, err
		} else if handled {
			return WebhookResult{ChallengeResponse: resp, StatusCode: 200}, nil
		}
	}

	verified, err := plugin.VerifyWebhook(ctx, body, headers, rec.Config)
	if err != nil {
		return WebhookResult{StatusCode: 400}, err
	}
	if !verified {
		return WebhookResult{StatusCode: 401}, ErrWebhookDenied
	}

	msg, err := plugin.ParseMessage(ctx, body)
	if err != nil {
		return WebhookResult{StatusCode: 400}, err
	}
	if msg == nil {
		return WebhookResult{Accepted: true, StatusCode: 200}, nil
	}

	agentID, matched := Match(rec.Rules, msg.Content)
	if !matched {
		return WebhookResult{Accepted: true, StatusCode: 200}, nil
	}

	sess := p.sessions.Upsert(rec.ID, rec.WorkspaceID, msg.Sender, msg.ChatID, agentID, time.Now())

	// Fire-and-forget: errors are logged only, per spec.md §4.5 step 6.
	go func() {
		bgCtx := context.Background()
		if err := p.RunChannelRun(bgCtx, ChannelRunRequest{
			SessionID: sess.ID, ChannelID: rec.ID, AgentID: sess.AgentID, WorkspaceID: rec.WorkspaceID,
			Message: msg.Content, Sender: msg.Sender, ChatID: msg.ChatID, ThreadID: msg.ThreadID, MessageID: msg.MessageID,
		}); err != nil {
			slog.Error("channelpipeline: channel-run dispatch failed", "channelId", rec.ID, "error", err)
		}
	}()

	return WebhookResult{Accepted: true, StatusCode: 200}, nil
}

// ChannelRunRequest is the body of spec.md §6's `POST /channel-run`.
type ChannelRunRequest struct {
	SessionID   string
	ChannelID   string
	AgentID     string
	WorkspaceID string
	Message     string
	Sender      string
	ChatID      string
	ThreadID    string
	MessageID   string
}

// Validate checks the required fields spec.md §6 names for /channel-run.
func (r ChannelRunRequest) Validate() error {
	if r.SessionID == "" || r.ChannelID == "" || r.AgentID == "" || r.WorkspaceID == "" || r.Message == "" || r.ChatID == "" {
		return fmt.Errorf("channelpipeline: missing required field")
	}
	return nil
}

// RunChannelRun starts a run via the Run Broker with no external subscriber
// attached (events stream into the ring and are discarded when the run is swept),
// waits for it to reach a terminal state via an internal accumulator
// subscription, and — if the accumulated reply text is non-empty — delivers
// it through the originating plugin's SendMessage, per spec.md §4.5's
// "Runtime /channel-run" paragraph. Reply-delivery failures are returned
// (raised, not swallowed) so the caller can log them; usage-recording
// failures are handled entirely inside internal/executor and never surface
// here.
func (p *Pipeline) RunChannelRun(ctx context.Context, req ChannelRunRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	rec, plugin, ok := p.lookupChannel(req.ChannelID)
	if !ok {
		return ErrUnknownChannel
	}

	runID, _, err := p.broker.CreateRuntimeRun(broker.RunParams{
		SessionID: req.SessionID, WorkspaceID: req.WorkspaceID,
		UserRequest: req.Message, CoordinatorAgentID: req.AgentID,
	}, "", "", p.createRunID)
	if err != nil {
		return fmt.Errorf("create channel run: %w", err)
	}

	sub, err := p.broker.Subscribe(runID, 0)
	if err != nil {
		return fmt.Errorf("subscribe to channel run: %w", err)
	}
	defer sub.Unsubscribe()

	if err := p.broker.StartRun(runID, p.runStarter.Starter(ctx)); err != nil {
		return fmt.Errorf("start channel run: %w", err)
	}

	reply := drainUntilDone(sub.Events)

	if reply == "" {
		return nil
	}

	sender, ok := channels.CanSend(plugin)
	if !ok {
		return ErrSendUnsupported
	}
	if err := sender.SendMessage(ctx, req.ChatID, reply, rec.Config, channels.SendOptions{ThreadID: req.ThreadID}); err != nil {
		return fmt.Errorf("deliver channel reply: %w", err)
	}
	return nil
}

// drainUntilDone reads events until Done or Error (or the channel closes),
// returning the last accumulated TextDelta.Text seen.
func drainUntilDone(events <-chan eventlog.Envelope) string {
	var text string
	for env := range events {
		switch ev := env.Payload.(type) {
		case eventlog.TextDelta:
			text = ev.Text
		case eventlog.Done:
			return text
		case eventlog.Error:
			return text
		}
	}
	return text
}
