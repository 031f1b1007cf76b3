// Package channels defines the ChannelPlugin capability boundary and holds
// the concrete platform plugins (webchat, discord, telegram). Adapted from
// the teacher's Channel/StreamingChannel interface pair in channel.go: the
// teacher's channels own a persistent gateway/bot-API connection and push
// inbound messages onto a bus; ChannelPlugin instead models the stateless
// webhook-verify/parse/send shape spec.md §6 requires, since inbound
// delivery here is HTTP webhook push rather than a long-lived socket.
package channels

import "context"

// ParsedMessage is the normalized inbound message spec.md §4.5 step 4
// describes: {content, sender, chatId, threadId?, messageId?}.
type ParsedMessage struct {
	Content   string
	Sender    string
	ChatID    string
	ThreadID  string
	MessageID string
}

// SendOptions carries the optional fields of plugin SendMessage.
type SendOptions struct {
	ThreadID string
}

// ChannelPlugin is the full capability set spec.md §6 names. Only
// VerifyWebhook and ParseMessage are required; HandleChallenge, TestConnection
// and SendMessage are optional and detected via narrower interfaces below —
// this is the "duck-typed ChannelPlugin → capability interface" design note
// from spec.md §9.
type ChannelPlugin interface {
	// Name returns the channel kind, e.g. "discord", "telegram", "webchat".
	Name() string

	// VerifyWebhook validates the inbound request's authenticity (signature,
	// shared secret, etc.) before ParseMessage is attempted.
	VerifyWebhook(ctx context.Context, body []byte, headers map[string]string, config map[string]any) (bool, error)

	// ParseMessage extracts a ParsedMessage from a verified webhook body.
	// A nil result (with nil error) means the payload should be ignored
	// (e.g. a delivery receipt, not a user message).
	ParseMessage(ctx context.Context, body []byte) (*ParsedMessage, error)
}

// ChallengeHandler is implemented by plugins whose platform requires a
// verification handshake (e.g. a webhook subscribe challenge). When
// HandleChallenge returns a non-nil response, the pipeline replies with it
// verbatim and never reaches VerifyWebhook/ParseMessage for that request.
type ChallengeHandler interface {
	HandleChallenge(ctx context.Context, body []byte, config map[string]any) ([]byte, bool, error)
}

// ConnectionTester is implemented by plugins that can validate their own
// configuration against the live platform (used by plugin install/sync
// flows, not by the webhook hot path).
type ConnectionTester interface {
	TestConnection(ctx context.Context, config map[string]any) error
}

// Sender is implemented by plugins capable of delivering outbound replies.
// A plugin without Sender fails outbound delivery with UNIMPLEMENTED, per
// spec.md §6: "Only plugins with SendMessage may receive outbound replies".
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string, config map[string]any, opts SendOptions) error
}

// CanSend reports whether plugin implements Sender.
func CanSend(plugin ChannelPlugin) (Sender, bool) {
	s, ok := plugin.(Sender)
	return s, ok
}
