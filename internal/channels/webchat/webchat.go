// Package webchat implements the webchat ChannelPlugin variant: a
// first-party web widget that talks to the gateway directly over HTTPS, so
// there is no external platform SDK and no signature scheme — the shared
// runtime secret already authenticates the caller at the gateway boundary.
// Grounded on the teacher's channels.BaseChannel "cli"/"system" internal
// channels (channel.go) for the no-platform-SDK shape.
package webchat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openclaw/runtime/internal/channels"
)

const Name = "webchat"

type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return Name }

func (p *Plugin) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string, config map[string]any) (bool, error) {
	return true, nil
}

type inboundPayload struct {
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	ChatID    string `json:"chatId"`
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
}

func (p *Plugin) ParseMessage(ctx context.Context, body []byte) (*channels.ParsedMessage, error) {
	var in inboundPayload
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("webchat: parse inbound payload: %w", err)
	}
	if in.Content == "" {
		return nil, nil
	}
	return &channels.ParsedMessage{
		Content: in.Content, Sender: in.Sender, ChatID: in.ChatID,
		ThreadID: in.ThreadID, MessageID: in.MessageID,
	}, nil
}

// SendMessage for webchat is a no-op store: the widget polls/streams the
// run's SSE endpoint directly rather than receiving a pushed reply, so
// there is nothing to deliver here. Implemented (rather than omitted) so
// webchat counts as a Sender and outbound delivery never fails with
// UNIMPLEMENTED for the channel the product actually ships first.
func (p *Plugin) SendMessage(ctx context.Context, chatID, text string, config map[string]any, opts channels.SendOptions) error {
	return nil
}
