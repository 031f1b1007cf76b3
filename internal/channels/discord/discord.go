// Package discord implements the discord ChannelPlugin variant. Discord has
// no generic inbound-message webhook for bot accounts — the public webhook
// surface it exposes is the Interactions endpoint, authenticated with an
// Ed25519 signature over `X-Signature-Ed25519` / `X-Signature-Timestamp`
// (https://discord.com/developers/docs/interactions/overview#setting-up-an-endpoint).
// VerifyWebhook implements that real scheme; outbound delivery reuses the
// teacher's discordgo REST call shape (channels/discord/discord.go's
// `session.ChannelMessageSend`), adapted from a persistent gateway
// connection to a one-shot REST client built per call.
package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/openclaw/runtime/internal/channels"
)

const Name = "discord"

type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return Name }

func (p *Plugin) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string, config map[string]any) (bool, error) {
	pubKeyHex, _ := config["publicKey"].(string)
	if pubKeyHex == "" {
		return false, fmt.Errorf("discord: missing publicKey in channel config")
	}
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("discord: invalid publicKey: %w", err)
	}

	sigHex := headers["X-Signature-Ed25519"]
	timestamp := headers["X-Signature-Timestamp"]
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, nil
	}

	msg := append([]byte(timestamp), body...)
	return ed25519.Verify(pubKey, msg, sig), nil
}

// discord interaction PING (type 1) is handled via HandleChallenge: Discord
// requires an immediate `{"type":1}` PONG before it will activate the
// endpoint, distinct from ParseMessage's steady-state message extraction.
func (p *Plugin) HandleChallenge(ctx context.Context, body []byte, config map[string]any) ([]byte, bool, error) {
	var in struct {
		Type int `json:"type"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, false, fmt.Errorf("discord: parse interaction: %w", err)
	}
	if in.Type != 1 {
		return nil, false, nil
	}
	return []byte(`{"type":1}`), true, nil
}

type interactionPayload struct {
	Type    int    `json:"type"`
	GuildID string `json:"guild_id"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Member *struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"member"`
	Data struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Options []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"options"`
	} `json:"data"`
	ID string `json:"id"`
}

func (p *Plugin) ParseMessage(ctx context.Context, body []byte) (*channels.ParsedMessage, error) {
	var in interactionPayload
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("discord: parse interaction: %w", err)
	}
	if in.Type != 2 || len(in.Data.Options) == 0 { // 2 = APPLICATION_COMMAND
		return nil, nil
	}

	content := in.Data.Options[0].Value
	sender := ""
	if in.Member != nil {
		sender = in.Member.User.ID
	}

	return &channels.ParsedMessage{
		Content:   content,
		Sender:    sender,
		ChatID:    in.Channel.ID,
		MessageID: in.ID,
	}, nil
}

func (p *Plugin) SendMessage(ctx context.Context, chatID, text string, config map[string]any, opts channels.SendOptions) error {
	token, _ := config["token"].(string)
	if token == "" {
		return fmt.Errorf("discord: missing token in channel config")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}

	// Discord threads are themselves channels; sending to a thread means
	// targeting its channel ID instead of the parent channel's.
	target := chatID
	if opts.ThreadID != "" {
		target = opts.ThreadID
	}
	if _, err := session.ChannelMessageSend(target, text); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}
