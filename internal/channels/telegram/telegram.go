// Package telegram implements the telegram ChannelPlugin variant. Inbound
// delivery is Telegram's webhook push (https://core.telegram.org/bots/api#setwebhook)
// verified via the `X-Telegram-Bot-Api-Secret-Token` header Telegram echoes
// back on every webhook request; outbound delivery uses telego's bot-API
// client, grounded on the teacher's channels/telegram/commands.go
// `tu.Message`+`bot.SendMessage` call shape — adapted from a long-polling
// gateway bot to a stateless per-request webhook plugin.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/openclaw/runtime/internal/channels"
)

const Name = "telegram"

// Plugin is stateless aside from the bot client, which it builds per call
// from the webhook config's token so one Plugin instance serves every
// installed Telegram channel (config carries the per-installation token).
type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return Name }

func (p *Plugin) VerifyWebhook(ctx context.Context, body []byte, headers map[string]string, config map[string]any) (bool, error) {
	want, _ := config["secretToken"].(string)
	if want == "" {
		return false, fmt.Errorf("telegram: missing secretToken in channel config")
	}
	got := headers["X-Telegram-Bot-Api-Secret-Token"]
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1, nil
}

func (p *Plugin) ParseMessage(ctx context.Context, body []byte) (*channels.ParsedMessage, error) {
	var update telego.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("telegram: parse update: %w", err)
	}
	if update.Message == nil || update.Message.Text == "" {
		return nil, nil
	}
	msg := update.Message

	threadID := ""
	if msg.IsTopicMessage {
		threadID = strconv.Itoa(msg.MessageThreadID)
	}

	sender := ""
	if msg.From != nil {
		sender = strconv.FormatInt(msg.From.ID, 10)
	}

	return &channels.ParsedMessage{
		Content:   msg.Text,
		Sender:    sender,
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		ThreadID:  threadID,
		MessageID: strconv.Itoa(msg.MessageID),
	}, nil
}

func (p *Plugin) SendMessage(ctx context.Context, chatID, text string, config map[string]any, opts channels.SendOptions) error {
	token, _ := config["token"].(string)
	if token == "" {
		return fmt.Errorf("telegram: missing token in channel config")
	}
	bot, err := telego.NewBot(token)
	if err != nil {
		return fmt.Errorf("telegram: create bot client: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chatId %q: %w", chatID, err)
	}

	params := tu.Message(tu.ID(chatIDInt), text)
	if opts.ThreadID != "" {
		if threadID, err := strconv.Atoi(opts.ThreadID); err == nil {
			params.MessageThreadID = threadID
		}
	}

	_, err = bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}
