package telegram

import (
	"context"
	"testing"
)

func TestVerifyWebhookRejectsWrongSecret(t *testing.T) {
	p := New()
	ok, err := p.VerifyWebhook(context.Background(), nil, map[string]string{
		"X-Telegram-Bot-Api-Secret-Token": "wrong",
	}, map[string]any{"secretToken": "right"})
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if ok {
		t.Fatalf("expected verification to fail for mismatched secret token")
	}
}

func TestVerifyWebhookAcceptsMatchingSecret(t *testing.T) {
	p := New()
	ok, err := p.VerifyWebhook(context.Background(), nil, map[string]string{
		"X-Telegram-Bot-Api-Secret-Token": "s3cr3t",
	}, map[string]any{"secretToken": "s3cr3t"})
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if !ok {
		t.Fatalf("expected verification to succeed for matching secret token")
	}
}

func TestVerifyWebhookErrorsWithoutConfiguredSecret(t *testing.T) {
	p := New()
	_, err := p.VerifyWebhook(context.Background(), nil, nil, map[string]any{})
	if err == nil {
		t.Fatalf("expected error when channel config carries no secretToken")
	}
}

func TestParseMessageIgnoresNonTextUpdates(t *testing.T) {
	p := New()
	msg, err := p.ParseMessage(context.Background(), []byte(`{"update_id":1}`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message for update with no text, got %+v", msg)
	}
}

func TestParseMessageExtractsTextUpdate(t *testing.T) {
	p := New()
	body := []byte(`{"update_id":1,"message":{"message_id":42,"date":0,"chat":{"id":555,"type":"private"},"from":{"id":777,"is_bot":false,"first_name":"a"},"text":"hi"}}`)
	msg, err := p.ParseMessage(context.Background(), body)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg == nil || msg.Content != "hi" || msg.ChatID != "555" || msg.Sender != "777" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
