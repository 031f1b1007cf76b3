package webchat

import (
	"context"
	"testing"
)

func TestParseMessageIgnoresEmptyContent(t *testing.T) {
	p := New()
	msg, err := p.ParseMessage(context.Background(), []byte(`{"chatId":"c1"}`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message for empty content, got %+v", msg)
	}
}

func TestParseMessageExtractsFields(t *testing.T) {
	p := New()
	msg, err := p.ParseMessage(context.Background(), []byte(`{"content":"hi","sender":"u1","chatId":"c1"}`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg == nil || msg.Content != "hi" || msg.ChatID != "c1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestVerifyWebhookAlwaysTrue(t *testing.T) {
	p := New()
	ok, err := p.VerifyWebhook(context.Background(), nil, nil, nil)
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}
}
