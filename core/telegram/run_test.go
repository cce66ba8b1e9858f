package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"

	coreconfig "github.com/m3rciful/songbot/core/config"

	tele "gopkg.in/telebot.v4"
)

func TestErrorCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("send: %w", tele.FloodError{RetryAfter: 2}), "FLOOD"},
		{&tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, "TG_403"},
		{errors.New("socket closed"), "BOT_ERROR"},
	}
	for _, tc := range cases {
		if got := errorCodeOf(tc.err); got != tc.want {
			t.Fatalf("errorCodeOf = %s, want %s", got, tc.want)
		}
	}
}

func TestListenerPollingHealthOnlyWithPort(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Telegram.RunMode = coreconfig.RunModeLongpoll
	poller := &tele.LongPoller{}

	addr, h := listener(context.Background(), nil, poller, cfg, true, 0)
	if addr != "" || h != nil {
		t.Fatalf("expected no listener without port, got %q", addr)
	}

	cfg.Webhook.Listen = "127.0.0.1"
	cfg.Webhook.Port = 8081
	addr, h = listener(context.Background(), nil, poller, cfg, true, 0)
	if addr != "127.0.0.1:8081" || h == nil {
		t.Fatalf("expected health listener, got %q", addr)
	}
}

func TestRunTelegramRequiresConfig(t *testing.T) {
	if err := RunTelegram(context.Background(), RunOptions{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
