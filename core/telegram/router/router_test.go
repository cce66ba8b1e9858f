package router

import (
	"errors"
	"fmt"
	"testing"

	tg "github.com/m3rciful/songbot/core/telegram"
	"github.com/m3rciful/songbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "fetch failed" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestErrorCode(t *testing.T) {
	if got := errorCode(fmt.Errorf("wrap: %w", codedErr{})); got != "FETCH_FAILED" {
		t.Fatalf("coded = %s", got)
	}
	if got := errorCode(&plainErr{}); got != "PLAINERR" {
		t.Fatalf("plain = %s", got)
	}
	if got := errorCode(errors.New("x")); got != "ERRORSTRING" {
		t.Fatalf("errors.New = %s", got)
	}
}

func TestHandlerName(t *testing.T) {
	cases := map[string]string{
		"/Start":      "start",
		"  ":          "unknown",
		"format back": "format_back",
	}
	for in, want := range cases {
		if got := handlerName(in); got != want {
			t.Fatalf("handlerName(%q) = %q, want %q", in, got, want)
		}
	}
}

type textContext struct {
	tele.Context
	text string
	user *tele.User
}

func (c textContext) Text() string       { return c.text }
func (c textContext) Sender() *tele.User { return c.user }

type stubFSM struct{ active bool }

func (s stubFSM) InProgress(int64) bool             { return s.active }
func (s stubFSM) ManagerHandler(tele.Context) error { return nil }

func TestResolveTextOrder(t *testing.T) {
	reg := tg.NewRegistry()
	_ = reg.RegisterCommand("/help", commands.Command{Handler: func(tele.Context) error { return nil }, Description: "help"})
	reg.SetTextFallback(func(tele.Context) error { return nil })
	user := &tele.User{ID: 1}

	cases := []struct {
		fsm  stubFSM
		text string
		want string
	}{
		{stubFSM{active: true}, "/help", "fsm"},
		{stubFSM{}, "/help", "help"},
		{stubFSM{}, "bohemian rhapsody", "fallback"},
	}
	for _, tc := range cases {
		name, h := resolveText(textContext{text: tc.text, user: user}, tc.fsm, reg, nil)
		if name != tc.want || h == nil {
			t.Fatalf("resolveText(%q) = %q, want %q", tc.text, name, tc.want)
		}
	}

	name, h := resolveText(textContext{text: "hi", user: user}, nil, nil, nil)
	if name != "unknown_text" || h != nil {
		t.Fatalf("no registry: %q", name)
	}
}
