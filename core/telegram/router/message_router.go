package router

import (
	tg "github.com/m3rciful/songbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// FSM is the conversation that owns free text while a user is in it.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes builds handlers for text and document routing. Text goes to the
// FSM while it reports the sender in progress, then to commands typed as text,
// then to the registry fallback. Documents never reach the FSM.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		name, h := resolveText(c, fsm, reg, opts.UnknownText)
		if h == nil {
			skip(c, name)
			return nil
		}
		return run(c, name, h)
	}
	document := func(c tele.Context) error {
		if opts.UnknownDocument == nil {
			skip(c, "unexpected_document")
			return nil
		}
		return run(c, "unexpected_document", opts.UnknownDocument)
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnDocument, Handler: wrap(document)},
	}
}

func resolveText(c tele.Context, fsm FSM, reg *tg.Registry, unknown tele.HandlerFunc) (string, tele.HandlerFunc) {
	if fsm != nil && c.Sender() != nil && fsm.InProgress(c.Sender().ID) {
		return "fsm", fsm.ManagerHandler
	}
	if reg != nil {
		if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
			return handlerName(key), cmd.Handler
		}
		if fb := reg.TextFallback(); fb != nil {
			return "fallback", fb
		}
	}
	return "unknown_text", unknown
}
