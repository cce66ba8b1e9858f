package router

import (
	"log/slog"

	tg "github.com/m3rciful/songbot/core/telegram"
	"github.com/m3rciful/songbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute returns a handler that routes callbacks through the registry.
// Handlers may answer the query themselves via callbacks.Answer; otherwise an
// empty answer is sent once they return.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		defer func() { _ = callbacks.Answer(c, nil) }()

		key, _ := callbacks.ParseCallbackData(c.Callback())
		name := "callback." + handlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		if h, ok := reg.GetCallback(key); ok && h != nil {
			return run(c, name, h, extras...)
		}

		fallback := reg.CallbackNotFound()
		if fallback == nil {
			fallback = opts.NotFound
		}
		extras = append(extras, slog.String("reason", "not_found"))
		if fallback == nil {
			skip(c, name, extras...)
			return nil
		}
		return run(c, name, fallback, extras...)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: wrap(handler)}
}
