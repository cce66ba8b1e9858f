// Package router turns registry entries into telebot routes wrapped with
// recovery, request context and a per-handler summary log line.
package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/songbot/core/logger"
	tghelpers "github.com/m3rciful/songbot/core/telegram/helpers"
	"github.com/m3rciful/songbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// wrap applies the middleware every route shares. Recovery sits outermost so
// a panic in the logging layer is caught too.
func wrap(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}

// run executes h under the given handler name and logs one summary line.
func run(c tele.Context, name string, h tele.HandlerFunc, extras ...slog.Attr) error {
	start := time.Now()
	tghelpers.WithHandler(c, name)
	err := h(c)
	summarize(c, name, start, outcomeOf(err), err, extras...)
	return err
}

// skip logs a summary for an update no handler accepted.
func skip(c tele.Context, name string, extras ...slog.Attr) {
	tghelpers.WithHandler(c, name)
	summarize(c, name, time.Now(), "skip", nil, extras...)
}

func outcomeOf(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

func summarize(c tele.Context, name string, start time.Time, status string, err error, extras ...slog.Attr) {
	ctx := tghelpers.BuildContext(c)
	msgs, kb := middleware.GetCounters(c)

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", name),
		slog.String("outcome", outcomeOf(err)),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	attrs = append(attrs, extras...)
	logger.Info(ctx, "tg", "handler.handled", attrs...)
}

func handlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// errorCode prefers an explicit Code() on any error in the chain and falls
// back to the dynamic type name.
func errorCode(err error) string {
	var c interface{ Code() string }
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
