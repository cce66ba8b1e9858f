package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/songbot/core/logger"
	tghelpers "github.com/m3rciful/songbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// PanicError is returned in place of a handler that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Code identifies the error in handler summaries.
func (e *PanicError) Code() string { return "PANIC" }

// RecoverMiddleware turns a handler panic into a *PanicError so one bad update
// cannot bring the poller down.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(fmt.Sprint(r), 256)),
				slog.String("err_code", "PANIC"),
				slog.String("stack", string(debug.Stack())),
			)
			err = &PanicError{Value: r}
		}()
		return next(c)
	}
}
