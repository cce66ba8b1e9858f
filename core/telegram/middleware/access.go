package middleware

import (
	"log/slog"

	"github.com/m3rciful/songbot/core/logger"
	tghelpers "github.com/m3rciful/songbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// allows reports whether the sender may run an admin-only handler.
// A zero AdminID disables the check.
func (o AdminOptions) allows(c tele.Context) bool {
	if o.AdminID == 0 {
		return true
	}
	sender := c.Sender()
	return sender != nil && sender.ID == o.AdminID
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.allows(c) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "admin.reject",
				slog.String("status", "skip"),
				slog.String("reason", "not_admin"),
			)
			if opts.OnReject == nil {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}
