package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/songbot/core/logger"
	"github.com/m3rciful/songbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/songbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers recently logged update IDs so a middleware applied
// on several branches logs each update once.
type seenUpdates struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[int]time.Time
}

func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for old, ts := range s.seen {
		if now.Sub(ts) > s.ttl {
			delete(s.seen, old)
		}
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = now
	return true
}

var (
	received    = &seenUpdates{ttl: 10 * time.Second, seen: make(map[int]time.Time)}
	sampleDebug = logger.ShouldSampleDebug
)

// LoggerMiddleware stores the request context with its rid on the update and
// logs a single debug receipt line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		c.Set("rid", logger.RIDFrom(ctx))

		if sampleDebug() && received.first(c.Update().ID, time.Now()) {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

// receiptAttrs describes the sender and payload of an update. Ids come from
// the context metadata.
func receiptAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	var payload string
	switch {
	case upd.Callback != nil:
		var key string
		key, payload = callbacks.ParseCallbackData(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
	case upd.Message != nil:
		payload = c.Text()
	}
	if payload != "" {
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
	}
	return attrs
}
