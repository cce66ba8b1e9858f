// Package progress animates a status message while a download runs.
package progress

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/songbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// DefaultInterval is the cadence of liveness signals and status edits.
const DefaultInterval = time.Second

// maxDots bounds the animated suffix; the count cycles 0..maxDots.
const maxDots = 3

// Messenger is the outbound surface the reporter needs.
type Messenger interface {
	Edit(msg tele.Editable, what any, opts ...any) (*tele.Message, error)
	Notify(to tele.Recipient, action tele.ChatAction) error
}

// Target identifies the chat and the status message to animate.
type Target struct {
	Chat    tele.Recipient
	Message tele.Editable
	// Render returns the status text for the given dot count.
	Render func(dots int) string
}

// Reporter periodically signals liveness and edits one status message.
type Reporter struct {
	out      Messenger
	interval time.Duration
	action   tele.ChatAction
}

// New returns a Reporter; interval <= 0 selects DefaultInterval.
func New(out Messenger, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{out: out, interval: interval, action: tele.Typing}
}

// Run ticks until done is closed or ctx ends. It checks done before every
// outbound call and returns only after its last call has completed, so no
// edit lands once done is closed and Run has returned.
func (r *Reporter) Run(ctx context.Context, done <-chan struct{}, t Target) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	dots := 0
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if finished(done) {
			return
		}
		if err := r.out.Notify(t.Chat, r.action); err != nil {
			logger.Debug(ctx, "tg", "progress.notify",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}

		if finished(done) || t.Message == nil || t.Render == nil {
			continue
		}
		dots = NextDots(dots)
		if _, err := r.out.Edit(t.Message, t.Render(dots)); err != nil && !notModified(err) {
			logger.Warn(ctx, "tg", "progress.edit",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
	}
}

// NextDots advances the animated suffix counter.
func NextDots(dots int) int {
	return (dots + 1) % (maxDots + 1)
}

// Dots renders the suffix for a dot count.
func Dots(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("•", min(n, maxDots))
}

func finished(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func notModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
