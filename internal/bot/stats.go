package bot

import (
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"

	tghelpers "github.com/m3rciful/songbot/core/telegram/helpers"
	"github.com/m3rciful/songbot/internal/journal"

	tele "gopkg.in/telebot.v4"
)

const statsRecentLimit = 10

// Stats reports running downloads and the latest journal entries.
func (h *Controller) Stats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	entries, err := h.journal.Recent(ctx, statsRecentLimit)
	if err != nil {
		return fmt.Errorf("journal recent: %w", err)
	}
	return tghelpers.SendHTML(c, h.renderStats(entries))
}

func (h *Controller) renderStats(entries []journal.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Downloads</b>\nrunning: %d, users downloading: %d\n",
		h.downloads.Active(), h.inflight.len())
	if len(entries) == 0 {
		b.WriteString("\nNo downloads yet.")
		return b.String()
	}
	b.WriteString("\n<b>Recent</b>\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s · %s", stateIcon(e.State), html.EscapeString(e.Query), e.Format)
		if e.SizeBytes > 0 {
			b.WriteString(" · " + humanize.Bytes(uint64(e.SizeBytes)))
		}
		b.WriteString(" · " + humanize.RelTime(e.UpdatedAt, h.now(), "ago", "from now") + "\n")
	}
	return b.String()
}

func stateIcon(state string) string {
	switch state {
	case journal.StateSucceeded:
		return "✅"
	case journal.StateFailed:
		return "❌"
	case journal.StateRunning:
		return "⏳"
	default:
		return "•"
	}
}
