// Package keyboard builds inline keyboards from plain button descriptions.
package keyboard

import (
	"slices"

	tele "gopkg.in/telebot.v4"
)

// InlineBtn describes one inline button: its label, callback unique and payload.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

const (
	cancelPayload = "cancel"
	cancelLabel   = "❌ Cancel"
)

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tele.InlineButton, 0, len(row))
		for _, btn := range row {
			line = append(line, *markup.Data(btn.Text, btn.Unique, btn.Data).Inline())
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	return markup
}

// InlineButtonsNPerRow lays buttons out n per row, then appends the non-empty
// footer rows unchanged.
func InlineButtonsNPerRow(buttons []InlineBtn, n int, footer ...[]InlineBtn) *tele.ReplyMarkup {
	rows := ChunkButtons(buttons, n)
	for _, row := range footer {
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return InlineButtonsRows(rows...)
}

// ChunkButtons splits buttons into rows of at most n; n < 1 means one per row.
func ChunkButtons(buttons []InlineBtn, n int) [][]InlineBtn {
	return slices.Collect(slices.Chunk(buttons, max(n, 1)))
}

// CancelButton returns a cancel button for the callback unique action. An
// empty payload defaults to "cancel".
func CancelButton(action, payload string) InlineBtn {
	if payload == "" {
		payload = cancelPayload
	}
	return InlineBtn{Text: cancelLabel, Unique: action, Data: payload}
}
