// Package menu renders the inline keyboards of the language and format selection steps.
package menu

import (
	"github.com/m3rciful/songbot/core/telegram/keyboard"
	"github.com/m3rciful/songbot/internal/catalog"

	tele "gopkg.in/telebot.v4"
)

const (
	// LanguageKey is the callback unique of the language menu.
	LanguageKey = "lang"
	// FormatKey is the callback unique of the format menu.
	FormatKey = "fmt"

	// PayloadCancel aborts the language selection.
	PayloadCancel = "cancel"
	// PayloadBack returns from the format menu to the language menu.
	PayloadBack = "back"

	languagesPerRow = 3
	backLabel       = "🔙 Back to Language"
)

// LanguageMenu arranges the language catalog three per row with a trailing cancel row.
func LanguageMenu() *tele.ReplyMarkup {
	langs := catalog.Languages()
	buttons := make([]keyboard.InlineBtn, 0, len(langs))
	for _, l := range langs {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   l.Label(),
			Unique: LanguageKey,
			Data:   l.Name,
		})
	}
	cancel := []keyboard.InlineBtn{keyboard.CancelButton(LanguageKey, PayloadCancel)}
	return keyboard.InlineButtonsNPerRow(buttons, languagesPerRow, cancel)
}

// FormatMenu offers the formats for the chosen language and a way back to the language menu.
// The language is not encoded in the buttons; the session carries it.
func FormatMenu(_ catalog.Language) *tele.ReplyMarkup {
	formats := catalog.Formats()
	row := make([]keyboard.InlineBtn, 0, len(formats))
	for _, f := range formats {
		row = append(row, keyboard.InlineBtn{
			Text:   f.Label(),
			Unique: FormatKey,
			Data:   string(f),
		})
	}
	back := []keyboard.InlineBtn{{Text: backLabel, Unique: FormatKey, Data: PayloadBack}}
	return keyboard.InlineButtonsRows(row, back)
}
