// Package catalog holds the static language and format choices offered by the bot.
package catalog

import "strings"

// Language is a selectable language with its flag glyph.
type Language struct {
	Name string
	Flag string
}

// Label renders the button text for the language.
func (l Language) Label() string {
	return l.Flag + " " + l.Name
}

var languages = []Language{
	{Name: "English", Flag: "🇬🇧"},
	{Name: "Hindi", Flag: "🇮🇳"},
	{Name: "Spanish", Flag: "🇪🇸"},
	{Name: "French", Flag: "🇫🇷"},
	{Name: "German", Flag: "🇩🇪"},
	{Name: "Italian", Flag: "🇮🇹"},
	{Name: "Japanese", Flag: "🇯🇵"},
	{Name: "Korean", Flag: "🇰🇷"},
	{Name: "Chinese", Flag: "🇨🇳"},
	{Name: "Portuguese", Flag: "🇵🇹"},
	{Name: "Russian", Flag: "🇷🇺"},
	{Name: "Arabic", Flag: "🇸🇦"},
	{Name: "Bengali", Flag: "🇧🇩"},
	{Name: "Turkish", Flag: "🇹🇷"},
	{Name: "Vietnamese", Flag: "🇻🇳"},
	{Name: "Thai", Flag: "🇹🇭"},
	{Name: "Malay", Flag: "🇲🇾"},
	{Name: "Swahili", Flag: "🇰🇪"},
	{Name: "Dutch", Flag: "🇳🇱"},
	{Name: "Greek", Flag: "🇬🇷"},
	{Name: "Hebrew", Flag: "🇮🇱"},
}

// Languages returns the catalog in display order. The slice is a copy.
func Languages() []Language {
	return append([]Language(nil), languages...)
}

// LookupLanguage finds a language by its canonical name.
func LookupLanguage(name string) (Language, bool) {
	for _, l := range languages {
		if l.Name == name {
			return l, true
		}
	}
	return Language{}, false
}

// Format is the media kind a user wants delivered.
type Format string

const (
	// FormatAudio delivers an mp3 extracted from the best audio stream.
	FormatAudio Format = "audio"
	// FormatVideo delivers the best video merged with the best audio.
	FormatVideo Format = "video"
)

// Formats lists the selectable formats in display order.
func Formats() []Format {
	return []Format{FormatAudio, FormatVideo}
}

// ParseFormat maps a callback payload to a Format.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatAudio:
		return FormatAudio, true
	case FormatVideo:
		return FormatVideo, true
	}
	return "", false
}

// Title is the human name of the format.
func (f Format) Title() string {
	switch f {
	case FormatAudio:
		return "Audio"
	case FormatVideo:
		return "Video"
	}
	return string(f)
}

// Label renders the button text for the format.
func (f Format) Label() string {
	switch f {
	case FormatAudio:
		return "🎧 Audio"
	case FormatVideo:
		return "🎬 Video"
	}
	return f.Title()
}
