package bot

const (
	textChooseLanguage   = "🎵 Please select your language:"
	textLanguageSelected = "Language selected: %s\nChoose format:"
	textFormatSelected   = "Format selected: %s\nSend me the song name you want to download:"
	textCanceled         = "❌ Operation canceled."
	textStartFirst       = "Please start with /start first!"
	textPreparing        = "Preparing to download '%s' as %s... 🎵"
	textDownloading      = "Downloading '%s' as %s... "
	textCookiesMissing   = "⚠️ Cookies file not found at '%s'."
	textFailed           = "❌ Failed to download the song!"
	textDeliveryFailed   = "❌ Could not send the file. Please try again."
	textBusy             = "⏳ A download is already running. Please wait for it to finish."
	textSessionExpired   = "Session expired, please send /start again."
	textUnknownLanguage  = "Unknown language, please pick one from the list."
	textUnknownFormat    = "Unknown format."
	textUnknownCommand   = "Unknown command. Send a song name, or /start to change language and format."
	textSendText         = "Please send the song name as a text message."
	textNotAllowed       = "This command is only available to the bot admin."
	textSlowDown         = "Too many requests, please slow down."

	textHelp = `<b>How to use</b>
1. /start and pick a language.
2. Choose <b>Audio</b> (mp3) or <b>Video</b>.
3. Send the song name; the top search result is downloaded and sent back.

Your language and format are remembered, so you can keep sending song names.`
)
