package bot

import (
	tele "gopkg.in/telebot.v4"
)

// Outbound is the part of the Telegram API the controller calls outside of
// an update context: status messages, progress edits and file delivery.
type Outbound interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
	Edit(msg tele.Editable, what any, opts ...any) (*tele.Message, error)
	Delete(msg tele.Editable) error
	Notify(to tele.Recipient, action tele.ChatAction) error
}

type botOutbound struct {
	b *tele.Bot
}

// NewOutbound adapts a running bot to Outbound.
func NewOutbound(b *tele.Bot) Outbound {
	return botOutbound{b: b}
}

func (o botOutbound) Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error) {
	return o.b.Send(to, what, opts...)
}

func (o botOutbound) Edit(msg tele.Editable, what any, opts ...any) (*tele.Message, error) {
	return o.b.Edit(msg, what, opts...)
}

func (o botOutbound) Delete(msg tele.Editable) error {
	return o.b.Delete(msg)
}

func (o botOutbound) Notify(to tele.Recipient, action tele.ChatAction) error {
	return o.b.Notify(to, action)
}
