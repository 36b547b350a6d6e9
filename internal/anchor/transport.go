package anchor

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// EditResult is the outcome of an in-place edit.
type EditResult int

const (
	// Edited means the message now shows the new content.
	Edited EditResult = iota
	// Unchanged means the message already showed exactly this content.
	Unchanged
	// Failed means the message could not be edited, e.g. it was deleted or is too old.
	Failed
)

func (r EditResult) String() string {
	switch r {
	case Edited:
		return "edited"
	case Unchanged:
		return "unchanged"
	default:
		return "failed"
	}
}

// Content is one rendered screen.
type Content struct {
	Text   string
	Markup *tele.ReplyMarkup
}

// HasKeyboard reports whether the content carries inline controls.
func (c Content) HasKeyboard() bool {
	return c.Markup != nil && len(c.Markup.InlineKeyboard) > 0
}

// Transport is the message primitive set the renderer needs.
type Transport interface {
	Send(ctx context.Context, chatID int64, content Content) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, content Content) (EditResult, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// BotAPI is the subset of *tele.Bot used by TeleTransport.
type BotAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// TeleTransport sends anchor messages through telebot.
type TeleTransport struct {
	bot BotAPI
}

// NewTeleTransport wraps a bot.
func NewTeleTransport(bot BotAPI) *TeleTransport {
	return &TeleTransport{bot: bot}
}

// sendOptions leaves ReplyMarkup nil for plain text; an edit without markup
// removes the inline keyboard of the previous screen.
func sendOptions(content Content) *tele.SendOptions {
	return &tele.SendOptions{ReplyMarkup: content.Markup, DisableWebPagePreview: true}
}

func (t *TeleTransport) Send(_ context.Context, chatID int64, content Content) (int, error) {
	msg, err := t.bot.Send(tele.ChatID(chatID), content.Text, sendOptions(content))
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// Edit returns Unchanged with a nil error for "message is not modified".
// Other API errors come back as Failed together with the error.
func (t *TeleTransport) Edit(_ context.Context, chatID int64, messageID int, content Content) (EditResult, error) {
	ref := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	_, err := t.bot.Edit(ref, content.Text, sendOptions(content))
	switch {
	case err == nil:
		return Edited, nil
	case isNotModified(err):
		return Unchanged, nil
	default:
		return Failed, err
	}
}

func (t *TeleTransport) Delete(_ context.Context, chatID int64, messageID int) error {
	return t.bot.Delete(tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID})
}

func isNotModified(err error) bool {
	if errors.Is(err, tele.ErrMessageNotModified) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
