package router

import (
	"context"
	"time"

	tg "github.com/m3rciful/sellerbot/core/telegram"
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// FSM receives free text while a multi-step dialog is pending for the chat.
type FSM interface {
	InProgress(ctx context.Context, chatID int64) bool
	HandleInput(c tele.Context) error
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the handler for plain text messages.
// Text goes to the FSM first, then to commands typed without the menu, then to fallbacks.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if chatID, ok := tghelpers.ChatID(c); fsm != nil && ok {
			if fsm.InProgress(tghelpers.BuildContext(c), chatID) {
				return newSummary("fsm", start).run(c, fsm.HandleInput)
			}
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return newSummary(name, start).run(c, cmd.Handler)
			}
			if fb := reg.TextFallback(); fb != nil {
				return newSummary("fallback", start).run(c, fb)
			}
		}

		if opts.UnknownText != nil {
			return newSummary("unknown_text", start).run(c, opts.UnknownText)
		}

		s := newSummary("unknown_text", start).skipped()
		s.outcome = "ok"
		s.log(c, nil)
		return nil
	}

	return []tg.Route{{Endpoint: tele.OnText, Handler: handler}}
}
