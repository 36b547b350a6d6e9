package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/sellerbot/core/telegram"
	"github.com/m3rciful/sellerbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound handles unknown keys; the registry fallback is used when nil.
	NotFound tele.HandlerFunc
}

// CallbackRoute routes callback queries to the handler registered for the
// unique part of their data. Every query is answered before the handler
// runs so the client spinner stops at once.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler: func(c tele.Context) error {
			cb := c.Callback()
			if cb == nil {
				return nil
			}
			start := time.Now()
			key, payload := callbacks.ParseCallbackData(cb)
			attrs := []slog.Attr{slog.String("cb_key", key)}
			if payload != "" {
				attrs = append(attrs, slog.String("payload", payload))
			}
			_ = c.Respond()

			s := newSummary("callback."+normalizeHandlerName(key), start, attrs...)
			h, ok := reg.GetCallback(key)
			if !ok || h == nil {
				s = s.skipped()
				s.extras = append(s.extras, slog.String("cause", "not_found"))
				h = notFound(reg, opts)
			}
			return s.run(c, h)
		},
	}
}

func notFound(reg *tg.Registry, opts CallbackOptions) tele.HandlerFunc {
	if opts.NotFound != nil {
		return opts.NotFound
	}
	if fb := reg.CallbackNotFound(); fb != nil {
		return fb
	}
	return func(tele.Context) error { return nil }
}
