package middleware

import (
	"log/slog"

	"github.com/m3rciful/sellerbot/core/logger"
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// DefaultErrorText is shown to the user when a handler fails unexpectedly.
const DefaultErrorText = "⚠️ Something went wrong. Please try again a bit later."

// NotifyErrors logs handler failures and sends the user one generic message.
// The error is swallowed so Telebot does not report it a second time.
// Callbacks are answered by their route before the handler runs, so the
// message goes to the chat rather than a toast.
func NotifyErrors(text string) tele.MiddlewareFunc {
	if text == "" {
		text = DefaultErrorText
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			ctx := tghelpers.BuildContext(c)
			logger.Error(ctx, "tg", "handler.error",
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			if c.Chat() != nil {
				if sendErr := tghelpers.SendText(c, text); sendErr != nil {
					logger.Warn(ctx, "tg", "handler.error.notify_failed",
						slog.String("err", sendErr.Error()),
					)
				}
			}
			return nil
		}
	}
}
