package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/sellerbot/core/logger"
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// PanicError is returned for an update whose handler panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Code reports HANDLER_PANIC as the err_code of the handler summary.
func (e *PanicError) Code() string { return "HANDLER_PANIC" }

// RecoverMiddleware turns a handler panic into a *PanicError and logs the stack.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("err", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			err = &PanicError{Value: r}
		}()
		return next(c)
	}
}
