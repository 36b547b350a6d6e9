package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/sellerbot/core/logger"
	"github.com/m3rciful/sellerbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher installs the queue Async hands work to; nil runs work inline.
func SetDispatcher(d *sender.Dispatcher) { dispatcher.Store(d) }

// Async queues run on the installed dispatcher. Without one, or when the
// queue is full or closed, run executes inline so the call is never lost.
func Async(ctx context.Context, action, endpoint string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	err := d.Enqueue(ctx, action, endpoint, run)
	if !errors.Is(err, sender.ErrQueueFull) && !errors.Is(err, sender.ErrQueueClosed) {
		return err
	}
	logger.Warn(ctx, "tg.sender", "queue.fallback",
		slog.String("action", action),
		slog.String("endpoint", endpoint),
		slog.String("err", err.Error()),
	)
	return run()
}

// SendText queues a plain-text message (no parse mode) to the current chat.
// opts are passed to c.Send as is.
func SendText(c tele.Context, text string, opts ...any) error {
	return Async(BuildContext(c), "send.text", "sendMessage", func() error {
		return c.Send(text, opts...)
	})
}
