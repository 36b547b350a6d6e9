package helpers

import (
	"context"

	"github.com/m3rciful/sellerbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// ctxStoreKey is where the update's context.Context lives on tele.Context.
const ctxStoreKey = "logger_ctx"

// StoreContext replaces the context kept on c for the rest of the update.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxStoreKey, ctx)
	}
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxStoreKey).(context.Context)
	return ctx, ok
}

// ChatID returns the chat an update belongs to. Callback queries from inline
// messages carry no chat and report false.
func ChatID(c tele.Context) (int64, bool) {
	if c == nil || c.Chat() == nil {
		return 0, false
	}
	return c.Chat().ID, true
}

// BuildContext returns the update's context, creating it on first use with
// the rid and the update, user and chat ids attached.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}

	updateID := c.Update().ID
	chatID, _ := ChatID(c)
	var userID int64
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}

	ctx := logger.WithUpdateMeta(logger.WithRID(context.Background(), rid), updateID, userID, chatID)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler names the handler in the stored context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
