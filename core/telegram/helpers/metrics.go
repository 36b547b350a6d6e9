package helpers

import (
	"context"
	"sync/atomic"
)

type countersKey struct{}

type counters struct {
	messages atomic.Int32
	kb       atomic.Bool
}

// WithCounters attaches per-update outbound message counters to ctx.
func WithCounters(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Value(countersKey{}).(*counters); ok {
		return ctx
	}
	return context.WithValue(ctx, countersKey{}, &counters{})
}

// CountMessage records one outbound message (sent or edited) for the update in ctx.
func CountMessage(ctx context.Context, hasKeyboard bool) {
	if ctx == nil {
		return
	}
	c, ok := ctx.Value(countersKey{}).(*counters)
	if !ok {
		return
	}
	c.messages.Add(1)
	if hasKeyboard {
		c.kb.Store(true)
	}
}

// Counters returns the number of outbound messages and whether any carried a keyboard.
func Counters(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	c, ok := ctx.Value(countersKey{}).(*counters)
	if !ok {
		return 0, false
	}
	return int(c.messages.Load()), c.kb.Load()
}
