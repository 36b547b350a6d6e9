package helpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/sellerbot/core/logger"
	"github.com/m3rciful/sellerbot/core/telegram/sender"
)

type fakeContext struct {
	tele.Context
	upd   tele.Update
	store map[string]any
	sent  []any
}

func newFake(updateID int, chatID int64) *fakeContext {
	return &fakeContext{
		upd: tele.Update{ID: updateID, Message: &tele.Message{
			Sender: &tele.User{ID: chatID},
			Chat:   &tele.Chat{ID: chatID},
		}},
		store: map[string]any{},
	}
}

func (f *fakeContext) Update() tele.Update   { return f.upd }
func (f *fakeContext) Chat() *tele.Chat      { return f.upd.Message.Chat }
func (f *fakeContext) Sender() *tele.User    { return f.upd.Message.Sender }
func (f *fakeContext) Get(key string) any    { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }
func (f *fakeContext) Send(what any, _ ...any) error {
	f.sent = append(f.sent, what)
	return nil
}

func TestBuildContextIsCachedPerUpdate(t *testing.T) {
	c := newFake(3, 77)
	c.Set("rid", "rid-3")

	ctx := BuildContext(c)
	assert.Equal(t, "rid-3", logger.RIDFrom(ctx))
	assert.EqualValues(t, 77, logger.ChatIDFrom(ctx))
	assert.Equal(t, ctx, BuildContext(c))

	named := WithHandler(c, "callback.login")
	assert.Equal(t, "callback.login", logger.HandlerFrom(named))
	assert.Equal(t, named, BuildContext(c))
}

func TestChatIDWithoutChat(t *testing.T) {
	c := newFake(1, 5)
	c.upd.Message.Chat = nil
	_, ok := ChatID(c)
	assert.False(t, ok)
	_, ok = ChatID(nil)
	assert.False(t, ok)
}

func TestAsyncRunsInlineWithoutQueue(t *testing.T) {
	SetDispatcher(nil)
	c := newFake(1, 5)
	require.NoError(t, SendText(c, "hello"))
	assert.Equal(t, []any{"hello"}, c.sent)

	d := sender.NewDispatcher(sender.Options{Workers: 1})
	d.Close()
	SetDispatcher(d)
	t.Cleanup(func() { SetDispatcher(nil) })

	ran := false
	require.NoError(t, Async(context.Background(), "send.text", "sendMessage", func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran, "closed queue falls back to inline")
}

func TestCounters(t *testing.T) {
	ctx := WithCounters(context.Background())
	assert.Equal(t, ctx, WithCounters(ctx))
	CountMessage(ctx, false)
	CountMessage(ctx, true)
	n, kb := Counters(ctx)
	assert.Equal(t, 2, n)
	assert.True(t, kb)

	n, kb = Counters(context.Background())
	assert.Zero(t, n)
	assert.False(t, kb)
}
