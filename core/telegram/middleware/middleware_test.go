package middleware

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	upd   tele.Update
	store map[string]interface{}
	sent     []interface{}
	answered int
}

func newMessageContext(updateID int, chatID int64, text string) *fakeContext {
	user := &tele.User{ID: chatID}
	return &fakeContext{
		upd: tele.Update{ID: updateID, Message: &tele.Message{
			Sender: user,
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
			Text:   text,
		}},
		store: map[string]interface{}{},
	}
}

func newCallbackContext(updateID int, chatID int64, data string) *fakeContext {
	return &fakeContext{
		upd: tele.Update{ID: updateID, Callback: &tele.Callback{
			Sender:  &tele.User{ID: chatID},
			Message: &tele.Message{ID: 3, Chat: &tele.Chat{ID: chatID, Type: tele.ChatPrivate}},
			Data:    data,
		}},
		store: map[string]interface{}{},
	}
}

func (f *fakeContext) Update() tele.Update        { return f.upd }
func (f *fakeContext) Callback() *tele.Callback   { return f.upd.Callback }
func (f *fakeContext) Text() string               { return f.upd.Message.Text }
func (f *fakeContext) Get(key string) interface{} { return f.store[key] }
func (f *fakeContext) Set(key string, val interface{}) {
	f.store[key] = val
}

func (f *fakeContext) Sender() *tele.User {
	if f.upd.Message != nil {
		return f.upd.Message.Sender
	}
	if f.upd.Callback != nil {
		return f.upd.Callback.Sender
	}
	return nil
}

func (f *fakeContext) Chat() *tele.Chat {
	if f.upd.Message != nil {
		return f.upd.Message.Chat
	}
	if f.upd.Callback != nil && f.upd.Callback.Message != nil {
		return f.upd.Callback.Message.Chat
	}
	return nil
}

func (f *fakeContext) Respond(...*tele.CallbackResponse) error {
	f.answered++
	return nil
}

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

func TestChatSerializerRunsSameChatSequentially(t *testing.T) {
	s := NewChatSerializer()
	var (
		active  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	h := s.Middleware(func(tele.Context) error {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = h(newMessageContext(i, 42, "x"))
		}(i)
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	assert.Zero(t, s.Pending())
}

func TestChatSerializerAllowsDifferentChats(t *testing.T) {
	s := NewChatSerializer()
	unlockA := s.Lock(1)
	done := make(chan struct{})
	go func() {
		unlockB := s.Lock(2)
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for another chat blocked")
	}
	unlockA()
}

func TestRateLimitMiddlewareLimitsPerUser(t *testing.T) {
	var limited, handled int
	mw := RateLimitMiddleware(RateLimitOptions{
		RPS:   0.001,
		Burst: 1,
		OnLimited: func(tele.Context) error {
			limited++
			return nil
		},
	})
	h := mw(func(tele.Context) error {
		handled++
		return nil
	})

	require.NoError(t, h(newMessageContext(1, 7, "a")))
	require.NoError(t, h(newMessageContext(2, 7, "b")))
	require.NoError(t, h(newMessageContext(3, 8, "c")))

	assert.Equal(t, 2, handled)
	assert.Equal(t, 1, limited)
}

func TestRateLimitMiddlewareHonoursExclusions(t *testing.T) {
	handled := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		RPS:     0.001,
		Burst:   1,
		Exclude: map[string]struct{}{"message": {}},
	})
	h := mw(func(tele.Context) error {
		handled++
		return nil
	})
	for i := 0; i < 3; i++ {
		require.NoError(t, h(newMessageContext(i, 7, "a")))
	}
	assert.Equal(t, 3, handled)
}

func TestNotifyErrorsSendsGenericMessage(t *testing.T) {
	c := newMessageContext(1, 9, "hi")
	h := NotifyErrors("")(func(tele.Context) error {
		return errors.New("edit failed")
	})

	require.NoError(t, h(c))
	require.Len(t, c.sent, 1)
	assert.Equal(t, DefaultErrorText, c.sent[0])
}

func TestNotifyErrorsDoesNotAnswerCallbackTwice(t *testing.T) {
	c := newCallbackContext(2, 9, "\fhome")
	h := NotifyErrors("")(func(c tele.Context) error {
		_ = c.Respond()
		return errors.New("render failed")
	})

	require.NoError(t, h(c))
	assert.Equal(t, 1, c.answered)
	require.Len(t, c.sent, 1)
	assert.Equal(t, DefaultErrorText, c.sent[0])
}

func TestRecoverMiddlewareReturnsError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error {
		panic("boom")
	})
	err := h(newMessageContext(1, 9, "hi"))
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "boom", panicErr.Value)
	assert.Equal(t, "HANDLER_PANIC", panicErr.Code())
}

func TestLoggerMiddlewareSetsRIDOnce(t *testing.T) {
	c := newMessageContext(5, 11, "hello")
	calls := 0
	h := LoggerMiddleware(LoggerMiddleware(func(tele.Context) error {
		calls++
		return nil
	}))
	require.NoError(t, h(c))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "5:11:11", c.store["rid"])
}

func TestReceiptAttrsOmitMessageText(t *testing.T) {
	c := newMessageContext(7, 42, "123456")
	for _, a := range receiptAttrs(c, "7:42:42") {
		assert.NotEqual(t, "123456", a.Value.String(), a.Key)
	}

	attrs := map[string]string{}
	for _, a := range receiptAttrs(newMessageContext(8, 42, "/start@seller_bot now"), "8:42:42") {
		attrs[a.Key] = a.Value.String()
	}
	assert.Equal(t, "/start", attrs["command"])
	assert.Equal(t, "21", attrs["text_len"])
}

func TestCommandName(t *testing.T) {
	cases := map[string]string{
		"/start":         "/start",
		"/logout please": "/logout",
		"/menu@some_bot": "/menu",
		"/":              "",
		"+79991234567":   "",
		"":               "",
	}
	for text, want := range cases {
		got, ok := commandName(text)
		assert.Equal(t, want != "", ok, text)
		assert.Equal(t, want, got, text)
	}
}

func TestReceiptsLogEachUpdateOnce(t *testing.T) {
	r := &receipts{seen: map[int]time.Time{}, ttl: time.Second}
	now := time.Now()
	assert.True(t, r.first(1, now))
	assert.False(t, r.first(1, now.Add(500*time.Millisecond)))
	assert.True(t, r.first(2, now))
	assert.True(t, r.first(1, now.Add(3*time.Second)))
	assert.NotContains(t, r.seen, 2)
}
