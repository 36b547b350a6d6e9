package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/sellerbot/core/telegram"
	"github.com/m3rciful/sellerbot/core/telegram/commands"
)

type fakeContext struct {
	tele.Context
	upd       tele.Update
	store     map[string]interface{}
	responded int
}

func newContext(upd tele.Update) *fakeContext {
	return &fakeContext{upd: upd, store: map[string]interface{}{}}
}

func textUpdate(chatID int64, text string) tele.Update {
	return tele.Update{ID: 1, Message: &tele.Message{
		Sender: &tele.User{ID: chatID},
		Chat:   &tele.Chat{ID: chatID},
		Text:   text,
	}}
}

func callbackUpdate(chatID int64, data string) tele.Update {
	return tele.Update{ID: 2, Callback: &tele.Callback{
		Sender:  &tele.User{ID: chatID},
		Message: &tele.Message{Chat: &tele.Chat{ID: chatID}},
		Data:    data,
	}}
}

func (f *fakeContext) Update() tele.Update                     { return f.upd }
func (f *fakeContext) Callback() *tele.Callback                { return f.upd.Callback }
func (f *fakeContext) Get(key string) interface{}              { return f.store[key] }
func (f *fakeContext) Set(key string, val interface{})         { f.store[key] = val }
func (f *fakeContext) Respond(...*tele.CallbackResponse) error { f.responded++; return nil }

func (f *fakeContext) Text() string {
	if f.upd.Message != nil {
		return f.upd.Message.Text
	}
	return ""
}

func (f *fakeContext) Sender() *tele.User {
	switch {
	case f.upd.Message != nil:
		return f.upd.Message.Sender
	case f.upd.Callback != nil:
		return f.upd.Callback.Sender
	}
	return nil
}

func (f *fakeContext) Chat() *tele.Chat {
	switch {
	case f.upd.Message != nil:
		return f.upd.Message.Chat
	case f.upd.Callback != nil && f.upd.Callback.Message != nil:
		return f.upd.Callback.Message.Chat
	}
	return nil
}

type fakeFSM struct {
	pending bool
	inputs  []string
}

func (f *fakeFSM) InProgress(context.Context, int64) bool { return f.pending }
func (f *fakeFSM) HandleInput(c tele.Context) error {
	f.inputs = append(f.inputs, c.Text())
	return nil
}

func TestTextRoutesPrefersPendingFSM(t *testing.T) {
	fsm := &fakeFSM{pending: true}
	routes := TextRoutes(fsm, tg.NewRegistry(), TextOptions{})
	require.Len(t, routes, 1)

	require.NoError(t, routes[0].Handler(newContext(textUpdate(5, "+79991234567"))))
	assert.Equal(t, []string{"+79991234567"}, fsm.inputs)
}

func TestTextRoutesIgnoresTextWithoutPendingStep(t *testing.T) {
	fsm := &fakeFSM{}
	unknown := 0
	routes := TextRoutes(fsm, tg.NewRegistry(), TextOptions{UnknownText: func(tele.Context) error {
		unknown++
		return nil
	}})

	require.NoError(t, routes[0].Handler(newContext(textUpdate(5, "hello"))))
	assert.Empty(t, fsm.inputs)
	assert.Equal(t, 1, unknown)
}

func TestTextRoutesFallsBackToCommands(t *testing.T) {
	reg := tg.NewRegistry()
	started := 0
	require.NoError(t, reg.RegisterCommand("/start", commands.Command{Description: "home", Handler: func(tele.Context) error {
		started++
		return nil
	}}))
	routes := TextRoutes(&fakeFSM{}, reg, TextOptions{})

	require.NoError(t, routes[0].Handler(newContext(textUpdate(5, "start"))))
	assert.Equal(t, 1, started)
}

func TestCallbackRouteDispatchesByKey(t *testing.T) {
	reg := tg.NewRegistry()
	var payload string
	require.NoError(t, reg.RegisterCallback("set_profile", func(c tele.Context) error {
		payload = "called"
		return nil
	}))
	route := CallbackRoute(reg, CallbackOptions{})

	c := newContext(callbackUpdate(5, "\fset_profile|org-1"))
	require.NoError(t, route.Handler(c))
	assert.Equal(t, "called", payload)
	assert.Equal(t, 1, c.responded)
}

func TestCallbackRouteUnknownKeyUsesFallback(t *testing.T) {
	notFound := 0
	route := CallbackRoute(tg.NewRegistry(), CallbackOptions{NotFound: func(tele.Context) error {
		notFound++
		return nil
	}})
	require.NoError(t, route.Handler(newContext(callbackUpdate(5, "\fmissing"))))
	assert.Equal(t, 1, notFound)
}

type codedErr struct{}

func (codedErr) Error() string { return "x" }
func (codedErr) Code() string  { return "portal rejected" }

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "PORTAL_REJECTED", deriveErrorCode(codedErr{}))
	assert.Equal(t, "", deriveErrorCode(nil))
	assert.NotEmpty(t, deriveErrorCode(errors.New("plain")))
}
