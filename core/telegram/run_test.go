package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/sellerbot/core/config"
)

// idlePoller delivers nothing and returns once stopped.
type idlePoller struct{}

func (idlePoller) Poll(_ *tele.Bot, _ chan tele.Update, stop chan struct{}) { <-stop }

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Token: "1:test", Offline: true, Synchronous: true, Poller: idlePoller{}})
	require.NoError(t, err)
	return bot
}

func TestRunTelegramInstallsRoutesAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	var stopped bool

	err := RunTelegram(ctx, RunOptions{
		Config: &coreconfig.Config{},
		Bot:    offlineBot(t),
		Middlewares: []Middleware{{Name: "trace", Use: func(next tele.HandlerFunc) tele.HandlerFunc {
			return func(c tele.Context) error {
				seen = append(seen, "mw")
				return next(c)
			}
		}}},
		Routes: []Route{{Endpoint: tele.OnText, Handler: func(c tele.Context) error {
			seen = append(seen, "text:"+c.Text())
			return nil
		}}},
		OnStart: func(_ context.Context, rt Runtime) error {
			require.NotNil(t, rt.Dispatcher)
			require.NotNil(t, rt.Registry)
			rt.Bot.ProcessUpdate(tele.Update{ID: 1, Message: &tele.Message{
				Text: "hello",
				Chat: &tele.Chat{ID: 5, Type: tele.ChatPrivate},
			}})
			cancel()
			return nil
		},
		OnStop: func(context.Context, Runtime) error {
			stopped = true
			return nil
		},
	})

	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, []string{"mw", "text:hello"}, seen)
}

func TestRunTelegramReturnsStartError(t *testing.T) {
	boom := errors.New("boom")
	err := RunTelegram(context.Background(), RunOptions{
		Config:  &coreconfig.Config{},
		Bot:     offlineBot(t),
		OnStart: func(context.Context, Runtime) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunTelegramRequiresConfig(t *testing.T) {
	assert.Error(t, RunTelegram(context.Background(), RunOptions{}))
}
