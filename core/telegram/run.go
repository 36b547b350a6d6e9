package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/sellerbot/core/config"
	"github.com/m3rciful/sellerbot/core/logger"
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/sellerbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const wireComponent = "tg.wire"

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint (a command, tele.OnText, ...).
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Bot is built with NewBot when nil.
	Bot *tele.Bot

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// KeepWebhook leaves a registered webhook in place when polling.
	KeepWebhook bool
	// OwnDispatcher skips installing the dispatcher for the send helpers.
	OwnDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks get to see.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// NewBot builds a bot with the poller and HTTP client derived from cfg.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config provided")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  BuildPoller(cfg),
		Client:  BuildHTTPClient(longPollTimeout(cfg)),
		OnError: logUnhandled,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

func logUnhandled(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "tg.unhandled_error", slog.String("err", err.Error()))
}

// RunTelegram installs middlewares and routes on the bot, publishes the
// command menu and serves updates until ctx is done. Cancellation is a
// clean stop and returns nil.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	rt, err := prepare(ctx, opts)
	if err != nil {
		return err
	}
	defer release(rt, opts)

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			rt.Bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			rt.Bot.Handle(route.Endpoint, route.Handler)
		}
	}
	logger.Debug(ctx, wireComponent, "wire.installed",
		slog.Int("middlewares", len(opts.Middlewares)),
		slog.Int("routes", len(opts.Routes)),
	)
	InitBotCommands(rt.Bot, rt.Registry)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := serve(ctx, rt.Bot)
	if opts.OnStop != nil {
		if err := opts.OnStop(ctx, rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// prepare resolves the bot, registry and dispatcher, then logs the update mode.
func prepare(ctx context.Context, opts RunOptions) (Runtime, error) {
	rt := Runtime{Bot: opts.Bot, Registry: opts.Registry, Dispatcher: opts.Dispatcher}
	if rt.Registry == nil {
		rt.Registry = NewRegistry()
	}

	start := time.Now()
	if rt.Bot == nil {
		bot, err := NewBot(opts.Config)
		if err != nil {
			return rt, err
		}
		rt.Bot = bot
	}
	took := logger.RoundMS(time.Since(start))

	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.OwnDispatcher {
		tghelpers.SetDispatcher(rt.Dispatcher)
	}

	switch p := rt.Bot.Poller.(type) {
	case *tele.Webhook:
		var publicURL string
		if p.Endpoint != nil {
			publicURL = p.Endpoint.PublicURL
		}
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", publicURL),
			slog.Duration("duration", took),
		)
	case *tele.LongPoller:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "polling"),
			slog.Duration("timeout", p.Timeout),
			slog.String("allowed_updates", fmt.Sprint(p.AllowedUpdates)),
			slog.Duration("duration", took),
		)
		if !opts.KeepWebhook {
			dropWebhook(ctx, rt.Bot)
		}
	default:
		logger.Info(ctx, "tg", "mode", slog.String("mode", fmt.Sprintf("%T", p)))
	}
	return rt, nil
}

// dropWebhook removes a webhook left by an earlier deployment; Telegram
// refuses getUpdates while one is set.
func dropWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, "tg", "delete_webhook", slog.String("status", "fail"), slog.String("err", err.Error()))
		return
	}
	logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
}

// serve runs the bot until it stops by itself or ctx is done.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	}
}

func release(rt Runtime, opts RunOptions) {
	rt.Dispatcher.Close()
	if !opts.OwnDispatcher {
		tghelpers.SetDispatcher(nil)
	}
}
