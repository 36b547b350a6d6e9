// Package app wires configuration, storage, the portal client and the bot
// handlers into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/sellerbot/core/bootstrap"
	corecmd "github.com/m3rciful/sellerbot/core/cmd"
	"github.com/m3rciful/sellerbot/core/logger"
	tg "github.com/m3rciful/sellerbot/core/telegram"
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"
	"github.com/m3rciful/sellerbot/core/telegram/middleware"
	"github.com/m3rciful/sellerbot/internal/anchor"
	"github.com/m3rciful/sellerbot/internal/config"
	"github.com/m3rciful/sellerbot/internal/handlers"
	"github.com/m3rciful/sellerbot/internal/login"
	"github.com/m3rciful/sellerbot/internal/portal"
	"github.com/m3rciful/sellerbot/internal/profile"
	"github.com/m3rciful/sellerbot/internal/session"
	"github.com/m3rciful/sellerbot/internal/webapp"
)

// Store is what the app needs from session storage.
type Store interface {
	session.Store
	session.PortalStore
}

// App holds the wired runtime.
type App struct {
	cfg      *config.Config
	db       *sqlx.DB
	bot      *tele.Bot
	registry *tg.Registry
	handlers *handlers.Handlers
	webapp   *webapp.Server
	// serial orders chat updates and web app selections of the same chat.
	serial *middleware.ChatSerializer
}

// Bootstrap adapts New to the core runner.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	return New(cfg)
}

// New initializes logging and storage, then builds every service.
func New(cfg *config.Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, db: res.DB}

	var store Store
	if res.DB != nil {
		store = session.NewSQLStore(res.DB)
	} else {
		store = session.NewMemoryStore()
		logger.Warn(context.Background(), "db", "store.memory", slog.String("reason", "sessions are not persisted"))
	}

	a.bot, err = tg.NewBot(cfg.CoreConfig())
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(store, anchor.NewTeleTransport(a.bot)); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// wire builds the services over store and transport.
func (a *App) wire(store Store, transport anchor.Transport) error {
	cfg := a.cfg
	a.serial = middleware.NewChatSerializer()
	factory, err := portal.NewFactory(portal.Options{
		BaseURL:           cfg.Portal.BaseURL,
		RetryAttempts:     cfg.Portal.RetryAttempts,
		RetryBaseDelay:    cfg.Portal.RetryBaseDelay,
		RequestsPerSecond: cfg.Portal.RequestsPerSecond,
		RequestTimeout:    cfg.Portal.RequestTimeout,
		UserAgent:         cfg.Portal.UserAgent,
	}, store)
	if err != nil {
		return err
	}

	var interactive login.Interactive
	if cfg.Portal.LoginMode == config.LoginBrowser {
		interactive = portal.NewBrowserLogin(portal.BrowserOptions{
			AuthURL:        cfg.Portal.AuthURL,
			Headless:       cfg.Portal.Browser.Headless,
			UserDataDir:    cfg.Portal.Browser.UserDataDir,
			SessionCookies: cfg.Portal.Browser.SessionCookies,
			PollInterval:   cfg.Portal.Browser.PollInterval,
		}, factory)
	}

	renderer := anchor.NewRenderer(store, transport)
	machine := login.New(login.Options{
		Store:   store,
		Screens: renderer,
		Backends: login.OpenerFunc(func(ctx context.Context, chatID int64) (login.Backend, error) {
			c, err := factory.Open(ctx, chatID)
			if err != nil {
				return nil, err
			}
			return c, nil
		}),
		Interactive:        interactive,
		InteractiveTimeout: cfg.Portal.InteractiveTimeout,
	})
	profiles := profile.NewService(store, profile.OpenerFunc(func(ctx context.Context, chatID int64) (profile.Backend, error) {
		c, err := factory.Open(ctx, chatID)
		if err != nil {
			return nil, err
		}
		return c, nil
	}))

	a.handlers = handlers.New(handlers.Options{
		Store:     store,
		Screens:   renderer,
		Auth:      machine,
		Profiles:  profiles,
		Browser:   cfg.Portal.LoginMode == config.LoginBrowser,
		WebAppURL: cfg.PickerURL(),
	})
	a.registry = tg.NewRegistry()
	if err := a.handlers.Register(a.registry); err != nil {
		return err
	}

	if cfg.WebApp.Enabled {
		a.webapp = webapp.New(webapp.Options{
			Listen:         cfg.WebApp.Listen,
			BotToken:       cfg.Telegram.Token,
			InitDataTTL:    cfg.WebApp.InitDataTTL,
			AllowedOrigins: cfg.WebApp.AllowedOrigins,
			Store:          store,
			Profiles:       profiles,
			OnSelected:     a.handlers.ProfileChanged,
			Locker:         a.serial,
		})
	}
	return nil
}

// TelegramRunOptions implements corecmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	return tg.RunOptions{
		Config:   core,
		Registry: a.registry,
		Bot:      a.bot,
		Middlewares: tg.DefaultMiddlewares(core, tg.MiddlewareOptions{
			Serializer: a.serial,
			OnLimited:  a.limited,
		}),
		Routes: a.handlers.Routes(a.registry),
	}, nil
}

// limited runs outside the chat serializer, so it takes the chat lock itself.
func (a *App) limited(c tele.Context) error {
	if chatID, ok := tghelpers.ChatID(c); ok {
		unlock := a.serial.Lock(chatID)
		defer unlock()
	}
	return a.handlers.Limited(c)
}

// Services implements corecmd.ServiceProvider.
func (a *App) Services() []corecmd.Service {
	if a.webapp == nil {
		return nil
	}
	return []corecmd.Service{a.webapp.Run}
}

// Close implements corecmd.Closer.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
