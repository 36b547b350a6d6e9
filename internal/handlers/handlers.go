// Package handlers maps Telegram commands, callbacks and text to screens.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/sellerbot/core/logger"
	tg "github.com/m3rciful/sellerbot/core/telegram"
	"github.com/m3rciful/sellerbot/core/telegram/callbacks"
	"github.com/m3rciful/sellerbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/sellerbot/core/telegram/helpers"
	"github.com/m3rciful/sellerbot/core/telegram/router"
	"github.com/m3rciful/sellerbot/internal/login"
	"github.com/m3rciful/sellerbot/internal/profile"
	"github.com/m3rciful/sellerbot/internal/session"
	"github.com/m3rciful/sellerbot/internal/views"

	tele "gopkg.in/telebot.v4"
)

const component = "tg"

// Options wire Handlers.
type Options struct {
	Store    session.Store
	Screens  login.Screens
	Auth     *login.Machine
	Profiles *profile.Service
	// Browser makes the "auth" button start the interactive login when the
	// machine has one wired.
	Browser bool
	// WebAppURL, when set, adds the web organization picker to the switch screen.
	WebAppURL string
}

type Handlers struct {
	store     session.Store
	screens   login.Screens
	auth      *login.Machine
	profiles  *profile.Service
	browser   bool
	webAppURL string
}

func New(opts Options) *Handlers {
	return &Handlers{
		store:     opts.Store,
		screens:   opts.Screens,
		auth:      opts.Auth,
		profiles:  opts.Profiles,
		browser:   opts.Browser && opts.Auth.InteractiveEnabled(),
		webAppURL: opts.WebAppURL,
	}
}

// Register adds the /start command and every callback to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	if err := reg.RegisterCommand("/start", commands.Command{
		Handler:     h.chat(h.home),
		Description: "Open the main screen",
	}); err != nil {
		return fmt.Errorf("handlers: %w", err)
	}
	cbs := map[string]tele.HandlerFunc{
		views.CbHome:           h.chat(h.home),
		views.CbAuth:           h.chat(h.startAuth),
		views.CbRefresh:        h.chat(h.refresh),
		views.CbClose:          h.chat(h.close),
		views.CbLogout:         h.chat(h.auth.Logout),
		views.CbProfile:        h.chat(h.profileCard),
		views.CbProfileRefresh: h.chat(h.profileRefresh),
		views.CbProfileSwitch:  h.chat(h.profileSwitch),
		views.CbSetProfile:     h.setProfile,
	}
	for key, fn := range cbs {
		if err := reg.RegisterCallback(key, fn); err != nil {
			return fmt.Errorf("handlers: %w", err)
		}
	}
	reg.SetCallbackNotFound(h.chat(h.home))
	return nil
}

// Routes binds the registry and the login steps to bot endpoints.
func (h *Handlers) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(stepInput{m: h.auth}, reg, router.TextOptions{})...)
	return routes
}

// Limited answers an update the rate limiter dropped. A callback gets a toast.
// A message sent while a step is pending gets the prompt back asking to resend.
func (h *Handlers) Limited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: views.NoteSlowDown})
	}
	chatID, ok := tghelpers.ChatID(c)
	if !ok || c.Message() == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	reprompted, err := h.auth.Reprompt(ctx, chatID, views.NoteSlowDown)
	if err == nil && !reprompted {
		logger.Debug(ctx, component, "tg.rate_limit_ignored", slog.String("reason", "no pending step"))
	}
	return err
}

// stepInput feeds free text to the login machine while a step is pending.
type stepInput struct{ m *login.Machine }

func (s stepInput) InProgress(ctx context.Context, chatID int64) bool {
	return s.m.InProgress(ctx, chatID)
}

func (s stepInput) HandleInput(c tele.Context) error {
	chatID, ok := tghelpers.ChatID(c)
	if !ok {
		return nil
	}
	return s.m.SubmitStepInput(tghelpers.BuildContext(c), chatID, c.Text())
}

func (h *Handlers) chat(fn func(ctx context.Context, chatID int64) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		chatID, ok := tghelpers.ChatID(c)
		if !ok {
			return nil
		}
		return fn(tghelpers.BuildContext(c), chatID)
	}
}

func (h *Handlers) home(ctx context.Context, chatID int64) error {
	s, err := h.store.Get(ctx, chatID)
	if err != nil {
		return err
	}
	_, err = h.screens.RenderInPlace(ctx, chatID, session.ViewHome, views.Home(s, ""))
	return err
}

func (h *Handlers) startAuth(ctx context.Context, chatID int64) error {
	if h.browser {
		return h.auth.InteractiveLogin(ctx, chatID)
	}
	return h.auth.StartAuth(ctx, chatID)
}

func (h *Handlers) close(ctx context.Context, chatID int64) error {
	_, err := h.screens.RenderInPlace(ctx, chatID, session.ViewClosed, views.Closed())
	return err
}

// refresh redraws the current view. The profile card is re-fetched and
// replaced, a pending step is re-prompted, everything else goes home.
func (h *Handlers) refresh(ctx context.Context, chatID int64) error {
	s, err := h.store.Get(ctx, chatID)
	if err != nil {
		return err
	}
	logger.Debug(ctx, component, "view.refresh", slog.String("view", string(s.CurrentView)))
	switch {
	case s.CurrentView == session.ViewProfile:
		return h.profileRefresh(ctx, chatID)
	case s.CurrentView == session.ViewProfileSwitch:
		return h.profileSwitch(ctx, chatID)
	case s.CurrentView.Pending():
		_, err := h.auth.Reprompt(ctx, chatID, "")
		return err
	default:
		_, err := h.screens.RenderInPlace(ctx, chatID, session.ViewHome, views.Home(s, ""))
		return err
	}
}

// ProfileChanged redraws the profile card if the chat is looking at the
// profile screens. Used after a selection made outside the chat.
func (h *Handlers) ProfileChanged(ctx context.Context, chatID int64) {
	s, err := h.store.Get(ctx, chatID)
	if err != nil {
		logger.Warn(ctx, component, "profiles.redraw_failed", slog.String("err", err.Error()))
		return
	}
	if s.CurrentView != session.ViewProfile && s.CurrentView != session.ViewProfileSwitch {
		return
	}
	if err := h.profileCard(ctx, chatID); err != nil {
		logger.Warn(ctx, component, "profiles.redraw_failed", slog.String("err", err.Error()))
	}
}

func (h *Handlers) profileCard(ctx context.Context, chatID int64) error {
	s, err := h.store.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if !s.IsAuthorized {
		_, err := h.screens.RenderInPlace(ctx, chatID, session.ViewHome, views.Home(s, ""))
		return err
	}
	_, err = h.screens.RenderInPlace(ctx, chatID, session.ViewProfile, views.Profile(s, ""))
	return err
}

// profileRefresh re-fetches organizations and draws the card on a fresh anchor.
// A failed fetch keeps the cached list and says so in place.
func (h *Handlers) profileRefresh(ctx context.Context, chatID int64) error {
	s, err := h.profiles.Refresh(ctx, chatID)
	switch {
	case errors.Is(err, profile.ErrNotAuthorized):
		return h.home(ctx, chatID)
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn(ctx, component, "profiles.refresh_failed", slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		cached, getErr := h.store.Get(ctx, chatID)
		if getErr != nil {
			return getErr
		}
		_, err = h.screens.RenderInPlace(ctx, chatID, session.ViewProfile, views.Profile(cached, views.NotePortalUnavailable))
		return err
	}
	_, err = h.screens.ReplaceAnchor(ctx, chatID, session.ViewProfile, views.Profile(s, ""))
	return err
}

func (h *Handlers) profileSwitch(ctx context.Context, chatID int64) error {
	s, err := h.store.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if !s.IsAuthorized {
		_, err := h.screens.RenderInPlace(ctx, chatID, session.ViewHome, views.Home(s, ""))
		return err
	}
	_, err = h.screens.RenderInPlace(ctx, chatID, session.ViewProfileSwitch, views.ProfileSwitch(s, h.webAppURL))
	return err
}

func (h *Handlers) setProfile(c tele.Context) error {
	chatID, ok := tghelpers.ChatID(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	id := callbacks.CallbackPayload(c)

	s, err := h.profiles.Select(ctx, chatID, id)
	switch {
	case errors.Is(err, profile.ErrNotAuthorized):
		return h.home(ctx, chatID)
	case errors.Is(err, profile.ErrUnknownProfile):
		cur, getErr := h.store.Get(ctx, chatID)
		if getErr != nil {
			return getErr
		}
		_, err = h.screens.RenderInPlace(ctx, chatID, session.ViewProfile, views.Profile(cur, views.NoteUnknownProfile))
		return err
	case err != nil:
		return err
	}
	_, err = h.screens.RenderInPlace(ctx, chatID, session.ViewProfile, views.Profile(s, ""))
	return err
}
