// Package login drives the phone, SMS code and e-mail code login of a chat
// against the partner portal. The current step is the chat's stored view.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/sellerbot/core/logger"
	"github.com/m3rciful/sellerbot/internal/anchor"
	"github.com/m3rciful/sellerbot/internal/portal"
	"github.com/m3rciful/sellerbot/internal/session"
	"github.com/m3rciful/sellerbot/internal/views"
)

const component = "service.auth"

// DefaultInteractiveTimeout bounds a browser login.
const DefaultInteractiveTimeout = 420 * time.Second

// Backend is one chat's portal session for the duration of a handler call.
type Backend interface {
	PrimeSession(ctx context.Context) error
	SubmitPhone(ctx context.Context, phone string) error
	SubmitSMSCode(ctx context.Context, phone, code string) error
	SubmitEmailCode(ctx context.Context, code string) error
	CheckSessionValid(ctx context.Context) (bool, error)
	ListOrganizations(ctx context.Context) ([]session.Profile, error)
	Logout(ctx context.Context) error
	Close() error
}

// Opener creates a Backend for a chat.
type Opener interface {
	Open(ctx context.Context, chatID int64) (Backend, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, chatID int64) (Backend, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, chatID int64) (Backend, error) { return f(ctx, chatID) }

// Interactive is a login the user completes outside the chat, e.g. in a browser.
// Run returns nil once the chat's portal session is valid and saved.
type Interactive interface {
	Run(ctx context.Context, chatID int64) error
}

// Screens is the rendering surface the machine draws on.
type Screens interface {
	RenderInPlace(ctx context.Context, chatID int64, view session.View, content anchor.Content) (int, error)
	ReplaceAnchor(ctx context.Context, chatID int64, view session.View, content anchor.Content) (int, error)
}

// Options wire a Machine.
type Options struct {
	Store       session.Store
	Screens     Screens
	Backends    Opener
	Interactive Interactive
	// InteractiveTimeout defaults to DefaultInteractiveTimeout.
	InteractiveTimeout time.Duration
}

// Machine is the login state machine. It keeps no per-chat state of its own.
type Machine struct {
	store       session.Store
	screens     Screens
	backends    Opener
	interactive Interactive
	timeout     time.Duration
}

// New builds a Machine.
func New(opts Options) *Machine {
	timeout := opts.InteractiveTimeout
	if timeout <= 0 {
		timeout = DefaultInteractiveTimeout
	}
	return &Machine{
		store:       opts.Store,
		screens:     opts.Screens,
		backends:    opts.Backends,
		interactive: opts.Interactive,
		timeout:     timeout,
	}
}

// InteractiveEnabled reports whether a browser login is wired.
func (m *Machine) InteractiveEnabled() bool { return m.interactive != nil }

// InProgress reports whether chatID waits for step input.
func (m *Machine) InProgress(ctx context.Context, chatID int64) bool {
	s, err := m.store.Get(ctx, chatID)
	if err != nil {
		logger.Warn(ctx, component, "auth.state_failed", slog.String("err", err.Error()))
		return false
	}
	return s.CurrentView.Pending()
}

// StartAuth enters the login flow. An authorized chat gets the "already logged
// in" screen. A portal session that is already valid is adopted without steps.
// Otherwise the phone prompt is shown; a failed priming only annotates it.
func (m *Machine) StartAuth(ctx context.Context, chatID int64) error {
	s, err := m.store.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if s.IsAuthorized {
		_, err := m.screens.RenderInPlace(ctx, chatID, session.ViewLoggedIn, views.LoggedIn())
		return err
	}

	note := ""
	b, err := m.backends.Open(ctx, chatID)
	if err != nil {
		logger.Warn(ctx, component, "auth.backend_open_failed", slog.String("err", err.Error()))
		note = views.NotePortalUnavailable
	} else {
		defer m.close(ctx, b)
		valid, err := b.CheckSessionValid(ctx)
		if err != nil {
			logger.Info(ctx, component, "auth.session_check_failed", slog.String("err", err.Error()))
		}
		if valid {
			logger.Info(ctx, component, "auth.session_adopted")
			return m.finalize(ctx, chatID, b, session.ViewLoggedIn)
		}
		if err := b.PrimeSession(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn(ctx, component, "auth.prime_failed", slog.String("err", err.Error()))
			note = views.NotePortalUnavailable
		}
	}

	if _, err := m.store.Upsert(ctx, chatID, session.Patch{PendingPhone: session.Ptr("")}); err != nil {
		return err
	}
	logger.Info(ctx, component, "auth.started", slog.String("step", string(session.ViewAuthPhone)))
	_, err = m.screens.RenderInPlace(ctx, chatID, session.ViewAuthPhone, views.PhonePrompt(note))
	return err
}

// SubmitStepInput feeds text to the pending step. Input for a chat with no
// pending step is ignored. Invalid input re-prompts without a portal call;
// a portal failure re-prompts the same step with an annotation.
func (m *Machine) SubmitStepInput(ctx context.Context, chatID int64, input string) error {
	s, err := m.store.Get(ctx, chatID)
	if err != nil {
		return err
	}
	switch s.CurrentView {
	case session.ViewAuthPhone:
		return m.submitPhone(ctx, s, input)
	case session.ViewAuthSMS:
		return m.submitSMSCode(ctx, s, input)
	case session.ViewAuthEmailCode:
		return m.submitEmailCode(ctx, s, input)
	default:
		logger.Debug(ctx, component, "auth.input_ignored", slog.String("view", string(s.CurrentView)))
		return nil
	}
}

func (m *Machine) submitPhone(ctx context.Context, s *session.ChatSession, input string) error {
	phone, err := CanonicalPhone(input)
	if err != nil {
		m.logStep(ctx, session.ViewAuthPhone, "invalid", err)
		return m.reprompt(ctx, s, views.NoteInvalidPhone)
	}
	masked := slog.String("phone", logger.MaskPhone(phone))

	err = m.withBackend(ctx, s.ChatID, func(b Backend) error {
		return b.SubmitPhone(ctx, phone)
	})
	if err != nil {
		return m.stepFailed(ctx, s, session.ViewAuthPhone, err, masked)
	}

	if _, err := m.store.Upsert(ctx, s.ChatID, session.Patch{PendingPhone: session.Ptr(phone)}); err != nil {
		return err
	}
	m.logStep(ctx, session.ViewAuthPhone, "ok", nil, masked)
	_, err = m.screens.RenderInPlace(ctx, s.ChatID, session.ViewAuthSMS, views.SMSPrompt(phone, ""))
	return err
}

func (m *Machine) submitSMSCode(ctx context.Context, s *session.ChatSession, input string) error {
	code := strings.TrimSpace(input)
	if !ValidSMSCode(code) {
		m.logStep(ctx, session.ViewAuthSMS, "invalid", ErrInvalidInput)
		return m.reprompt(ctx, s, views.NoteInvalidCode)
	}
	if s.PendingPhone == "" {
		m.logStep(ctx, session.ViewAuthSMS, "no_phone", nil)
		_, err := m.screens.RenderInPlace(ctx, s.ChatID, session.ViewAuthPhone, views.PhonePrompt(views.NoteSessionExpired))
		return err
	}

	err := m.withBackend(ctx, s.ChatID, func(b Backend) error {
		return b.SubmitSMSCode(ctx, s.PendingPhone, code)
	})
	if err != nil {
		return m.stepFailed(ctx, s, session.ViewAuthSMS, err)
	}
	m.logStep(ctx, session.ViewAuthSMS, "ok", nil)
	_, err = m.screens.RenderInPlace(ctx, s.ChatID, session.ViewAuthEmailCode, views.EmailCodePrompt(""))
	return err
}

func (m *Machine) submitEmailCode(ctx context.Context, s *session.ChatSession, input string) error {
	code := strings.TrimSpace(input)
	if code == "" {
		m.logStep(ctx, session.ViewAuthEmailCode, "invalid", ErrInvalidInput)
		return m.reprompt(ctx, s, views.NoteEmptyCode)
	}

	b, err := m.backends.Open(ctx, s.ChatID)
	if err != nil {
		return m.stepFailed(ctx, s, session.ViewAuthEmailCode, fmt.Errorf("%w: %v", portal.ErrUnavailable, err))
	}
	defer m.close(ctx, b)

	if err := b.SubmitEmailCode(ctx, code); err != nil {
		return m.stepFailed(ctx, s, session.ViewAuthEmailCode, err)
	}
	m.logStep(ctx, session.ViewAuthEmailCode, "ok", nil)
	return m.finalize(ctx, s.ChatID, b, session.ViewHome)
}

// finalize records a confirmed login and draws view on a fresh anchor.
// A failed organization listing leaves the profile list empty.
func (m *Machine) finalize(ctx context.Context, chatID int64, b Backend, view session.View) error {
	profiles, err := b.ListOrganizations(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn(ctx, component, "auth.organizations_failed", slog.String("err", err.Error()))
		profiles = []session.Profile{}
	}
	s, err := m.store.Upsert(ctx, chatID, session.Patch{
		IsAuthorized: session.Ptr(true),
		PendingPhone: session.Ptr(""),
		Profiles:     &profiles,
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, component, "auth.completed",
		slog.Int("profiles", len(s.Profiles)),
		slog.String("profile_id", s.ActiveProfileID),
	)

	content := views.Home(s, "")
	if view == session.ViewLoggedIn {
		content = views.LoggedIn()
	}
	_, err = m.screens.ReplaceAnchor(ctx, chatID, view, content)
	return err
}

// Logout ends the portal session best-effort, forgets all auth data and
// cookies, and shows the logged-out screen.
func (m *Machine) Logout(ctx context.Context, chatID int64) error {
	s, err := m.store.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if s.IsAuthorized {
		if b, err := m.backends.Open(ctx, chatID); err != nil {
			logger.Warn(ctx, component, "auth.logout_remote_failed", slog.String("err", err.Error()))
		} else {
			if err := b.Logout(ctx); err != nil {
				logger.Warn(ctx, component, "auth.logout_remote_failed", slog.String("err", err.Error()))
			}
			// closed before clearing so its cookies are not written back
			m.close(ctx, b)
		}
	}
	if err := m.store.ClearAuthFields(ctx, chatID); err != nil {
		return err
	}
	logger.Info(ctx, component, "auth.logout")
	_, err = m.screens.RenderInPlace(ctx, chatID, session.ViewLoggedOut, views.LoggedOut())
	return err
}

// InteractiveLogin waits up to the configured ceiling for the user to log in
// through the interactive backend. Timeout or failure returns the chat to the
// home screen with a note; the chat stays unauthorized and may start again.
func (m *Machine) InteractiveLogin(ctx context.Context, chatID int64) error {
	if m.interactive == nil {
		return errors.New("login: interactive login is not configured")
	}
	s, err := m.store.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if s.IsAuthorized {
		_, err := m.screens.RenderInPlace(ctx, chatID, session.ViewLoggedIn, views.LoggedIn())
		return err
	}
	if _, err := m.screens.RenderInPlace(ctx, chatID, session.ViewAuthBrowser, views.BrowserWaiting(m.timeout)); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	runErr := m.interactive.Run(runCtx, chatID)
	timedOut := errors.Is(runErr, portal.ErrLoginTimeout) || errors.Is(runCtx.Err(), context.DeadlineExceeded)
	cancel()

	if runErr == nil && !timedOut {
		b, err := m.backends.Open(ctx, chatID)
		if err != nil {
			runErr = err
		} else {
			defer m.close(ctx, b)
			logger.Info(ctx, component, "auth.interactive", slog.String("outcome", "ok"))
			return m.finalize(ctx, chatID, b, session.ViewHome)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	note := views.NoteLoginFailed
	if timedOut {
		note = views.NoteLoginTimeout
		runErr = portal.ErrLoginTimeout
	}
	logger.Warn(ctx, component, "auth.interactive",
		slog.String("outcome", "fail"),
		slog.String("err", runErr.Error()),
	)
	s, err = m.store.Upsert(ctx, chatID, session.Patch{PendingPhone: session.Ptr("")})
	if err != nil {
		return err
	}
	_, err = m.screens.RenderInPlace(ctx, chatID, session.ViewHome, views.Home(s, note))
	return err
}

// Reprompt redraws the pending step prompt in place with note, without calling
// the portal. It reports false when no step is pending.
func (m *Machine) Reprompt(ctx context.Context, chatID int64, note string) (bool, error) {
	s, err := m.store.Get(ctx, chatID)
	if err != nil {
		return false, err
	}
	if !s.CurrentView.Pending() {
		return false, nil
	}
	return true, m.reprompt(ctx, s, note)
}

func (m *Machine) reprompt(ctx context.Context, s *session.ChatSession, note string) error {
	content, ok := views.Prompt(s, note)
	if !ok {
		return nil
	}
	_, err := m.screens.RenderInPlace(ctx, s.ChatID, s.CurrentView, content)
	return err
}

// stepFailed keeps the chat on step and explains why. Context errors propagate.
func (m *Machine) stepFailed(ctx context.Context, s *session.ChatSession, step session.View, err error, extra ...slog.Attr) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var note string
	switch {
	case errors.Is(err, portal.ErrRejected):
		note = views.Rejected(portal.Reason(err))
		m.logStep(ctx, step, "rejected", err, extra...)
	default:
		note = views.NotePortalUnavailable
		m.logStep(ctx, step, "unavailable", err, extra...)
	}
	return m.reprompt(ctx, s, note)
}

func (m *Machine) withBackend(ctx context.Context, chatID int64, fn func(Backend) error) error {
	b, err := m.backends.Open(ctx, chatID)
	if err != nil {
		return fmt.Errorf("%w: %v", portal.ErrUnavailable, err)
	}
	defer m.close(ctx, b)
	return fn(b)
}

func (m *Machine) close(ctx context.Context, b Backend) {
	if err := b.Close(); err != nil {
		logger.Warn(ctx, component, "auth.backend_close_failed", slog.String("err", err.Error()))
	}
}

func (m *Machine) logStep(ctx context.Context, step session.View, status string, err error, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("step", string(step)),
		slog.String("status", status),
	}
	attrs = append(attrs, extra...)
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	logger.Info(ctx, component, "auth.step", attrs...)
}
