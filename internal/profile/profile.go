// Package profile manages the organizations a logged-in chat can act for.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/sellerbot/core/logger"
	"github.com/m3rciful/sellerbot/internal/session"
)

const component = "service.profiles"

var (
	// ErrUnknownProfile is returned by Select for an id outside the cached list.
	ErrUnknownProfile = errors.New("profile: unknown profile")
	// ErrNotAuthorized is returned when the chat has no confirmed login.
	ErrNotAuthorized = errors.New("profile: not authorized")
)

// Backend is the part of a portal session the service needs.
type Backend interface {
	ListOrganizations(ctx context.Context) ([]session.Profile, error)
	SetActiveOrganization(ctx context.Context, id string) error
	Close() error
}

// Opener creates a Backend for a chat.
type Opener interface {
	Open(ctx context.Context, chatID int64) (Backend, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, chatID int64) (Backend, error)

func (f OpenerFunc) Open(ctx context.Context, chatID int64) (Backend, error) { return f(ctx, chatID) }

type Service struct {
	store    session.Store
	backends Opener
}

func NewService(store session.Store, backends Opener) *Service {
	return &Service{store: store, backends: backends}
}

// Refresh re-fetches the organization list and stores it. The active profile
// survives when it is still listed.
func (s *Service) Refresh(ctx context.Context, chatID int64) (*session.ChatSession, error) {
	cur, err := s.authorized(ctx, chatID)
	if err != nil {
		return nil, err
	}
	b, err := s.backends.Open(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("profile: open backend: %w", err)
	}
	defer s.close(ctx, b)

	profiles, err := b.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("profile: refresh: %w", err)
	}
	next, err := s.store.Upsert(ctx, chatID, session.Patch{Profiles: &profiles})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "profiles.refreshed",
		slog.Int("profiles", len(next.Profiles)),
		slog.String("profile_id", next.ActiveProfileID),
		slog.Bool("active_kept", cur.ActiveProfileID == "" || cur.ActiveProfileID == next.ActiveProfileID),
	)
	return next, nil
}

// Select makes profileID the active profile. The portal is told about the
// choice best-effort; the stored choice is what the bot acts on.
func (s *Service) Select(ctx context.Context, chatID int64, profileID string) (*session.ChatSession, error) {
	cur, err := s.authorized(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !cur.HasProfile(profileID) {
		logger.Info(ctx, component, "profiles.select", slog.String("status", "unknown"), slog.String("profile_id", profileID))
		return nil, ErrUnknownProfile
	}

	if b, err := s.backends.Open(ctx, chatID); err != nil {
		logger.Warn(ctx, component, "profiles.remote_select_failed", slog.String("err", err.Error()))
	} else {
		if err := b.SetActiveOrganization(ctx, profileID); err != nil {
			logger.Warn(ctx, component, "profiles.remote_select_failed",
				slog.String("profile_id", profileID),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
		s.close(ctx, b)
	}

	next, err := s.store.Upsert(ctx, chatID, session.Patch{ActiveProfileID: session.Ptr(profileID)})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "profiles.select", slog.String("status", "ok"), slog.String("profile_id", profileID))
	return next, nil
}

func (s *Service) authorized(ctx context.Context, chatID int64) (*session.ChatSession, error) {
	cur, err := s.store.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !cur.IsAuthorized {
		return nil, ErrNotAuthorized
	}
	return cur, nil
}

func (s *Service) close(ctx context.Context, b Backend) {
	if err := b.Close(); err != nil {
		logger.Warn(ctx, component, "profiles.backend_close_failed", slog.String("err", err.Error()))
	}
}
