// Package session keeps the durable per-chat state of the bot: the anchor
// message, the displayed view, authentication and cached organizations.
package session

import (
	"context"
	"net/http"
	"slices"
)

// View names the logical screen the anchor message shows.
type View string

const (
	ViewNone          View = ""
	ViewHome          View = "home"
	ViewAuthPhone     View = "auth_phone"
	ViewAuthSMS       View = "auth_sms"
	ViewAuthEmailCode View = "auth_email_code"
	ViewProfile       View = "profile"
	ViewClosed        View = "closed"

	ViewLoggedIn      View = "logged_in"
	ViewLoggedOut     View = "logged_out"
	ViewAuthBrowser   View = "auth_browser"
	ViewProfileSwitch View = "profile_switch"
)

// Pending reports whether the view is a login step waiting for text input.
func (v View) Pending() bool {
	switch v {
	case ViewAuthPhone, ViewAuthSMS, ViewAuthEmailCode:
		return true
	}
	return false
}

// Profile is an organization available to the logged-in seller.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	TaxID       string `json:"inn"`
}

// ChatSession is the stored state of one chat.
type ChatSession struct {
	ChatID          int64
	AnchorMessageID int
	CurrentView     View
	IsAuthorized    bool
	PendingPhone    string
	Profiles        []Profile
	ActiveProfileID string
}

// Baseline returns the unauthenticated state of a chat never seen before.
func Baseline(chatID int64) *ChatSession {
	return &ChatSession{ChatID: chatID, Profiles: []Profile{}}
}

// HasAnchor reports whether a window message has been recorded.
func (s *ChatSession) HasAnchor() bool { return s.AnchorMessageID != 0 }

// ActiveProfile returns the selected organization, if any.
func (s *ChatSession) ActiveProfile() (Profile, bool) {
	for _, p := range s.Profiles {
		if p.ID == s.ActiveProfileID {
			return p, true
		}
	}
	return Profile{}, false
}

// HasProfile reports whether id is one of the cached organizations.
func (s *ChatSession) HasProfile(id string) bool {
	return slices.ContainsFunc(s.Profiles, func(p Profile) bool { return p.ID == id })
}

func (s *ChatSession) clone() *ChatSession {
	cp := *s
	cp.Profiles = slices.Clone(s.Profiles)
	if cp.Profiles == nil {
		cp.Profiles = []Profile{}
	}
	return &cp
}

// normalize keeps ActiveProfileID pointing into Profiles.
func (s *ChatSession) normalize() {
	if s.Profiles == nil {
		s.Profiles = []Profile{}
	}
	switch {
	case len(s.Profiles) == 0:
		s.ActiveProfileID = ""
	case s.ActiveProfileID != "" && !s.HasProfile(s.ActiveProfileID):
		s.ActiveProfileID = ""
	}
	if len(s.Profiles) == 1 && s.ActiveProfileID == "" {
		s.ActiveProfileID = s.Profiles[0].ID
	}
}

// Patch lists the fields an Upsert changes. Nil fields are left as stored.
type Patch struct {
	AnchorMessageID *int
	CurrentView     *View
	IsAuthorized    *bool
	PendingPhone    *string
	Profiles        *[]Profile
	ActiveProfileID *string
}

// Ptr returns a pointer to v, for building patches inline.
func Ptr[T any](v T) *T { return &v }

// Apply writes the non-nil fields of p into s and restores invariants.
func (p Patch) Apply(s *ChatSession) {
	if p.AnchorMessageID != nil {
		s.AnchorMessageID = *p.AnchorMessageID
	}
	if p.CurrentView != nil {
		s.CurrentView = *p.CurrentView
	}
	if p.IsAuthorized != nil {
		s.IsAuthorized = *p.IsAuthorized
	}
	if p.PendingPhone != nil {
		s.PendingPhone = *p.PendingPhone
	}
	if p.Profiles != nil {
		s.Profiles = slices.Clone(*p.Profiles)
	}
	if p.ActiveProfileID != nil {
		s.ActiveProfileID = *p.ActiveProfileID
	}
	s.normalize()
}

func clearAuth(s *ChatSession) {
	s.IsAuthorized = false
	s.PendingPhone = ""
	s.Profiles = []Profile{}
	s.ActiveProfileID = ""
}

// Store persists chat sessions.
type Store interface {
	// Get returns the stored session or the baseline for an unknown chat.
	Get(ctx context.Context, chatID int64) (*ChatSession, error)
	// Upsert applies patch atomically and returns the resulting session.
	Upsert(ctx context.Context, chatID int64, patch Patch) (*ChatSession, error)
	// ClearAuthFields resets authentication state and the stored portal state.
	// Anchor and view are kept.
	ClearAuthFields(ctx context.Context, chatID int64) error
}

// PortalState is what a chat's portal session carries between handler
// invocations.
type PortalState struct {
	Cookies   []*http.Cookie
	CSRFToken string
}

// PortalStore persists portal state per chat.
type PortalStore interface {
	LoadPortalState(ctx context.Context, chatID int64) (PortalState, error)
	SavePortalState(ctx context.Context, chatID int64, state PortalState) error
}
