package session

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/sellerbot/core/database"
)

var twoProfiles = []Profile{
	{ID: "org-1", DisplayName: "Alpha LLC", TaxID: "7701000001"},
	{ID: "org-2", DisplayName: "Beta LLC", TaxID: "7701000002"},
}

func TestViewPending(t *testing.T) {
	for _, v := range []View{ViewAuthPhone, ViewAuthSMS, ViewAuthEmailCode} {
		assert.True(t, v.Pending(), v)
	}
	for _, v := range []View{ViewNone, ViewHome, ViewProfile, ViewClosed, ViewLoggedIn, ViewAuthBrowser} {
		assert.False(t, v.Pending(), v)
	}
}

func TestPatchNormalizesActiveProfile(t *testing.T) {
	s := Baseline(1)

	Patch{Profiles: Ptr(twoProfiles[:1])}.Apply(s)
	assert.Equal(t, "org-1", s.ActiveProfileID, "single profile becomes active")

	Patch{Profiles: Ptr(twoProfiles), ActiveProfileID: Ptr("org-2")}.Apply(s)
	assert.Equal(t, "org-2", s.ActiveProfileID)

	Patch{ActiveProfileID: Ptr("missing")}.Apply(s)
	assert.Empty(t, s.ActiveProfileID, "unknown id is cleared")

	Patch{ActiveProfileID: Ptr("org-1")}.Apply(s)
	Patch{Profiles: Ptr([]Profile{})}.Apply(s)
	assert.Empty(t, s.ActiveProfileID, "empty list clears the selection")
	assert.NotNil(t, s.Profiles)
}

// storeSuite runs the same contract against every Store implementation.
func storeSuite(t *testing.T, newStore func(t *testing.T) interface {
	Store
	PortalStore
}) {
	ctx := context.Background()

	t.Run("baseline for unknown chat", func(t *testing.T) {
		st := newStore(t)
		s, err := st.Get(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), s.ChatID)
		assert.False(t, s.IsAuthorized)
		assert.False(t, s.HasAnchor())
		assert.Equal(t, ViewNone, s.CurrentView)
		assert.Empty(t, s.Profiles)
	})

	t.Run("upsert merges partial fields", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Upsert(ctx, 7, Patch{AnchorMessageID: Ptr(100), CurrentView: Ptr(ViewHome)})
		require.NoError(t, err)
		s, err := st.Upsert(ctx, 7, Patch{PendingPhone: Ptr("+79991234567"), CurrentView: Ptr(ViewAuthSMS)})
		require.NoError(t, err)
		assert.Equal(t, 100, s.AnchorMessageID)
		assert.Equal(t, ViewAuthSMS, s.CurrentView)

		got, err := st.Get(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	})

	t.Run("profiles round trip with invariant", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Upsert(ctx, 8, Patch{
			IsAuthorized:    Ptr(true),
			Profiles:        Ptr(twoProfiles),
			ActiveProfileID: Ptr("org-2"),
		})
		require.NoError(t, err)
		got, err := st.Get(ctx, 8)
		require.NoError(t, err)
		assert.Equal(t, twoProfiles, got.Profiles)
		p, ok := got.ActiveProfile()
		require.True(t, ok)
		assert.Equal(t, "Beta LLC", p.DisplayName)

		got, err = st.Upsert(ctx, 8, Patch{Profiles: Ptr(twoProfiles[:1])})
		require.NoError(t, err)
		assert.Equal(t, "org-1", got.ActiveProfileID)
	})

	t.Run("clear auth keeps anchor and view", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Upsert(ctx, 9, Patch{
			AnchorMessageID: Ptr(55),
			CurrentView:     Ptr(ViewProfile),
			IsAuthorized:    Ptr(true),
			PendingPhone:    Ptr("+79991234567"),
			Profiles:        Ptr(twoProfiles),
			ActiveProfileID: Ptr("org-1"),
		})
		require.NoError(t, err)
		require.NoError(t, st.SavePortalState(ctx, 9, PortalState{
			Cookies:   []*http.Cookie{{Name: "sid", Value: "x"}},
			CSRFToken: "tok",
		}))

		require.NoError(t, st.ClearAuthFields(ctx, 9))

		got, err := st.Get(ctx, 9)
		require.NoError(t, err)
		assert.False(t, got.IsAuthorized)
		assert.Empty(t, got.PendingPhone)
		assert.Empty(t, got.Profiles)
		assert.Empty(t, got.ActiveProfileID)
		assert.Equal(t, 55, got.AnchorMessageID)
		assert.Equal(t, ViewProfile, got.CurrentView)

		state, err := st.LoadPortalState(ctx, 9)
		require.NoError(t, err)
		assert.Empty(t, state.Cookies)
		assert.Empty(t, state.CSRFToken)
	})

	t.Run("clear auth on unknown chat", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.ClearAuthFields(ctx, 404))
	})

	t.Run("portal state is private per chat", func(t *testing.T) {
		st := newStore(t)
		exp := time.Unix(1893456000, 0)
		require.NoError(t, st.SavePortalState(ctx, 1, PortalState{
			Cookies: []*http.Cookie{
				{Name: "wbx-validation-key", Value: "abc", Domain: "seller.example.com", Path: "/", Expires: exp, HttpOnly: true},
			},
			CSRFToken: "tok-1",
		}))
		require.NoError(t, st.SavePortalState(ctx, 1, PortalState{
			Cookies: []*http.Cookie{
				{Name: "wbx-validation-key", Value: "def", Domain: "seller.example.com", Path: "/api/auth", Expires: exp, HttpOnly: true},
			},
			CSRFToken: "tok-2",
		}))

		got, err := st.LoadPortalState(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "tok-2", got.CSRFToken)
		require.Len(t, got.Cookies, 1)
		c := got.Cookies[0]
		assert.Equal(t, "def", c.Value)
		assert.Equal(t, "seller.example.com", c.Domain)
		assert.Equal(t, "/api/auth", c.Path)
		assert.True(t, c.Expires.Equal(exp))
		assert.True(t, c.HttpOnly)

		other, err := st.LoadPortalState(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, other.Cookies)
		assert.Empty(t, other.CSRFToken)
	})
}

func TestMemoryStore(t *testing.T) {
	storeSuite(t, func(*testing.T) interface {
		Store
		PortalStore
	} {
		return NewMemoryStore()
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	st := NewMemoryStore()
	s, err := st.Upsert(context.Background(), 1, Patch{Profiles: Ptr(twoProfiles)})
	require.NoError(t, err)
	s.Profiles[0].DisplayName = "mutated"

	got, err := st.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Alpha LLC", got.Profiles[0].DisplayName)
}

func TestSQLStoreSQLite(t *testing.T) {
	storeSuite(t, func(t *testing.T) interface {
		Store
		PortalStore
	} {
		cfg := database.Config{
			Driver:        database.DriverSQLite,
			Path:          filepath.Join(t.TempDir(), "sessions.db"),
			MigrationsDir: "../../migrations",
		}
		require.NoError(t, database.RunMigrations(cfg))
		db, err := database.Connect(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return NewSQLStore(db)
	})
}
