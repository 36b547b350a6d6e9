package profile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/sellerbot/internal/profile"
	"github.com/m3rciful/sellerbot/internal/session"
)

const chat int64 = 42

type fakeBackend struct {
	orgs    []session.Profile
	listErr error
	setErr  error
	active  []string
	closed  int
}

func (f *fakeBackend) ListOrganizations(context.Context) ([]session.Profile, error) {
	return f.orgs, f.listErr
}

func (f *fakeBackend) SetActiveOrganization(_ context.Context, id string) error {
	f.active = append(f.active, id)
	return f.setErr
}

func (f *fakeBackend) Close() error {
	f.closed++
	return nil
}

func setup(t *testing.T, authorized bool, profiles ...session.Profile) (*profile.Service, *session.MemoryStore, *fakeBackend) {
	t.Helper()
	store := session.NewMemoryStore()
	_, err := store.Upsert(context.Background(), chat, session.Patch{
		IsAuthorized: session.Ptr(authorized),
		Profiles:     &profiles,
	})
	require.NoError(t, err)
	b := &fakeBackend{}
	svc := profile.NewService(store, profile.OpenerFunc(func(context.Context, int64) (profile.Backend, error) {
		return b, nil
	}))
	return svc, store, b
}

func TestSelectKnownProfile(t *testing.T) {
	svc, store, b := setup(t, true, session.Profile{ID: "a"}, session.Profile{ID: "b"})

	s, err := svc.Select(context.Background(), chat, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", s.ActiveProfileID)
	assert.Equal(t, []string{"b"}, b.active)
	assert.Equal(t, 1, b.closed)

	stored, err := store.Get(context.Background(), chat)
	require.NoError(t, err)
	assert.Equal(t, "b", stored.ActiveProfileID)
}

func TestSelectUnknownProfile(t *testing.T) {
	svc, store, b := setup(t, true, session.Profile{ID: "a"}, session.Profile{ID: "b"})

	_, err := svc.Select(context.Background(), chat, "zzz")
	require.ErrorIs(t, err, profile.ErrUnknownProfile)
	assert.Empty(t, b.active)

	stored, err := store.Get(context.Background(), chat)
	require.NoError(t, err)
	assert.Empty(t, stored.ActiveProfileID)
}

func TestSelectKeepsChoiceWhenPortalFails(t *testing.T) {
	svc, _, b := setup(t, true, session.Profile{ID: "a"}, session.Profile{ID: "b"})
	b.setErr = errors.New("503")

	s, err := svc.Select(context.Background(), chat, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", s.ActiveProfileID)
}

func TestSelectRequiresLogin(t *testing.T) {
	svc, _, _ := setup(t, false)
	_, err := svc.Select(context.Background(), chat, "a")
	assert.ErrorIs(t, err, profile.ErrNotAuthorized)
}

func TestRefreshStoresListAndKeepsActive(t *testing.T) {
	svc, _, b := setup(t, true, session.Profile{ID: "a"}, session.Profile{ID: "b"})
	_, err := svc.Select(context.Background(), chat, "b")
	require.NoError(t, err)

	b.orgs = []session.Profile{{ID: "b", DisplayName: "Beta"}, {ID: "c", DisplayName: "Gamma"}}
	s, err := svc.Refresh(context.Background(), chat)
	require.NoError(t, err)
	assert.Equal(t, b.orgs, s.Profiles)
	assert.Equal(t, "b", s.ActiveProfileID)
}

func TestRefreshDropsVanishedActive(t *testing.T) {
	svc, _, b := setup(t, true, session.Profile{ID: "a"})
	b.orgs = []session.Profile{{ID: "x"}, {ID: "y"}}

	s, err := svc.Refresh(context.Background(), chat)
	require.NoError(t, err)
	assert.Empty(t, s.ActiveProfileID)
}

func TestRefreshFailureLeavesStoreUntouched(t *testing.T) {
	svc, store, b := setup(t, true, session.Profile{ID: "a"})
	b.listErr = errors.New("portal down")

	_, err := svc.Refresh(context.Background(), chat)
	require.Error(t, err)

	stored, err := store.Get(context.Background(), chat)
	require.NoError(t, err)
	assert.Equal(t, []session.Profile{{ID: "a"}}, stored.Profiles)
	assert.Equal(t, "a", stored.ActiveProfileID)
}
