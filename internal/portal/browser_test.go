package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/sellerbot/internal/session"
)

func TestBrowserLoginSavesValidatedCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("wbx-validation-key"); err == nil && c.Value == "good" {
			_, _ = w.Write([]byte(`{"authorized":true}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := session.NewMemoryStore()
	f := newFactory(t, srv, store)
	b := NewBrowserLogin(BrowserOptions{SessionCookies: []string{"wbx-validation-key"}}, f)

	var polls []bool
	b.run = func(ctx context.Context, chatID int64, poll func(string, []*http.Cookie) (bool, error)) error {
		steps := []struct {
			url     string
			cookies []*http.Cookie
		}{
			{"https://auth.example.com/login", []*http.Cookie{{Name: "wbx-validation-key", Value: "good"}}},
			{srv.URL + "/", nil},
			{srv.URL + "/", []*http.Cookie{{Name: "wbx-validation-key", Value: "stale"}}},
			{srv.URL + "/", []*http.Cookie{{Name: "wbx-validation-key", Value: "good"}}},
		}
		for _, s := range steps {
			done, err := poll(s.url, s.cookies)
			polls = append(polls, done)
			if err != nil || done {
				return err
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}

	require.NoError(t, b.Run(context.Background(), 11))
	assert.Equal(t, []bool{false, false, false, true}, polls)

	saved, err := store.LoadPortalState(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, saved.Cookies, 1)
	assert.Equal(t, "good", saved.Cookies[0].Value)
}

func TestBrowserLoginTimeout(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	b := NewBrowserLogin(BrowserOptions{}, newFactory(t, srv, session.NewMemoryStore()))
	b.run = func(ctx context.Context, _ int64, _ func(string, []*http.Cookie) (bool, error)) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Run(ctx, 1), ErrLoginTimeout)
}

func TestSameSite(t *testing.T) {
	assert.True(t, sameSite("seller.example.com", "seller.example.com"))
	assert.True(t, sameSite("api.seller.example.com", "seller.example.com"))
	assert.False(t, sameSite("evilseller.example.com", "seller.example.com"))
}
