package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/m3rciful/sellerbot/core/logger"
	"github.com/m3rciful/sellerbot/internal/session"
)

// BrowserOptions configure the interactive login window.
type BrowserOptions struct {
	AuthURL     string
	Headless    bool
	UserDataDir string
	// SessionCookies must all be present before the session is checked.
	// Empty means any cookie set on the portal host triggers a check.
	SessionCookies []string
	PollInterval   time.Duration
}

// BrowserLogin opens the portal login page in a real browser and waits for
// the user to finish logging in by hand. Nothing on the page is automated.
type BrowserLogin struct {
	opts    BrowserOptions
	factory *Factory

	// run drives the browser; replaced in tests.
	run func(ctx context.Context, chatID int64, poll func(pageURL string, cookies []*http.Cookie) (bool, error)) error
}

// NewBrowserLogin builds an interactive login over factory's portal.
func NewBrowserLogin(opts BrowserOptions, factory *Factory) *BrowserLogin {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	b := &BrowserLogin{opts: opts, factory: factory}
	b.run = b.runChrome
	return b
}

// Run returns nil once a valid session is saved for chatID, ErrLoginTimeout
// when ctx expires first, or the browser error.
func (b *BrowserLogin) Run(ctx context.Context, chatID int64) error {
	logger.Info(ctx, component, "browser.open", slog.Int64("chat_id", chatID))
	err := b.run(ctx, chatID, func(pageURL string, cookies []*http.Cookie) (bool, error) {
		return b.check(ctx, chatID, pageURL, cookies)
	})
	switch {
	case err == nil:
		logger.Info(ctx, component, "browser.done", slog.String("outcome", "ok"))
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		logger.Warn(ctx, component, "browser.timeout")
		return ErrLoginTimeout
	default:
		return fmt.Errorf("portal: browser login: %w", err)
	}
}

// check validates cookies seen on the portal host and saves them on success.
func (b *BrowserLogin) check(ctx context.Context, chatID int64, pageURL string, cookies []*http.Cookie) (bool, error) {
	u, err := url.Parse(pageURL)
	if err != nil || !sameSite(u.Hostname(), b.factory.base.Hostname()) {
		return false, nil
	}
	if !hasAll(cookies, b.opts.SessionCookies) {
		return false, nil
	}
	client, err := b.factory.openWith(chatID, session.PortalState{Cookies: cookies})
	if err != nil {
		return false, err
	}
	ok, err := client.CheckSessionValid(ctx)
	if err != nil || !ok {
		// the portal may still be finishing the redirect chain
		return false, nil
	}
	if err := b.factory.state.SavePortalState(ctx, chatID, session.PortalState{Cookies: cookies}); err != nil {
		return false, fmt.Errorf("save cookies: %w", err)
	}
	return true, nil
}

func sameSite(host, portalHost string) bool {
	return host == portalHost || strings.HasSuffix(host, "."+portalHost)
}

func hasAll(cookies []*http.Cookie, names []string) bool {
	if len(cookies) == 0 {
		return false
	}
	for _, name := range names {
		if !slices.ContainsFunc(cookies, func(c *http.Cookie) bool { return c.Name == name && c.Value != "" }) {
			return false
		}
	}
	return true
}

func (b *BrowserLogin) runChrome(ctx context.Context, chatID int64, poll func(string, []*http.Cookie) (bool, error)) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1280, 860),
	)
	if b.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(filepath.Join(b.opts.UserDataDir, strconv.FormatInt(chatID, 10))))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(b.opts.AuthURL)); err != nil {
		return fmt.Errorf("open auth page: %w", err)
	}

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var (
			location string
			cookies  []*http.Cookie
		)
		err := chromedp.Run(browserCtx,
			chromedp.Location(&location),
			chromedp.ActionFunc(func(ctx context.Context) error {
				got, err := network.GetCookies().Do(ctx)
				if err != nil {
					return err
				}
				cookies = convertCookies(got)
				return nil
			}),
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read page state: %w", err)
		}
		done, err := poll(location, cookies)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func convertCookies(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}
