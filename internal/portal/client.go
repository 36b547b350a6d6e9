// Package portal talks to the seller partner portal on behalf of one chat.
// Every chat gets its own Client with a private cookie jar. Cookies and the
// CSRF token are loaded from and saved to the session store.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/m3rciful/sellerbot/core/logger"
	"github.com/m3rciful/sellerbot/core/telegram/netutil"
	"github.com/m3rciful/sellerbot/internal/session"
)

const component = "service.portal"

// DefaultProfile stands in when the portal lists no organizations for an account.
var DefaultProfile = session.Profile{ID: "default", DisplayName: "Main account"}

// Options configure a Factory.
type Options struct {
	BaseURL           string
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	UserAgent         string

	// Transport overrides the network transport under the retry layer.
	Transport http.RoundTripper
}

// Factory builds per-chat clients that share one HTTP transport and rate limiter.
type Factory struct {
	base    *url.URL
	state   session.PortalStore
	rt      http.RoundTripper
	limiter *rate.Limiter
	timeout time.Duration
	ua      string
}

// NewFactory validates opts and prepares the shared transport.
func NewFactory(opts Options, state session.PortalStore) (*Factory, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("portal: invalid base url %q", opts.BaseURL)
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := opts.RetryBaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	rt := &netutil.RetryTransport{
		Base:        opts.Transport,
		Attempts:    attempts,
		BaseDelay:   delay,
		RetryStatus: netutil.RetryOnThrottle,
		OnRetry: func(req *http.Request, attempt int, delay time.Duration, cause string) {
			logger.Warn(req.Context(), component, "portal.retry",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("attempt", attempt),
				slog.Duration("retry_after", delay),
				slog.String("cause", logger.SanitizeLimit(cause, 128)),
			)
		},
	}
	return &Factory{
		base:    base,
		state:   state,
		rt:      rt,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
		ua:      opts.UserAgent,
	}, nil
}

// BaseURL returns the portal root.
func (f *Factory) BaseURL() *url.URL {
	u := *f.base
	return &u
}

// Open builds a client for chatID with the chat's stored cookies and CSRF token.
func (f *Factory) Open(ctx context.Context, chatID int64) (*Client, error) {
	stored, err := f.state.LoadPortalState(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("portal: load state: %w", err)
	}
	return f.openWith(chatID, stored)
}

func (f *Factory) openWith(chatID int64, stored session.PortalState) (*Client, error) {
	jar, err := newRecordingJar(f.base)
	if err != nil {
		return nil, fmt.Errorf("portal: cookie jar: %w", err)
	}
	jar.load(stored.Cookies)
	return &Client{
		chatID:  chatID,
		factory: f,
		jar:     jar,
		http:    &http.Client{Transport: f.rt, Jar: jar, Timeout: f.timeout},
		csrf:    stored.CSRFToken,
	}, nil
}

// Client is one chat's portal session.
type Client struct {
	chatID  int64
	factory *Factory
	jar     *recordingJar
	http    *http.Client
	csrf    string
}

// Close persists the cookies and CSRF token so the next handler invocation
// continues the same portal session.
func (c *Client) Close() error {
	return c.factory.state.SavePortalState(context.Background(), c.chatID, session.PortalState{
		Cookies:   c.jar.snapshot(),
		CSRFToken: c.csrf,
	})
}

// PrimeSession opens the portal root so it issues session cookies and a CSRF token.
func (c *Client) PrimeSession(ctx context.Context) error {
	resp, err := c.do(ctx, "prime", http.MethodGet, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: prime: parse page: %v", ErrUnavailable, err)
	}
	if token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content"); ok {
		c.csrf = strings.TrimSpace(token)
	}
	logger.Debug(ctx, component, "portal.primed", slog.Bool("csrf", c.csrf != ""))
	return nil
}

func (c *Client) SubmitPhone(ctx context.Context, phone string) error {
	return c.call(ctx, "submit_phone", http.MethodPost, "api/auth/phone", map[string]string{"phone": phone}, nil)
}

func (c *Client) SubmitSMSCode(ctx context.Context, phone, code string) error {
	return c.call(ctx, "submit_sms_code", http.MethodPost, "api/auth/phone/confirm",
		map[string]string{"phone": phone, "code": code}, nil)
}

func (c *Client) SubmitEmailCode(ctx context.Context, code string) error {
	return c.call(ctx, "submit_email_code", http.MethodPost, "api/auth/email/confirm", map[string]string{"code": code}, nil)
}

// CheckSessionValid reports whether the stored cookies belong to a live session.
// 401 and 403 mean "not logged in" and are not errors.
func (c *Client) CheckSessionValid(ctx context.Context) (bool, error) {
	var out struct {
		Authorized bool `json:"authorized"`
	}
	err := c.call(ctx, "check_session", http.MethodGet, "api/auth/session", nil, &out)
	var re *RejectedError
	if errors.As(err, &re) && (re.Status == http.StatusUnauthorized || re.Status == http.StatusForbidden) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Authorized, nil
}

type organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	INN  string `json:"inn"`
}

// ListOrganizations returns the account's organizations in portal order.
// An account without organizations gets DefaultProfile.
func (c *Client) ListOrganizations(ctx context.Context) ([]session.Profile, error) {
	var orgs []organization
	if err := c.call(ctx, "list_organizations", http.MethodGet, "api/organizations", nil, &orgs); err != nil {
		return nil, err
	}
	profiles := make([]session.Profile, 0, len(orgs))
	for _, o := range orgs {
		if o.ID == "" {
			continue
		}
		name := o.Name
		if name == "" {
			name = o.ID
		}
		profiles = append(profiles, session.Profile{ID: o.ID, DisplayName: name, TaxID: o.INN})
	}
	if len(profiles) == 0 {
		profiles = append(profiles, DefaultProfile)
	}
	return profiles, nil
}

// SetActiveOrganization tells the portal which organization the session works with.
func (c *Client) SetActiveOrganization(ctx context.Context, id string) error {
	return c.call(ctx, "set_organization", http.MethodPost, "api/organizations/active", map[string]string{"id": id}, nil)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, "logout", http.MethodPost, "api/auth/logout", nil, nil)
}

// call runs a JSON request and decodes a successful body into out.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("portal: %s: encode: %w", op, err)
		}
	}
	resp, err := c.do(ctx, op, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrUnavailable, op, err)
	}
	if reason, failed := envelopeFailure(raw); failed {
		return &RejectedError{Op: op, Status: resp.StatusCode, Reason: reason}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrUnavailable, op, err)
	}
	return nil
}

// do sends one request and maps failures to ErrUnavailable or *RejectedError.
// The caller closes the body of a returned response.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (*http.Response, error) {
	if err := c.factory.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("portal: %s: %w", op, err)
	}

	target := c.factory.base.ResolveReference(&url.URL{Path: path})
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("portal: %s: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("Accept", "application/json, text/html")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	if c.factory.ua != "" {
		req.Header.Set("User-Agent", c.factory.ua)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", target.Path),
		slog.String("request_id", requestID),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("portal: %s: %w", op, ctxErr)
		}
		logger.Warn(ctx, component, "portal.request", append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))...)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	logger.Debug(ctx, component, "portal.request", append(attrs, slog.Int("http_code", resp.StatusCode))...)

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return resp, nil
	case code == http.StatusTooManyRequests || code >= 500:
		drain(resp)
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, op, code)
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		drain(resp)
		reason, _ := envelopeFailure(raw)
		return nil, &RejectedError{Op: op, Status: code, Reason: reason}
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// envelopeFailure reads {"ok":false,"error":"..."} style bodies.
// The reason is returned for any JSON object carrying error or message.
func envelopeFailure(raw []byte) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var env struct {
		OK      *bool  `json:"ok"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return "", false
	}
	reason := env.Error
	if reason == "" {
		reason = env.Message
	}
	return reason, env.OK != nil && !*env.OK
}
