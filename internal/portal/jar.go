package portal

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

// recordingJar serves requests from a cookiejar.Jar and keeps every accepted
// cookie with its domain, path and expiry. cookiejar.Jar.Cookies only returns
// name and value for one URL, which is not enough to persist a session.
type recordingJar struct {
	*cookiejar.Jar

	base *url.URL
	now  func() time.Time

	mu   sync.Mutex
	kept map[cookieKey]*http.Cookie
}

type cookieKey struct {
	domain, path, name string
}

func newRecordingJar(base *url.URL) (*recordingJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &recordingJar{
		Jar:  jar,
		base: base,
		now:  time.Now,
		kept: make(map[cookieKey]*http.Cookie),
	}, nil
}

// SetCookies implements http.CookieJar.
func (j *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.Jar.SetCookies(u, cookies)

	now := j.now()
	host := strings.ToLower(u.Hostname())
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c == nil || c.Name == "" || !domainMatch(host, c.Domain) {
			continue
		}
		kc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
			SameSite: c.SameSite,
		}
		if kc.Path == "" || kc.Path[0] != '/' {
			kc.Path = defaultPath(u.Path)
		}
		// host-only cookies of another host must not come back scoped to the portal root
		if kc.Domain == "" && host != strings.ToLower(j.base.Hostname()) {
			kc.Domain = host
		}
		switch {
		case c.MaxAge < 0:
			kc.Expires = now
		case c.MaxAge > 0:
			kc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}

		key := cookieKey{domain: strings.TrimPrefix(strings.ToLower(kc.Domain), "."), path: kc.Path, name: kc.Name}
		if !kc.Expires.IsZero() && !kc.Expires.After(now) {
			delete(j.kept, key)
			continue
		}
		j.kept[key] = kc
	}
}

// load restores stored cookies. A cookie scoped to a host outside the portal
// root is set against that host.
func (j *recordingJar) load(cookies []*http.Cookie) {
	for _, c := range cookies {
		if c == nil {
			continue
		}
		u := j.base
		if d := strings.TrimPrefix(c.Domain, "."); d != "" && !domainMatch(strings.ToLower(j.base.Hostname()), d) {
			u = &url.URL{Scheme: j.base.Scheme, Host: d, Path: "/"}
		}
		j.SetCookies(u, []*http.Cookie{c})
	}
}

// snapshot returns the live cookies in a stable order.
func (j *recordingJar) snapshot() []*http.Cookie {
	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*http.Cookie, 0, len(j.kept))
	for _, c := range j.kept {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *http.Cookie) int {
		return strings.Compare(a.Domain+"\x00"+a.Path+"\x00"+a.Name, b.Domain+"\x00"+b.Path+"\x00"+b.Name)
	})
	return out
}

// domainMatch reports whether a cookie with the given domain attribute may be
// set from host. An empty domain is a host-only cookie.
func domainMatch(host, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	return domain == "" || host == domain || strings.HasSuffix(host, "."+domain)
}

func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndexByte(p, '/')
	if i == 0 {
		return "/"
	}
	return p[:i]
}
