package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type storedCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HttpOnly bool   `json:"http_only,omitempty"`
}

func encodeCookies(cookies []*http.Cookie) ([]byte, error) {
	out := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		sc := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if !c.Expires.IsZero() {
			sc.Expires = c.Expires.Unix()
		}
		out = append(out, sc)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode cookies: %w", err)
	}
	return raw, nil
}

func decodeCookies(raw []byte) ([]*http.Cookie, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var stored []storedCookie
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	out := make([]*http.Cookie, 0, len(stored))
	for _, sc := range stored {
		c := &http.Cookie{
			Name:     sc.Name,
			Value:    sc.Value,
			Domain:   sc.Domain,
			Path:     sc.Path,
			Secure:   sc.Secure,
			HttpOnly: sc.HttpOnly,
		}
		if sc.Expires > 0 {
			c.Expires = time.Unix(sc.Expires, 0)
		}
		out = append(out, c)
	}
	return out, nil
}
