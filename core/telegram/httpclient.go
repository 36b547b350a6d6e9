package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/sellerbot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 15 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = time.Second
)

// NewTransport returns the pooled transport shared by outbound HTTP clients.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: defaultResponseTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
// Long polling holds requests open, so the client timeout must exceed the poll timeout.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	timeout := defaultClientTimeout
	if pollTimeout+10*time.Second > timeout {
		timeout = pollTimeout + 10*time.Second
	}
	transport := NewTransport()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{
		Timeout: timeout,
		Transport: &netutil.RetryTransport{
			Base:      transport,
			Attempts:  defaultRetryAttempts,
			BaseDelay: defaultRetryBackoff,
		},
	}
}
