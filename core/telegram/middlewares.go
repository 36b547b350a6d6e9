package telegram

import (
	"strings"

	coreconfig "github.com/m3rciful/sellerbot/core/config"
	"github.com/m3rciful/sellerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareOptions tunes DefaultMiddlewares.
type MiddlewareOptions struct {
	OnLimited tele.HandlerFunc
	// ErrorText is sent to the user when a handler fails; empty uses the default text.
	ErrorText string
	// Serializer orders updates per chat; nil disables serialization.
	Serializer *middleware.ChatSerializer
}

// DefaultMiddlewares builds the shared middleware chain. The first entry is outermost.
func DefaultMiddlewares(cfg *coreconfig.Config, opts MiddlewareOptions) []Middleware {
	mws := []Middleware{
		{Name: "logger", Use: middleware.LoggerMiddleware},
		{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
		{Name: "notify_errors", Use: middleware.NotifyErrors(opts.ErrorText)},
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil && cfg.RateLimit.RPS > 0 {
		ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, t := range cfg.RateLimit.ExcludeUpdates {
			ex[strings.ToLower(t)] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				RPS:       cfg.RateLimit.RPS,
				Burst:     cfg.RateLimit.Burst,
				Exclude:   ex,
				OnLimited: opts.OnLimited,
			}),
		})
	}

	if opts.Serializer != nil {
		mws = append(mws, Middleware{Name: "chat_serial", Use: opts.Serializer.Middleware})
	}

	return mws
}
